// Package quadkey implements Bing Maps tile addressing: a tile at zoom z is
// named by z base-4 digits, one per level, interleaving the x and y bits.
package quadkey

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxLatitude is the Web Mercator latitude limit.
const MaxLatitude = 85.05112878

// MaxZoom is the deepest level a quadkey may address.
const MaxZoom = 31

// BBox is a lon/lat bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Center returns the box midpoint as (lat, lng).
func (b BBox) Center() (float64, float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// FromTile encodes tile coordinates as a quadkey.
func FromTile(x, y, z int) string {
	var sb strings.Builder
	sb.Grow(z)
	for i := z; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		sb.WriteByte(digit)
	}
	return sb.String()
}

// ToTile decodes a quadkey into tile coordinates and zoom.
func ToTile(qk string) (x, y, z int, err error) {
	z = len(qk)
	if z > MaxZoom {
		return 0, 0, 0, eris.Errorf("quadkey: %q deeper than zoom %d", qk, MaxZoom)
	}
	for i := z; i > 0; i-- {
		mask := 1 << (i - 1)
		switch qk[z-i] {
		case '0':
		case '1':
			x |= mask
		case '2':
			y |= mask
		case '3':
			x |= mask
			y |= mask
		default:
			return 0, 0, 0, eris.Errorf("quadkey: invalid digit %q in %q", qk[z-i], qk)
		}
	}
	return x, y, z, nil
}

// Valid reports whether qk contains only quadkey digits.
func Valid(qk string) bool {
	_, _, _, err := ToTile(qk)
	return err == nil
}

// FromLatLng returns the quadkey of the zoom-z tile containing the point.
func FromLatLng(lat, lng float64, z int) string {
	x, y := TileXY(lat, lng, z)
	return FromTile(x, y, z)
}

// TileXY returns the zoom-z tile coordinates containing the point.
func TileXY(lat, lng float64, z int) (int, int) {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	lng = math.Max(-180, math.Min(180, lng))

	n := float64(uint64(1) << uint(z))
	sinLat := math.Sin(lat * math.Pi / 180)
	fx := (lng + 180) / 360 * n
	fy := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * n

	last := int(n) - 1
	x := clampInt(int(math.Floor(fx)), 0, last)
	y := clampInt(int(math.Floor(fy)), 0, last)
	return x, y
}

// Bounds returns the lon/lat extent of the tile named by qk.
func Bounds(qk string) (BBox, error) {
	x, y, z, err := ToTile(qk)
	if err != nil {
		return BBox{}, err
	}
	n := float64(uint64(1) << uint(z))
	return BBox{
		MinLng: float64(x)/n*360 - 180,
		MaxLng: float64(x+1)/n*360 - 180,
		MaxLat: tileLat(float64(y), n),
		MinLat: tileLat(float64(y+1), n),
	}, nil
}

func tileLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

// Parent truncates qk to zoom z. Zooms at or below len(qk) only.
func Parent(qk string, z int) (string, error) {
	if z < 0 || z > len(qk) {
		return "", eris.Errorf("quadkey: cannot take zoom %d parent of %q", z, qk)
	}
	return qk[:z], nil
}

// Children returns the four zoom+1 tiles under qk.
func Children(qk string) []string {
	return []string{qk + "0", qk + "1", qk + "2", qk + "3"}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
