// Package shpio wraps go-shp with name-based attribute access.
package shpio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// Attrs returns the trimmed DBF value of a field by (case-insensitive) name.
// Unknown fields return "".
type Attrs func(field string) string

// Each calls fn for every record in the shapefile at path, stopping at the
// first error. Returns the number of records visited.
func Each(path string, fn func(shape shp.Shape, attr Attrs) error) (int, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "shpio: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	var n int
	for reader.Next() {
		_, shape := reader.Shape()
		attr := func(field string) string {
			idx, ok := fieldIdx[strings.ToLower(field)]
			if !ok {
				return ""
			}
			return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		}
		if err := fn(shape, attr); err != nil {
			return n, err
		}
		n++
	}
	if err := reader.Err(); err != nil {
		return n, eris.Wrapf(err, "shpio: read %s", path)
	}

	return n, nil
}

// Parts splits a multi-part shape's points into one slice per part.
func Parts(numParts int32, parts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(points)) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

// Center returns the bounding-box centre of a shape as (lat, lng).
func Center(s shp.Shape) (float64, float64) {
	b := s.BBox()
	return (b.MinY + b.MaxY) / 2, (b.MinX + b.MaxX) / 2
}

// Close closes w and moves its attribute table to <base>.dbf. go-shp v0.1.1
// creates the table as <base>dbf, which readers never find.
func Close(w *shp.Writer, path string) error {
	w.Close()
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(base + "dbf"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "shpio: stat %sdbf", base)
	}
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrapf(err, "shpio: rename attribute table for %s", path)
	}
	return nil
}
