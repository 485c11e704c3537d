// Package nightlights reads VIIRS nighttime-light radiance samples.
//
// Samples are point values (pixel centres) exported from the EOG annual
// composite as CSV with a lon,lat,radiance header. The file may be gzipped.
package nightlights

import (
	"encoding/csv"
	"io"
	"math"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/fetcher"
)

// Sample is a single radiance value in nW/cm²/sr.
type Sample struct {
	Lng      float64 `csv:"lon"`
	Lat      float64 `csv:"lat"`
	Radiance float64 `csv:"radiance"`
}

// ReadSamples reads samples from path (.csv or .csv.gz).
func ReadSamples(path string) ([]Sample, error) {
	rc, err := fetcher.OpenMaybeGzip(path)
	if err != nil {
		return nil, eris.Wrap(err, "nightlights: open")
	}
	defer rc.Close() //nolint:errcheck

	samples, err := Decode(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "nightlights: %s", path)
	}

	zap.L().With(zap.String("component", "nightlights")).Debug("read samples",
		zap.String("path", path),
		zap.Int("count", len(samples)),
	)
	return samples, nil
}

// Decode reads CSV samples from r. Negative radiance (sensor noise) is
// clamped to zero and rows with a non-finite value are dropped.
func Decode(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if eris.Is(err, io.EOF) {
			return nil, eris.New("nightlights: empty file")
		}
		return nil, eris.Wrap(err, "nightlights: read header")
	}

	for _, col := range []string{"lon", "lat", "radiance"} {
		if !hasColumn(dec.Header(), col) {
			return nil, eris.Errorf("nightlights: missing column %q", col)
		}
	}

	var samples []Sample
	for line := 2; ; line++ {
		var s Sample
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				break
			}
			return nil, eris.Wrapf(err, "nightlights: line %d", line)
		}
		if !finite(s.Lng) || !finite(s.Lat) || !finite(s.Radiance) {
			continue
		}
		if s.Radiance < 0 {
			s.Radiance = 0
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
