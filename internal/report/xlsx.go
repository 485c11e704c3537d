package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
)

const (
	populationFormat = "#,##0"
	rwiFormat        = "0.0000"
)

// WriteXLSX writes Summary, Categories and Regions sheets.
func WriteXLSX(path string, s *Summary) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addPair(sheet, "Run ID", s.RunID)
	addPair(sheet, "Model", s.Model)
	row := sheet.AddRow()
	row.AddCell().SetString("Tiles")
	row.AddCell().SetInt(s.Tiles)
	row = sheet.AddRow()
	row.AddCell().SetString("Population")
	row.AddCell().SetFloatWithFormat(s.Population, populationFormat)
	for k, t := range s.Thresholds {
		row := sheet.AddRow()
		row.AddCell().SetString("Threshold " + binning.Labels[len(binning.Labels)-1-k] + "/" + binning.Labels[len(binning.Labels)-2-k])
		row.AddCell().SetFloatWithFormat(t, rwiFormat)
	}

	if err := addGroupSheet(f, "Categories", "Category", s.Categories, false); err != nil {
		return err
	}
	if err := addGroupSheet(f, "Regions", "Region", s.Regions, true); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "report: create dir")
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}

	zap.L().Info("report: wrote xlsx", zap.String("path", path), zap.Int("regions", len(s.Regions)))
	return nil
}

func addPair(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}

func addGroupSheet(f *xlsx.File, name, key string, groups []Group, withCounts bool) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add %s sheet", name)
	}

	header := sheet.AddRow()
	for _, h := range []string{key, "Tiles", "Population", "Mean RWI"} {
		header.AddCell().SetString(h)
	}
	if withCounts {
		for _, l := range binning.Labels {
			header.AddCell().SetString(l)
		}
	}

	for _, g := range groups {
		row := sheet.AddRow()
		row.AddCell().SetString(g.Name)
		row.AddCell().SetInt(g.Tiles)
		row.AddCell().SetFloatWithFormat(g.Population, populationFormat)
		row.AddCell().SetFloatWithFormat(g.MeanRWI, rwiFormat)
		if withCounts {
			for _, l := range binning.Labels {
				row.AddCell().SetInt(g.Counts[l])
			}
		}
	}
	return nil
}
