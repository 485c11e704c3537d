// Package features turns raw OSM, Ookla and VIIRS data into one numeric row
// per grid tile.
package features

import (
	"strings"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/ookla"
)

// Aggregations applied to Ookla metrics, in column order.
var OoklaAggregations = []string{"mean", "median"}

// NightlightStats are the VIIRS radiance statistics, in column order.
var NightlightStats = []string{"min", "max", "mean", "median", "std", "sum"}

// Catalog fixes the feature columns and their order.
type Catalog struct {
	POIClasses  []string
	RoadClasses []string
}

// POICountColumn names the per-tile count of a POI class.
func POICountColumn(class string) string { return "poi_" + norm(class) + "_count" }

// POINearestColumn names the distance to the nearest POI of a class.
func POINearestColumn(class string) string { return "poi_" + norm(class) + "_nearest" }

// RoadLengthColumn names the in-tile length of a road class.
func RoadLengthColumn(class string) string { return "road_" + norm(class) + "_length" }

// RoadNearestColumn names the distance to the nearest road of a class.
func RoadNearestColumn(class string) string { return "road_" + norm(class) + "_nearest" }

// OoklaColumn names an aggregated Ookla metric.
func OoklaColumn(kind ookla.Kind, metric, agg string) string {
	return "ookla_" + string(kind) + "_" + metric + "_" + agg
}

// NightlightColumn names a VIIRS statistic.
func NightlightColumn(stat string) string { return "viirs_" + stat }

// Columns returns every feature column in catalog order.
func (c Catalog) Columns() []string {
	var cols []string
	for _, class := range c.POIClasses {
		cols = append(cols, POICountColumn(class), POINearestColumn(class))
	}
	for _, class := range c.RoadClasses {
		cols = append(cols, RoadLengthColumn(class), RoadNearestColumn(class))
	}
	for _, kind := range ookla.Kinds {
		for _, metric := range ookla.Metrics {
			for _, agg := range OoklaAggregations {
				cols = append(cols, OoklaColumn(kind, metric, agg))
			}
		}
	}
	for _, stat := range NightlightStats {
		cols = append(cols, NightlightColumn(stat))
	}
	return cols
}

func norm(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}
