// Package aoi loads the area-of-interest grid: one quadkey tile per row with
// its administrative labels, population and polygon.
package aoi

import (
	"github.com/twpayne/go-geom"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

// Property names of the grid schema.
const (
	PropQuadkey    = "quadkey"
	PropShapeName  = "shapeName"
	PropShapeISO   = "shapeISO"
	PropShapeID    = "shapeID"
	PropShapeGroup = "shapeGroup"
	PropShapeType  = "shapeType"
	PropPopulation = "pop_count"
)

// SchemaColumns lists the grid attribute columns in output order.
var SchemaColumns = []string{
	PropQuadkey, PropShapeName, PropShapeISO, PropShapeID,
	PropShapeGroup, PropShapeType, PropPopulation,
}

// Tile is one grid cell.
type Tile struct {
	Quadkey    string
	ShapeName  string
	ShapeISO   string
	ShapeID    string
	ShapeGroup string
	ShapeType  string
	Population float64
	Geometry   geom.T

	// Extra holds any properties outside the schema, carried through unchanged.
	Extra map[string]any
}

// Properties returns the schema columns (and extras) as a GeoJSON property map.
func (t Tile) Properties() map[string]any {
	props := make(map[string]any, len(SchemaColumns)+len(t.Extra))
	for k, v := range t.Extra {
		props[k] = v
	}
	props[PropQuadkey] = t.Quadkey
	props[PropShapeName] = t.ShapeName
	props[PropShapeISO] = t.ShapeISO
	props[PropShapeID] = t.ShapeID
	props[PropShapeGroup] = t.ShapeGroup
	props[PropShapeType] = t.ShapeType
	props[PropPopulation] = t.Population
	return props
}

// Bounds returns the quadkey tile extent.
func (t Tile) Bounds() (quadkey.BBox, error) {
	return quadkey.Bounds(t.Quadkey)
}
