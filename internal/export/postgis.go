package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/db"
)

// PostGISColumns are the COPY columns of the published table, in order.
var PostGISColumns = []string{
	"quadkey", "shape_name", "shape_iso", "shape_id", "shape_group", "shape_type",
	"pop_count", ColRWI, ColCategory, "run_id", "the_geom",
}

// PublishPostGIS replaces the contents of schema.table with the layer in a
// single transaction, so a failed run leaves the previous rows in place. The
// table is created if missing.
func PublishPostGIS(ctx context.Context, pool db.Pool, schema, table, runID string, l *Layer) (int64, error) {
	if err := l.Validate(); err != nil {
		return 0, err
	}
	qualified := db.Qualified(schema, table)
	log := zap.L().With(zap.String("component", "export.postgis"), zap.String("table", qualified))

	rows := make([][]any, l.Grid.Len())
	for i, t := range l.Grid.Tiles {
		g, err := postgisGeometry(t.Geometry)
		if err != nil {
			return 0, eris.Wrapf(err, "export: tile %s", t.Quadkey)
		}
		rows[i] = []any{
			t.Quadkey, t.ShapeName, t.ShapeISO, t.ShapeID, t.ShapeGroup, t.ShapeType,
			t.Population, l.RWI[i], l.Category[i], runID, g,
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "export: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, createTableSQL(qualified)); err != nil {
		return 0, eris.Wrapf(err, "export: create %s", qualified)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+qualified); err != nil {
		return 0, eris.Wrapf(err, "export: truncate %s", qualified)
	}
	n, err := db.CopyBatches(ctx, tx, schema, table, PostGISColumns, rows, 0)
	if err != nil {
		return 0, eris.Wrap(err, "export: publish")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "export: commit %s", qualified)
	}
	log.Info("published tiles", zap.Int64("rows", n))
	return n, nil
}

func createTableSQL(qualified string) string {
	cols := []string{
		"quadkey TEXT PRIMARY KEY",
		"shape_name TEXT",
		"shape_iso TEXT",
		"shape_id TEXT",
		"shape_group TEXT",
		"shape_type TEXT",
		"pop_count DOUBLE PRECISION",
		ColRWI + " DOUBLE PRECISION NOT NULL",
		ColCategory + " CHAR(1) NOT NULL",
		"run_id UUID",
		"the_geom geometry(MultiPolygon, 4326)",
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, strings.Join(cols, ", "))
}

// postgisGeometry encodes a (multi)polygon as EWKB MultiPolygon, SRID 4326.
func postgisGeometry(g geom.T) ([]byte, error) {
	var mp *geom.MultiPolygon
	switch p := g.(type) {
	case *geom.MultiPolygon:
		mp = geom.NewMultiPolygonFlat(p.Layout(), p.FlatCoords(), p.Endss())
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(p.Layout())
		if err := mp.Push(p); err != nil {
			return nil, eris.Wrap(err, "promote polygon")
		}
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}

	data, err := ewkb.Marshal(mp.SetSRID(4326), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "encode ewkb")
	}
	return data, nil
}
