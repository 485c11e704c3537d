package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10200
	gpkgSRSID         = 4326
)

const gpkgMetadata = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326,
	 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]',
	 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');
`

// WriteGeoPackage writes the layer to a new GeoPackage holding one feature
// table named table. An existing file at path is replaced.
func WriteGeoPackage(ctx context.Context, path, table string, l *Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if !validIdent(table) {
		return eris.Errorf("export: invalid gpkg table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create gpkg dir")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "export: remove old gpkg")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "export: open gpkg")
	}
	defer db.Close() //nolint:errcheck

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id=%d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version=%d", gpkgUserVersion),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "export: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "export: begin gpkg tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, gpkgMetadata); err != nil {
		return eris.Wrap(err, "export: create gpkg metadata")
	}

	cols := gpkgColumns(l)
	var ddl strings.Builder
	fmt.Fprintf(&ddl, `CREATE TABLE %q (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom MULTIPOLYGON`, table)
	for _, c := range cols {
		fmt.Fprintf(&ddl, ", %q %s", c.name, c.sqlType)
	}
	ddl.WriteString(")")
	if _, err := tx.ExecContext(ctx, ddl.String()); err != nil {
		return eris.Wrap(err, "export: create gpkg table")
	}

	ext := l.Grid.Extent()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		table, table, ext.MinLng, ext.MinLat, ext.MaxLng, ext.MaxLat, gpkgSRSID,
	); err != nil {
		return eris.Wrap(err, "export: register gpkg contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'MULTIPOLYGON', ?, 0, 0)`,
		table, gpkgSRSID,
	); err != nil {
		return eris.Wrap(err, "export: register gpkg geometry")
	}

	names := make([]string, 0, len(cols)+1)
	marks := make([]string, 0, len(cols)+1)
	names = append(names, "geom")
	marks = append(marks, "?")
	for _, c := range cols {
		names = append(names, fmt.Sprintf("%q", c.name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return eris.Wrap(err, "export: prepare gpkg insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, t := range l.Grid.Tiles {
		blob, err := gpkgGeometry(t.Geometry)
		if err != nil {
			return eris.Wrapf(err, "export: tile %s", t.Quadkey)
		}
		args := make([]any, 0, len(cols)+1)
		args = append(args, blob)
		for _, c := range cols {
			args = append(args, c.value(i))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "export: insert tile %s", t.Quadkey)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "export: commit gpkg")
	}

	zap.L().Info("export: wrote geopackage", zap.String("path", path), zap.String("table", table), zap.Int("features", l.Grid.Len()))
	return nil
}

type gpkgColumn struct {
	name    string
	sqlType string
	value   func(i int) any
}

func gpkgColumns(l *Layer) []gpkgColumn {
	tiles := l.Grid.Tiles
	cols := []gpkgColumn{
		{aoi.PropQuadkey, "TEXT", func(i int) any { return tiles[i].Quadkey }},
		{aoi.PropShapeName, "TEXT", func(i int) any { return tiles[i].ShapeName }},
		{aoi.PropShapeISO, "TEXT", func(i int) any { return tiles[i].ShapeISO }},
		{aoi.PropShapeID, "TEXT", func(i int) any { return tiles[i].ShapeID }},
		{aoi.PropShapeGroup, "TEXT", func(i int) any { return tiles[i].ShapeGroup }},
		{aoi.PropShapeType, "TEXT", func(i int) any { return tiles[i].ShapeType }},
		{aoi.PropPopulation, "DOUBLE", func(i int) any { return tiles[i].Population }},
	}
	for _, c := range l.Columns {
		vals := c.Values
		cols = append(cols, gpkgColumn{c.Name, "DOUBLE", func(i int) any { return vals[i] }})
	}
	cols = append(cols,
		gpkgColumn{ColRWI, "DOUBLE", func(i int) any { return l.RWI[i] }},
		gpkgColumn{ColCategory, "TEXT", func(i int) any { return l.Category[i] }},
	)
	return cols
}

// gpkgGeometry encodes g as a GeoPackage binary: "GP", version 0, flags
// (little-endian, xy envelope), srs id, envelope, then WKB. Polygons are
// promoted to MultiPolygon to match the column type.
func gpkgGeometry(g geom.T) ([]byte, error) {
	var mp *geom.MultiPolygon
	switch p := g.(type) {
	case *geom.MultiPolygon:
		mp = p
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(p.Layout())
		if err := mp.Push(p); err != nil {
			return nil, eris.Wrap(err, "promote polygon")
		}
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}

	body, err := wkb.Marshal(mp, binary.LittleEndian)
	if err != nil {
		return nil, eris.Wrap(err, "encode wkb")
	}

	b := mp.Bounds()
	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0)    // version
	buf.WriteByte(0x03) // envelope [minx, maxx, miny, maxy], little-endian
	_ = binary.Write(&buf, binary.LittleEndian, int32(gpkgSRSID))
	for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
