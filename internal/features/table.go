package features

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
)

// Table is a dense feature matrix. Rows follow grid order.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// NewTable allocates a zero-filled table.
func NewTable(columns []string, rows int) *Table {
	t := &Table{Columns: columns, Rows: make([][]float64, rows)}
	for i := range t.Rows {
		t.Rows[i] = make([]float64, len(columns))
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ColumnIndex returns the position of a column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Column returns a copy of one column.
func (t *Table) Column(name string) ([]float64, error) {
	j, ok := t.ColumnIndex(name)
	if !ok {
		return nil, eris.Errorf("features: no column %q", name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out, nil
}

// Subset returns a new table holding only the named columns, in that order.
func (t *Table) Subset(names []string) (*Table, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		j, ok := t.ColumnIndex(name)
		if !ok {
			return nil, eris.Errorf("features: no column %q", name)
		}
		idx[k] = j
	}
	out := NewTable(append([]string(nil), names...), t.Len())
	for i, row := range t.Rows {
		for k, j := range idx {
			out.Rows[i][k] = row[j]
		}
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]float64, len(t.Rows)),
	}
	for i, row := range t.Rows {
		c.Rows[i] = append([]float64(nil), row...)
	}
	return c
}

// WriteCSV writes the table with a leading quadkey column taken from the grid.
func WriteCSV(path string, g *aoi.Grid, t *Table) error {
	if t.Len() != g.Len() {
		return eris.Errorf("features: table has %d rows, grid has %d", t.Len(), g.Len())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "features: create cache dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "features: create cache")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{aoi.PropQuadkey}, t.Columns...)); err != nil {
		return eris.Wrap(err, "features: write header")
	}
	rec := make([]string, len(t.Columns)+1)
	for i, row := range t.Rows {
		rec[0] = g.Tiles[i].Quadkey
		for j, v := range row {
			rec[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "features: write row %d", i)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "features: flush cache")
	}
	return f.Close()
}

// ReadCSV reads a cache written by WriteCSV and reorders it to grid order.
// The cache must hold exactly the grid's quadkeys.
func ReadCSV(path string, g *aoi.Grid) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "features: open cache")
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "features: read cache")
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != aoi.PropQuadkey {
		return nil, eris.New("features: cache has no quadkey header")
	}

	t := NewTable(append([]string(nil), records[0][1:]...), g.Len())
	seen := make([]bool, g.Len())
	for n, rec := range records[1:] {
		row, ok := g.Index(rec[0])
		if !ok {
			return nil, eris.Errorf("features: cache quadkey %s not in grid", rec[0])
		}
		if seen[row] {
			return nil, eris.Errorf("features: cache repeats quadkey %s", rec[0])
		}
		seen[row] = true
		for j, s := range rec[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "features: cache line %d column %s", n+2, t.Columns[j])
			}
			t.Rows[row][j] = v
		}
	}
	for i, ok := range seen {
		if !ok {
			return nil, eris.Errorf("features: cache is missing quadkey %s", g.Tiles[i].Quadkey)
		}
	}
	return t, nil
}
