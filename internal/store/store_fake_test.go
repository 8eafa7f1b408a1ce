package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// fakeTable is an in-memory TableAPI with hooks for eventually-consistent
// reads and injected failures.
type fakeTable struct {
	tables map[string][][]string

	// staleReads queues values a cell echoes before the real one, keyed
	// by "table/row/col".
	staleReads map[string][]string

	rangeCalls []rangeCall
	clears     []string
	ensures    []ensureCall

	failWrites bool
}

type rangeCall struct {
	table    string
	row, col int
	values   [][]string
}

type ensureCall struct {
	table      string
	rows, cols int
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		tables:     make(map[string][][]string),
		staleReads: make(map[string][]string),
	}
}

func (f *fakeTable) set(table string, grid [][]string) {
	f.tables[table] = grid
}

func (f *fakeTable) cellKey(table string, row, col int) string {
	return fmt.Sprintf("%s/%d/%d", table, row, col)
}

func (f *fakeTable) grow(table string, rows, cols int) {
	grid := f.tables[table]
	for len(grid) < rows {
		grid = append(grid, nil)
	}
	for i := range grid {
		for len(grid[i]) < cols {
			grid[i] = append(grid[i], "")
		}
	}
	f.tables[table] = grid
}

func (f *fakeTable) Rows(ctx context.Context, table string) ([][]string, error) {
	grid, ok := f.tables[table]
	if !ok {
		return nil, errors.Errorf("table %s not found", table)
	}
	return grid, nil
}

func (f *fakeTable) HeaderRow(ctx context.Context, table string) ([]string, error) {
	grid, ok := f.tables[table]
	if !ok || len(grid) == 0 {
		return nil, errors.Errorf("table %s has no header", table)
	}
	return grid[0], nil
}

func (f *fakeTable) ColValues(ctx context.Context, table string, col int) ([]string, error) {
	grid, ok := f.tables[table]
	if !ok {
		return nil, errors.Errorf("table %s not found", table)
	}
	var out []string
	for _, row := range grid {
		if col-1 < len(row) {
			out = append(out, row[col-1])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

func (f *fakeTable) ReadCell(ctx context.Context, table string, row, col int) (string, error) {
	key := f.cellKey(table, row, col)
	if queue := f.staleReads[key]; len(queue) > 0 {
		v := queue[0]
		f.staleReads[key] = queue[1:]
		return v, nil
	}

	grid, ok := f.tables[table]
	if !ok || row-1 >= len(grid) || col-1 >= len(grid[row-1]) {
		return "", nil
	}
	return grid[row-1][col-1], nil
}

func (f *fakeTable) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	if f.failWrites {
		return errors.New("injected write failure")
	}
	f.grow(table, row, col)
	f.tables[table][row-1][col-1] = value
	return nil
}

func (f *fakeTable) UpdateRange(ctx context.Context, table string, startRow, startCol int, values [][]string) error {
	maxCols := 0
	for _, r := range values {
		if len(r) > maxCols {
			maxCols = len(r)
		}
	}
	f.grow(table, startRow+len(values)-1, startCol+maxCols-1)
	for i, r := range values {
		copy(f.tables[table][startRow-1+i][startCol-1:], r)
	}
	f.rangeCalls = append(f.rangeCalls, rangeCall{table: table, row: startRow, col: startCol, values: values})
	return nil
}

func (f *fakeTable) Clear(ctx context.Context, table string) error {
	f.clears = append(f.clears, table)
	f.tables[table] = [][]string{}
	return nil
}

func (f *fakeTable) EnsureTable(ctx context.Context, table string, rows, cols int) error {
	if _, ok := f.tables[table]; !ok {
		f.tables[table] = [][]string{}
	}
	f.grow(table, rows, cols)
	f.ensures = append(f.ensures, ensureCall{table: table, rows: rows, cols: cols})
	return nil
}

var _ TableAPI = (*fakeTable)(nil)
