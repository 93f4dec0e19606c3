package sheet

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

const (
	// PivotSheet holds the item × month sales pivot
	PivotSheet = "Processed Data"
	// PredictionsSheet holds the item × month forecast
	PredictionsSheet = "Predictions"
	// ItemColumn heads the item id column of both pivots
	ItemColumn = "Item Number"
)

// ReadPivot reads a sales pivot workbook or CSV
func ReadPivot(path string) (domain.Pivot, error) {
	t, err := ReadTable(path, PivotSheet)
	if err != nil {
		return domain.Pivot{}, err
	}
	return PivotFromTable(t)
}

// ReadPivotFrom reads a sales pivot in the given format from r
func ReadPivotFrom(r io.Reader, format Format) (domain.Pivot, error) {
	t, err := ReadTableFrom(r, format, PivotSheet)
	if err != nil {
		return domain.Pivot{}, err
	}
	return PivotFromTable(t)
}

// PivotFromTable treats the first column as item ids and every other column
// as a month. Header text is passed through untouched so date validation
// stays with the forecaster.
func PivotFromTable(t *Table) (domain.Pivot, error) {
	if len(t.Header) < 2 {
		return domain.Pivot{}, &domain.EmptyInputError{Reason: "pivot needs an item column and at least one month column"}
	}

	pivot := domain.Pivot{
		Headers: append([]string(nil), t.Header[1:]...),
		Rows:    make([]domain.PivotRow, 0, len(t.Rows)),
	}
	for _, rec := range t.Rows {
		id := strings.TrimSpace(rec[0])
		if id == "" {
			continue
		}
		cells := append([]string(nil), rec[1:]...)
		// Pandas writes the index name on its own row below the month headers.
		if normalizeColumnName(id) == normalizeColumnName(ItemColumn) && blank(cells) {
			continue
		}
		pivot.Rows = append(pivot.Rows, domain.PivotRow{ItemID: id, Cells: cells})
	}
	return pivot, nil
}

// PivotTable lays a sales pivot out as a table
func PivotTable(p domain.Pivot) *Table {
	t := &Table{
		Header: append([]string{ItemColumn}, p.Headers...),
		Rows:   make([][]string, len(p.Rows)),
	}
	for i, row := range p.Rows {
		rec := make([]string, len(t.Header))
		rec[0] = row.ItemID
		copy(rec[1:], row.Cells)
		t.Rows[i] = rec
	}
	return t
}

// PredictionsTable lays a forecast pivot out as a table with first-of-month
// headers and integer cells.
func PredictionsTable(p domain.ForecastPivot) *Table {
	header := make([]string, 0, len(p.Periods)+1)
	header = append(header, ItemColumn)
	for _, period := range p.Periods {
		header = append(header, period.Header())
	}

	t := &Table{Header: header, Rows: make([][]string, len(p.Items))}
	for i, item := range p.Items {
		rec := make([]string, len(header))
		rec[0] = item
		for j, v := range p.Values[i] {
			rec[j+1] = strconv.FormatInt(v, 10)
		}
		t.Rows[i] = rec
	}
	return t
}

// WritePivot writes a sales pivot to the "Processed Data" sheet or as CSV
func WritePivot(w io.Writer, format Format, p domain.Pivot) error {
	return WriteTable(w, format, PivotSheet, PivotTable(p))
}

// WritePredictions writes a forecast pivot to the "Predictions" sheet or as CSV
func WritePredictions(w io.Writer, format Format, p domain.ForecastPivot) error {
	return WriteTable(w, format, PredictionsSheet, PredictionsTable(p))
}

// SavePivot writes a sales pivot to path
func SavePivot(path string, p domain.Pivot) error {
	return SaveTable(path, PivotSheet, PivotTable(p))
}

// SavePredictions writes a forecast pivot to path
func SavePredictions(path string, p domain.ForecastPivot) error {
	return SaveTable(path, PredictionsSheet, PredictionsTable(p))
}

// AggregateTable lays out the aggregate series of a run side by side
func AggregateTable(columns map[string]domain.AggregateSeries, order []string) *Table {
	seen := make(map[domain.Period]struct{})
	var periods []domain.Period
	for _, name := range order {
		for _, pt := range columns[name] {
			if _, ok := seen[pt.Period]; !ok {
				seen[pt.Period] = struct{}{}
				periods = append(periods, pt.Period)
			}
		}
	}
	sortPeriods(periods)

	t := &Table{Header: append([]string{"Period"}, order...), Rows: make([][]string, len(periods))}
	for i, p := range periods {
		rec := make([]string, len(t.Header))
		rec[0] = p.Header()
		for j, name := range order {
			if v, ok := columns[name].Lookup(p); ok {
				rec[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		t.Rows[i] = rec
	}
	return t
}

func typedCell(c string) interface{} {
	v := strings.TrimSpace(c)
	if v == "" {
		return c
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !strings.ContainsAny(v, "eE") {
		return f
	}
	return c
}

func sortPeriods(ps []domain.Period) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Before(ps[j]) })
}

func mustHeader(t *Table, names ...string) (int, error) {
	idx := t.ColumnIndex(names...)
	if idx < 0 {
		return -1, fmt.Errorf("column %q not found", names[0])
	}
	return idx, nil
}
