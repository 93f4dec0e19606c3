package sheet

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/shopspring/decimal"
)

// Columns of a raw order export
const (
	OrderItemColumn   = ItemColumn
	OrderQtyColumn    = "Net Qty Sold"
	OrderSalesColumn  = "Net Sales $"
	OrderBookedColumn = "Order Booked Date"
)

// OrderColumns is the exact column set an order export must have
var OrderColumns = []string{OrderItemColumn, OrderQtyColumn, OrderSalesColumn, OrderBookedColumn}

// ErrOrderColumns is returned when an order export has the wrong columns.
var ErrOrderColumns = errors.New("file does not have the required columns")

// ValidateOrderColumns checks that header holds exactly the order columns,
// in any order.
func ValidateOrderColumns(header []string) error {
	want := make(map[string]bool, len(OrderColumns))
	for _, c := range OrderColumns {
		want[c] = false
	}

	var unexpected []string
	for _, h := range header {
		h = strings.TrimSpace(h)
		seen, ok := want[h]
		if !ok || seen {
			unexpected = append(unexpected, h)
			continue
		}
		want[h] = true
	}

	var missing []string
	for _, c := range OrderColumns {
		if !want[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		return fmt.Errorf("%w: missing %v, unexpected %v", ErrOrderColumns, missing, unexpected)
	}
	return nil
}

// BuildPivotFromOrders sums Net Qty Sold per item and booked month and pivots
// the result. Items and months are sorted; absent combinations are zero.
func BuildPivotFromOrders(t *Table) (domain.Pivot, error) {
	if err := ValidateOrderColumns(t.Header); err != nil {
		return domain.Pivot{}, err
	}
	idxItem, _ := mustHeader(t, OrderItemColumn)
	idxQty, _ := mustHeader(t, OrderQtyColumn)
	idxDate, _ := mustHeader(t, OrderBookedColumn)

	totals := make(map[string]map[domain.Period]decimal.Decimal)
	months := make(map[domain.Period]struct{})
	for i, rec := range t.Rows {
		item := strings.TrimSpace(rec[idxItem])
		if item == "" {
			continue
		}
		booked, err := forecast.ParseDate(rec[idxDate])
		if err != nil {
			return domain.Pivot{}, fmt.Errorf("row %d: invalid %s %q: %w", i+2, OrderBookedColumn, rec[idxDate], err)
		}
		qty, err := forecast.ParseQuantity(rec[idxQty])
		if err != nil {
			return domain.Pivot{}, fmt.Errorf("row %d: invalid %s %q: %w", i+2, OrderQtyColumn, rec[idxQty], err)
		}

		p := domain.PeriodOf(booked)
		if totals[item] == nil {
			totals[item] = make(map[domain.Period]decimal.Decimal)
		}
		totals[item][p] = totals[item][p].Add(qty)
		months[p] = struct{}{}
	}
	if len(totals) == 0 {
		return domain.Pivot{}, &domain.EmptyInputError{Reason: "order file has no rows"}
	}

	items := make([]string, 0, len(totals))
	for item := range totals {
		items = append(items, item)
	}
	sort.Strings(items)

	periods := make([]domain.Period, 0, len(months))
	for p := range months {
		periods = append(periods, p)
	}
	sortPeriods(periods)

	pivot := domain.Pivot{Headers: make([]string, len(periods)), Rows: make([]domain.PivotRow, len(items))}
	for j, p := range periods {
		pivot.Headers[j] = p.Header()
	}
	for i, item := range items {
		cells := make([]string, len(periods))
		for j, p := range periods {
			cells[j] = totals[item][p].String()
		}
		pivot.Rows[i] = domain.PivotRow{ItemID: item, Cells: cells}
	}
	return pivot, nil
}
