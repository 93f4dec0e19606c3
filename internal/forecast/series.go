package forecast

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Schedule is the parsed month of every pivot column, in column order.
type Schedule []domain.Period

// Excel serials accepted as dates: 1901-01-01 through 9999-12-31. Smaller
// numbers are far more likely to be stray quantities than month headers.
const (
	minExcelSerial = 367
	maxExcelSerial = 2958465
)

var headerLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
}

// ParseSchedule converts pivot column headers into calendar months. A header
// that is not a date fails the whole schedule.
func ParseSchedule(headers []string) (Schedule, error) {
	schedule := make(Schedule, len(headers))
	for i, h := range headers {
		t, err := ParseDate(h)
		if err != nil {
			return nil, &domain.MalformedScheduleError{Column: i, Header: h, Err: err}
		}
		schedule[i] = domain.PeriodOf(t)
	}
	return schedule, nil
}

// Periods returns the distinct months of the schedule in chronological order.
func (s Schedule) Periods() []domain.Period {
	seen := make(map[domain.Period]struct{}, len(s))
	out := make([]domain.Period, 0, len(s))
	for _, p := range s {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sortPeriods(out)
	return out
}

// ParseDate reads a month header or order date in any of the accepted
// layouts, including Excel serial numbers.
func ParseDate(raw string) (time.Time, error) {
	h := strings.TrimSpace(raw)
	if h == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range headerLayouts {
		if t, err := time.Parse(layout, h); err == nil {
			return t, nil
		}
	}
	// Workbooks read without number formatting expose dates as serials.
	if serial, err := strconv.ParseFloat(h, 64); err == nil {
		if serial < minExcelSerial || serial > maxExcelSerial {
			return time.Time{}, fmt.Errorf("number %s is outside the excel date range", h)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("excel serial %s: %w", h, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date format")
}

// BuildSeries turns one pivot row into the item's chronological series.
// Blank cells count as zero; cells for the same month are summed; months with
// a total of zero or less are dropped.
func BuildSeries(itemID string, schedule Schedule, cells []string) (domain.ItemSeries, error) {
	byPeriod := make(map[domain.Period]decimal.Decimal, len(schedule))
	for i, p := range schedule {
		if i >= len(cells) {
			break
		}
		q, err := ParseQuantity(cells[i])
		if err != nil {
			return domain.ItemSeries{}, &domain.InvalidQuantityError{
				ItemID: itemID,
				Header: p.Header(),
				Value:  cells[i],
				Err:    err,
			}
		}
		byPeriod[p] = byPeriod[p].Add(q)
	}

	records := make([]domain.SalesRecord, 0, len(byPeriod))
	for p, q := range byPeriod {
		if !q.IsPositive() {
			continue
		}
		records = append(records, domain.SalesRecord{ItemID: itemID, Period: p, Quantity: q})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Period.Before(records[j].Period) })

	return domain.ItemSeries{ItemID: itemID, Records: records}, nil
}

var quantitySanitizer = strings.NewReplacer(",", "", " ", "", " ", "")

// ParseQuantity reads a pivot cell. Thousands separators are ignored and an
// empty cell is zero.
func ParseQuantity(cell string) (decimal.Decimal, error) {
	v := quantitySanitizer.Replace(strings.TrimSpace(cell))
	if v == "" || v == "-" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}

func sortPeriods(ps []domain.Period) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Before(ps[j]) })
}
