package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPivot() domain.Pivot {
	return domain.Pivot{
		Headers: []string{"2023-01-01", "2023-02-01"},
		Rows:    []domain.PivotRow{{ItemID: "A", Cells: []string{"1", "2"}}},
	}
}

func TestReportKey(t *testing.T) {
	opts := forecast.DefaultOptions(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	key := ReportKey(testPivot(), opts)
	assert.Len(t, key, 40)
	assert.Equal(t, key, ReportKey(testPivot(), opts))

	// worker count does not change the result
	opts.Workers = 99
	assert.Equal(t, key, ReportKey(testPivot(), opts))

	later := opts
	later.Today = later.Today.AddDate(0, 0, 1)
	assert.NotEqual(t, key, ReportKey(testPivot(), later))

	changed := testPivot()
	changed.Rows[0].Cells[1] = "3"
	assert.NotEqual(t, key, ReportKey(changed, opts))
}

func TestNoopReportCache(t *testing.T) {
	c, err := NewReportCache(context.Background(), config.CacheConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.SetReport(ctx, "k", &forecast.Report{}))
	report, ok, err := c.GetReport(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, report)
	assert.NoError(t, c.InvalidateAll(ctx))
}

func TestCachedReportKeepsPeriods(t *testing.T) {
	jan := domain.Period{Year: 2024, Month: time.January}
	capValue := 4.5
	in := &forecast.Report{
		Pivot: domain.ForecastPivot{
			Items:   []string{"A"},
			Periods: []domain.Period{jan},
			Values:  [][]int64{{3}},
		},
		Aggregate:  domain.AggregateSeries{{Period: jan, Quantity: 3}},
		Comparison: []domain.PeriodComparison{{Period: jan, ItemTotal: 3, CapForecast: &capValue}},
	}

	payload, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"2024-01"`)

	var out forecast.Report
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, in.Pivot, out.Pivot)
	assert.Equal(t, in.Aggregate, out.Aggregate)
	assert.Equal(t, 4.5, *out.Comparison[0].CapForecast)
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(config.CacheConfig{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)

	opts, err = redisOptions(config.CacheConfig{RedisHost: "cache", RedisPort: "6380", RedisPassword: "pw", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = redisOptions(config.CacheConfig{RedisURL: "redis://:secret@redis.internal:6390/4", RedisHost: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6390", opts.Addr)
	assert.Equal(t, 4, opts.DB)

	_, err = redisOptions(config.CacheConfig{RedisURL: "http://nope"})
	assert.Error(t, err)

	_, err = redisOptions(config.CacheConfig{RedisPort: "redis"})
	assert.Error(t, err)
}

func TestReportTTL(t *testing.T) {
	assert.Equal(t, time.Hour, reportTTL(config.CacheConfig{}))
	assert.Equal(t, 90*time.Second, reportTTL(config.CacheConfig{ReportTTLSeconds: 90}))
	assert.Equal(t, "forecast:report:abc", reportKey("abc"))
}

func TestNewReportCache_Unreachable(t *testing.T) {
	_, err := NewReportCache(context.Background(), config.CacheConfig{
		Enabled:   true,
		RedisHost: "127.0.0.1",
		RedisPort: "1",
	})
	assert.ErrorContains(t, err, "report cache unreachable")
}
