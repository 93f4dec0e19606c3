package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/redis/go-redis/v9"
)

const (
	reportKeyPrefix     = "forecast:report"
	reportScanBatchSize = 100
	defaultReportTTL    = time.Hour
	dialTimeout         = 5 * time.Second
)

// ReportCache stores finished forecast reports keyed by their inputs
type ReportCache interface {
	GetReport(ctx context.Context, key string) (*forecast.Report, bool, error)
	SetReport(ctx context.Context, key string, report *forecast.Report) error
	InvalidateAll(ctx context.Context) error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

// NewReportCache returns the Redis-backed cache when caching is enabled and
// a no-op cache otherwise. The connection is checked before returning.
func NewReportCache(ctx context.Context, cfg config.CacheConfig) (ReportCache, error) {
	if !cfg.Enabled {
		return &noopReportCache{}, nil
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("report cache unreachable at %s: %w", opts.Addr, err)
	}

	return &redisReportCache{client: client, ttl: reportTTL(cfg)}, nil
}

// redisOptions prefers REDIS_URL and otherwise connects to host:port,
// defaulting to a local server.
func redisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("report cache url: %w", err)
		}
		return opts, nil
	}

	host, port := cfg.RedisHost, cfg.RedisPort
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("report cache port %q: %w", port, err)
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func reportTTL(cfg config.CacheConfig) time.Duration {
	if cfg.ReportTTLSeconds <= 0 {
		return defaultReportTTL
	}
	return time.Duration(cfg.ReportTTLSeconds) * time.Second
}

func reportKey(key string) string {
	return reportKeyPrefix + ":" + key
}

// NewRedisReportCache wraps an existing client
func NewRedisReportCache(client *redis.Client, ttl time.Duration) ReportCache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &redisReportCache{client: client, ttl: ttl}
}

func NewNoopReportCache() ReportCache {
	return &noopReportCache{}
}

func (c *redisReportCache) GetReport(ctx context.Context, key string) (*forecast.Report, bool, error) {
	payload, err := c.client.Get(ctx, reportKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached report %s: %w", key, err)
	}

	var report forecast.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, false, fmt.Errorf("decode forecast report cache: %w", err)
	}

	return &report, true, nil
}

func (c *redisReportCache) SetReport(ctx context.Context, key string, report *forecast.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode forecast report cache: %w", err)
	}

	if err := c.client.Set(ctx, reportKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("store cached report %s: %w", key, err)
	}
	return nil
}

// InvalidateAll unlinks every cached report, reportScanBatchSize keys at a time.
func (c *redisReportCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, reportKey("*"), reportScanBatchSize).Iterator()
	batch := make([]string, 0, reportScanBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("drop %d cached reports: %w", len(batch), err)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == reportScanBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached reports: %w", err)
	}
	return flush()
}

func (c *noopReportCache) GetReport(ctx context.Context, key string) (*forecast.Report, bool, error) {
	return nil, false, nil
}

func (c *noopReportCache) SetReport(ctx context.Context, key string, report *forecast.Report) error {
	return nil
}

func (c *noopReportCache) InvalidateAll(ctx context.Context) error {
	return nil
}

// ReportKey hashes everything a report depends on: the pivot contents and
// the options that shape the forecast.
func ReportKey(pivot domain.Pivot, opts forecast.Options) string {
	h := sha1.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(pivot)
	_ = enc.Encode(struct {
		Today            string
		Horizon          int
		MinDistinctDates int
		HeuristicRatio   string
		TrailingMonths   int
		Model            string
		ETS              bool
	}{
		Today:            opts.Today.Format("2006-01-02"),
		Horizon:          opts.Horizon,
		MinDistinctDates: opts.MinDistinctDates,
		HeuristicRatio:   opts.HeuristicRatio.String(),
		TrailingMonths:   opts.TrailingMonths,
		Model:            opts.Model,
		ETS:              opts.ETS,
	})
	return hex.EncodeToString(h.Sum(nil))
}
