// Package redis implements store.ReportStore on Redis. Reports are stored as
// JSON snapshots under "report:<sn>" with an optional expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/platform/logger"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/redis/go-redis/v9"
)

func reportKey(sn string) string { return "report:" + sn }

// kv is the subset of redis.Cmdable the store uses.
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewClient creates a Redis client with short timeouts.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
	})
}

// ReportStore implements store.ReportStore.
type ReportStore struct {
	client kv
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates a store. A zero ttl keeps reports forever.
func NewReportStore(client redis.Cmdable, ttl time.Duration, l *slog.Logger) *ReportStore {
	return newReportStore(client, ttl, l)
}

func newReportStore(client kv, ttl time.Duration, l *slog.Logger) *ReportStore {
	if l == nil {
		l = slog.Default()
	}
	return &ReportStore{client: client, ttl: ttl, logger: l.With("component", "redis_report_store")}
}

// Save writes the report snapshot, replacing any previous copy.
func (s *ReportStore) Save(ctx context.Context, r *domain.Report) error {
	snap := r.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return store.WrapOp("save", snap.SN, fmt.Errorf("failed to encode report: %w", err))
	}

	if err := s.client.Set(ctx, reportKey(snap.SN), data, s.ttl).Err(); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save report",
			"sn", snap.SN,
			"error", err)
		return store.WrapOp("save", snap.SN, fmt.Errorf("redis set %s: %w", reportKey(snap.SN), err))
	}
	return nil
}

// Get loads a report. Returns store.ErrReportNotFound for unknown or
// expired reports.
func (s *ReportStore) Get(ctx context.Context, sn string) (*domain.Report, error) {
	data, err := s.client.Get(ctx, reportKey(sn)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrReportNotFound
		}
		return nil, store.WrapOp("get", sn, fmt.Errorf("redis get %s: %w", reportKey(sn), err))
	}

	var snap domain.ReportSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, store.WrapOp("get", sn, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
	}

	r, err := domain.RestoreReport(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	return r, nil
}
