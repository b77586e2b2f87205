package redisstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/karteai/billing/pkg/config"
)

const (
	dedupKeyPrefix = "billing:webhook:event:"
	dedupTTL       = 72 * time.Hour
)

// Deduper remembers processor event ids so at-least-once webhook delivery
// does not replay side effects. Ids are marked only after handling succeeds;
// a failed attempt leaves the id unmarked so the processor's retry is
// processed rather than dropped.
type Deduper interface {
	// Seen reports whether an event id has already been handled.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records an event id as handled.
	Mark(ctx context.Context, eventID string) error
}

type redisDeduper struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func NewRedisClient(cfg *cfgpkg.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is empty")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), nil
}

func NewDeduper(cfg *cfgpkg.Config, log *zap.SugaredLogger) (Deduper, error) {
	// Without redis the service still works; processing is idempotent and
	// reconciliation corrects any double-applied event, so fall back to a
	// per-process memory on dev setups.
	if cfg.Redis.Addr == "" {
		log.Warnw("redis addr not configured; webhook dedup is in-process only")
		return NewMemoryDeduper(), nil
	}
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &redisDeduper{client: client, log: log}, nil
}

func (d *redisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKeyPrefix+eventID).Result()
	if err != nil {
		// Fail open: a replayed event is corrected by reconciliation, a
		// dropped one is not.
		d.log.Warnw("webhook dedup check failed", "event_id", eventID, "err", err)
		return false, nil
	}
	return n > 0, nil
}

func (d *redisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.client.SetNX(ctx, dedupKeyPrefix+eventID, time.Now().Unix(), dedupTTL).Err()
}

// MemoryDeduper is an in-process Deduper used by tests and redis-less setups.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[eventID]
	return ok, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = struct{}{}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewDeduper),
)
