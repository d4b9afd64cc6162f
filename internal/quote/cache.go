package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

type CacheStore interface {
	Get(ctx context.Context, key string) (model.Quote, bool, error)
	Set(ctx context.Context, key string, q model.Quote, ttl time.Duration) error
}

// CachedSource serves quotes younger than ttl from store and collapses
// concurrent misses for one symbol into a single upstream call.
type CachedSource struct {
	source Source
	store  CacheStore
	ttl    time.Duration
	prefix string

	group singleflight.Group

	logger logger.Logger
}

func NewCachedSource(source Source, store CacheStore, ttl time.Duration, prefix string, logger logger.Logger) *CachedSource {
	return &CachedSource{
		source: source,
		store:  store,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

func (c *CachedSource) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	key := c.prefix + symbol

	q, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warnf("%s: can't read cached quote %s", err, key)
	}
	if ok {
		return q, nil
	}

	// the upstream call outlives a cancelled waiter so other waiters still get the quote
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		q, err := c.source.GetQuote(fetchCtx, symbol)
		if err != nil {
			return model.Quote{}, err
		}
		if err := c.store.Set(fetchCtx, key, q, c.ttl); err != nil {
			c.logger.Warnf("%s: can't cache quote %s", err, key)
		}
		return q, nil
	})

	select {
	case <-ctx.Done():
		return model.Quote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Quote{}, res.Err
		}
		return res.Val.(model.Quote), nil
	}
}

type cacheEntry struct {
	quote     model.Quote
	expiresAt time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	now func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (model.Quote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return model.Quote{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return model.Quote{}, false, nil
	}
	return e.quote, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, q model.Quote, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = cacheEntry{quote: q, expiresAt: m.now().Add(ttl)}
	return nil
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// ConnectRedis accepts either a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: can't parse redis url", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: can't ping redis", err)
	}
	return client, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (model.Quote, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Quote{}, false, nil
		}
		return model.Quote{}, false, fmt.Errorf("%w: can't get %s", err, key)
	}

	var q model.Quote
	if err := sonic.Unmarshal(raw, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("%w: can't unmarshal cached quote", err)
	}
	return q, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, q model.Quote, ttl time.Duration) error {
	raw, err := sonic.Marshal(q)
	if err != nil {
		return fmt.Errorf("%w: can't marshal quote", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: can't set %s", err, key)
	}
	return nil
}
