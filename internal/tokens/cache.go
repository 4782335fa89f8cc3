package tokens

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
)

// DefaultLogoBaseURL is where token logos are served from, one PNG per address.
const DefaultLogoBaseURL = "https://assets.safe.dogmoney.money/tokens/logos"

// Batcher executes batched contract reads.
type Batcher interface {
	TryAggregate(ctx context.Context, calls []multicall.Call, requireSuccess bool) ([]multicall.Result, error)
	Multicall(ctx context.Context, calls []multicall.Call) ([]interface{}, error)
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogoBaseURL sets the base URL used to derive token logo URIs.
func WithLogoBaseURL(base string) Option {
	return func(c *Cache) {
		if base != "" {
			c.logoBase = strings.TrimRight(base, "/")
		}
	}
}

// WithTTL expires cached metadata after ttl. Zero keeps entries for the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache memoizes ERC20 metadata and LP pair composition by contract address.
// Concurrent misses for the same address share one fetch, bounded by the batcher's call timeout.
type Cache struct {
	batcher  Batcher
	logoBase string
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.RWMutex
	tokens map[common.Address]entry[model.TokenMeta]
	pairs  map[common.Address]entry[model.LpPair]
	nonLp  map[common.Address]struct{}

	group singleflight.Group
}

func NewCache(batcher Batcher, opts ...Option) *Cache {
	c := &Cache{
		batcher:  batcher,
		logoBase: DefaultLogoBaseURL,
		now:      time.Now,
		logger:   zap.NewNop(),
		tokens:   make(map[common.Address]entry[model.TokenMeta]),
		pairs:    make(map[common.Address]entry[model.LpPair]),
		nonLp:    make(map[common.Address]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenInfo returns ERC20 metadata for address, fetching it on a miss.
func (c *Cache) TokenInfo(ctx context.Context, address common.Address) (model.TokenMeta, error) {
	c.mu.RLock()
	cached, ok := c.tokens[address]
	c.mu.RUnlock()
	if ok && c.fresh(cached.fetchedAt) {
		return cached.value, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := c.wait(ctx, "token:"+address.Hex(), func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.tokens[address]
		c.mu.RUnlock()
		if ok && c.fresh(cached.fetchedAt) {
			return cached.value, nil
		}

		meta, err := fetchTokenMeta(flightCtx, c.batcher, address, c.logoURI(address))
		if err != nil {
			return model.TokenMeta{}, err
		}
		c.mu.Lock()
		c.tokens[address] = entry[model.TokenMeta]{value: meta, fetchedAt: c.now()}
		c.mu.Unlock()
		return meta, nil
	})
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("token info %s: %w", address.Hex(), err)
	}
	if shared {
		c.logger.Debug("token info fetch shared", zap.String("token", address.Hex()))
	}
	return v.(model.TokenMeta), nil
}

// LpTokenInfo returns the pair composition for address. The returned value is a deep copy.
func (c *Cache) LpTokenInfo(ctx context.Context, address common.Address) (model.LpPair, error) {
	c.mu.RLock()
	cached, ok := c.pairs[address]
	c.mu.RUnlock()
	if ok && c.fresh(cached.fetchedAt) {
		return cached.value.Clone(), nil
	}

	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := c.wait(ctx, "lp:"+address.Hex(), func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.pairs[address]
		c.mu.RUnlock()
		if ok && c.fresh(cached.fetchedAt) {
			return cached.value, nil
		}

		pair, err := fetchLpPair(flightCtx, c.batcher, address)
		if err != nil {
			return model.LpPair{}, err
		}
		c.mu.Lock()
		c.pairs[address] = entry[model.LpPair]{value: pair, fetchedAt: c.now()}
		c.mu.Unlock()
		return pair, nil
	})
	if err != nil {
		return model.LpPair{}, fmt.Errorf("lp token info %s: %w", address.Hex(), err)
	}
	return v.(model.LpPair).Clone(), nil
}

// MarkNonLp records that address is not an LP pair.
func (c *Cache) MarkNonLp(address common.Address) {
	c.mu.Lock()
	c.nonLp[address] = struct{}{}
	c.mu.Unlock()
}

// IsNonLp reports whether address previously failed LP decoding.
func (c *Cache) IsNonLp(address common.Address) bool {
	c.mu.RLock()
	_, ok := c.nonLp[address]
	c.mu.RUnlock()
	return ok
}

// Invalidate drops every cached entry for address, including the negative LP mark.
func (c *Cache) Invalidate(address common.Address) {
	c.mu.Lock()
	delete(c.tokens, address)
	delete(c.pairs, address)
	delete(c.nonLp, address)
	c.mu.Unlock()
}

// Reset clears all cached state.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.tokens = make(map[common.Address]entry[model.TokenMeta])
	c.pairs = make(map[common.Address]entry[model.LpPair])
	c.nonLp = make(map[common.Address]struct{})
	c.mu.Unlock()
}

// wait joins the flight for key. The fetch is detached from any single caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (c *Cache) wait(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error, bool) {
	select {
	case res := <-c.group.DoChan(key, fn):
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

func (c *Cache) fresh(fetchedAt time.Time) bool {
	if c.ttl <= 0 {
		return true
	}
	return c.now().Sub(fetchedAt) < c.ttl
}

func (c *Cache) logoURI(address common.Address) string {
	return fmt.Sprintf("%s/%s.png", c.logoBase, address.Hex())
}
