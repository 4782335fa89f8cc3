package watch

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stakeScope/internal/model"
)

// Params selects the contracts and account whose positions are watched.
// A zero address disables the pass that needs it.
type Params struct {
	StakingPool     common.Address `json:"staking_pool"`
	VaultUnderlying common.Address `json:"vault_underlying"`
	VaultShare      common.Address `json:"vault_share"`
	Account         common.Address `json:"account"`
}

// Fetcher runs the two aggregation passes.
type Fetcher interface {
	StakingPoolTokens(ctx context.Context, pool, account common.Address) ([]model.StakedToken, error)
	VaultTokens(ctx context.Context, underlying, share, account common.Address) ([]model.StakedToken, error)
}

// Update is a published position list.
type Update struct {
	Generation uint64
	Params     Params
	Tokens     []model.StakedToken
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPassTimeout bounds each fetch generation.
func WithPassTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		w.timeout = d
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher refetches positions whenever its params change and republishes the
// latest combined list. Results from superseded generations are dropped.
type Watcher struct {
	ctx     context.Context
	fetcher Fetcher
	timeout time.Duration
	logger  *zap.Logger

	mu         sync.Mutex
	params     Params
	hasParams  bool
	generation uint64
	published  uint64
	latest     []model.StakedToken
	subs       map[int]chan Update
	nextSub    int

	inflight sync.WaitGroup
}

// New creates a watcher whose fetches live as long as ctx.
func New(ctx context.Context, fetcher Fetcher, opts ...Option) *Watcher {
	w := &Watcher{
		ctx:     ctx,
		fetcher: fetcher,
		logger:  zap.NewNop(),
		latest:  []model.StakedToken{},
		subs:    make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Set updates params and triggers a fetch when they changed. It returns the
// generation responsible for the params.
func (w *Watcher) Set(params Params) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hasParams && w.params == params {
		return w.generation
	}
	w.params = params
	w.hasParams = true
	return w.triggerLocked()
}

// Refresh refetches with the current params. It is a no-op before the first Set.
func (w *Watcher) Refresh() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasParams {
		return w.generation
	}
	return w.triggerLocked()
}

// Params returns the current params and whether any were set.
func (w *Watcher) Params() (Params, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params, w.hasParams
}

// Latest returns the most recently published list; empty before the first result.
func (w *Watcher) Latest() []model.StakedToken {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.StakedToken, len(w.latest))
	copy(out, w.latest)
	return out
}

// Generation returns the generation of the latest published list.
func (w *Watcher) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}

// Subscribe returns a channel receiving every publication and a cancel func.
// Slow subscribers only observe the newest update.
func (w *Watcher) Subscribe() (<-chan Update, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextSub
	w.nextSub++
	ch := make(chan Update, 1)
	w.subs[id] = ch
	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
}

// Wait blocks until all in-flight fetches finished.
func (w *Watcher) Wait() {
	w.inflight.Wait()
}

func (w *Watcher) triggerLocked() uint64 {
	w.generation++
	gen := w.generation
	params := w.params
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.run(gen, params)
	}()
	return gen
}

func (w *Watcher) run(gen uint64, params Params) {
	ctx := w.ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	// The passes are independent: a failing one must not cancel the other mid-flight.
	var (
		vault, pool []model.StakedToken
		g           errgroup.Group
	)
	g.Go(func() error {
		var err error
		vault, err = w.fetcher.VaultTokens(ctx, params.VaultUnderlying, params.VaultShare, params.Account)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = w.fetcher.StakingPoolTokens(ctx, params.StakingPool, params.Account)
		return err
	})
	if err := g.Wait(); err != nil {
		w.logger.Warn("position fetch failed", zap.Uint64("generation", gen), zap.String("account", params.Account.Hex()), zap.Error(err))
		return
	}

	combined := make([]model.StakedToken, 0, len(vault)+len(pool))
	combined = append(combined, vault...)
	combined = append(combined, pool...)
	w.publish(gen, params, combined)
}

func (w *Watcher) publish(gen uint64, params Params, tokens []model.StakedToken) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		w.logger.Debug("dropping stale positions", zap.Uint64("generation", gen), zap.Uint64("current", w.generation))
		return
	}
	w.latest = tokens
	w.published = gen

	update := Update{Generation: gen, Params: params, Tokens: tokens}
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- update
	}
	w.logger.Info("positions published", zap.Uint64("generation", gen), zap.Int("positions", len(tokens)))
}
