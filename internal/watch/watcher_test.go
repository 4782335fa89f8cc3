package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
)

type gatedFetcher struct {
	mu    sync.Mutex
	gates map[common.Address]chan struct{}
	fail  map[common.Address]bool
	calls int
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: map[common.Address]chan struct{}{}, fail: map[common.Address]bool{}}
}

func (f *gatedFetcher) gate(account common.Address) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[account] = ch
	f.mu.Unlock()
	return ch
}

func (f *gatedFetcher) wait(ctx context.Context, account common.Address) error {
	f.mu.Lock()
	f.calls++
	ch := f.gates[account]
	failing := f.fail[account]
	f.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failing {
		return errors.New("rpc down")
	}
	return nil
}

func (f *gatedFetcher) StakingPoolTokens(ctx context.Context, pool, account common.Address) ([]model.StakedToken, error) {
	if err := f.wait(ctx, account); err != nil {
		return nil, err
	}
	return []model.StakedToken{{Source: model.SourceStakingPool, Contract: pool.Hex(), Balance: model.TokenBalance{TokenBalance: account.Hex()}}}, nil
}

func (f *gatedFetcher) VaultTokens(ctx context.Context, underlying, share, account common.Address) ([]model.StakedToken, error) {
	if err := f.wait(ctx, account); err != nil {
		return nil, err
	}
	return []model.StakedToken{{Source: model.SourceVault, Contract: share.Hex(), Balance: model.TokenBalance{TokenBalance: account.Hex()}}}, nil
}

var (
	poolAddr  = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
	shareAddr = common.HexToAddress("0x0000000000000000000000000000000000000d0d")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func params(account common.Address) Params {
	return Params{StakingPool: poolAddr, VaultShare: shareAddr, Account: account}
}

func TestLatestEmptyBeforeFirstResult(t *testing.T) {
	w := New(context.Background(), newGatedFetcher())
	latest := w.Latest()
	require.NotNil(t, latest)
	require.Empty(t, latest)
	require.Equal(t, uint64(0), w.Refresh())
}

func TestVaultPositionsComeFirst(t *testing.T) {
	w := New(context.Background(), newGatedFetcher())
	gen := w.Set(params(alice))
	w.Wait()

	latest := w.Latest()
	require.Len(t, latest, 2)
	require.Equal(t, model.SourceVault, latest[0].Source)
	require.Equal(t, model.SourceStakingPool, latest[1].Source)
	require.Equal(t, gen, w.Generation())
}

func TestStaleGenerationDropped(t *testing.T) {
	f := newGatedFetcher()
	aliceGate := f.gate(alice)
	w := New(context.Background(), f)

	ch, cancel := w.Subscribe()
	defer cancel()

	w.Set(params(alice))
	bobGen := w.Set(params(bob))

	update := <-ch
	require.Equal(t, bobGen, update.Generation)
	require.Equal(t, bob.Hex(), update.Tokens[0].Balance.TokenBalance)

	close(aliceGate)
	w.Wait()

	latest := w.Latest()
	require.Len(t, latest, 2)
	for _, tok := range latest {
		require.Equal(t, bob.Hex(), tok.Balance.TokenBalance)
	}
	require.Equal(t, bobGen, w.Generation())
}

func TestSetSameParamsDoesNotRefetch(t *testing.T) {
	f := newGatedFetcher()
	w := New(context.Background(), f)
	first := w.Set(params(alice))
	w.Wait()
	require.Equal(t, first, w.Set(params(alice)))
	w.Wait()
	require.Equal(t, 2, f.calls)

	require.Equal(t, first+1, w.Refresh())
	w.Wait()
	require.Equal(t, 4, f.calls)
}

func TestFailedPassKeepsPreviousList(t *testing.T) {
	f := newGatedFetcher()
	w := New(context.Background(), f)
	gen := w.Set(params(alice))
	w.Wait()

	f.mu.Lock()
	f.fail[bob] = true
	f.mu.Unlock()
	w.Set(params(bob))
	w.Wait()

	latest := w.Latest()
	require.Len(t, latest, 2)
	require.Equal(t, alice.Hex(), latest[0].Balance.TokenBalance)
	require.Equal(t, gen, w.Generation())
}

func TestPassTimeout(t *testing.T) {
	f := newGatedFetcher()
	f.gate(alice)
	w := New(context.Background(), f, WithPassTimeout(20*time.Millisecond))
	w.Set(params(alice))
	w.Wait()
	require.Empty(t, w.Latest())
	require.Equal(t, uint64(0), w.Generation())
}

type splitFetcher struct {
	release  chan struct{}
	poolErrs chan error
}

func (f *splitFetcher) VaultTokens(context.Context, common.Address, common.Address, common.Address) ([]model.StakedToken, error) {
	return nil, errors.New("vault share reverted")
}

func (f *splitFetcher) StakingPoolTokens(ctx context.Context, _, _ common.Address) ([]model.StakedToken, error) {
	<-f.release
	f.poolErrs <- ctx.Err()
	return []model.StakedToken{}, nil
}

func TestFailedVaultPassDoesNotCancelStakingPool(t *testing.T) {
	f := &splitFetcher{release: make(chan struct{}), poolErrs: make(chan error, 1)}
	w := New(context.Background(), f)
	w.Set(params(alice))

	// Give the vault pass time to fail before the pool pass resumes.
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	w.Wait()

	require.NoError(t, <-f.poolErrs)
	require.Equal(t, uint64(0), w.Generation())
}
