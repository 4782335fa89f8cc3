package positions

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/chain/chaintest"
	"stakeScope/internal/contracts"
	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
	"stakeScope/internal/tokens"
)

var (
	multicallAddr = common.HexToAddress("0x000000000000000000000000000000000000ca11")
	chef          = common.HexToAddress("0xc4ef000000000000000000000000000000000001")
	account       = common.HexToAddress("0xacc0000000000000000000000000000000000001")
	wdoge         = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc          = common.HexToAddress("0x2222222222222222222222222222222222222222")
	smallPair     = common.HexToAddress("0x4444444444444444444444444444444444444444")
	pricedPair    = common.HexToAddress("0x5555555555555555555555555555555555555555")
	vaultToken    = common.HexToAddress("0x6666666666666666666666666666666666666666")
	vaultShare    = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[common.Address]decimal.Decimal
	fail   map[common.Address]bool
	calls  int
}

func (f *fakePrices) Prices(_ context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[common.Address]decimal.Decimal)
	for _, token := range tokens {
		if f.fail[token] {
			return nil, errors.New("price api unavailable")
		}
		if p, ok := f.prices[token]; ok {
			out[token] = p
		}
	}
	return out, nil
}

func (f *fakePrices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stake struct {
	token  common.Address
	amount *big.Int
}

func e(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

type fixture struct {
	backend *chaintest.Backend
	cache   *tokens.Cache
	prices  *fakePrices
	svc     *Service
}

func newFixture(t *testing.T, stakes []stake) *fixture {
	t.Helper()
	erc20, err := contracts.ERC20ABI()
	require.NoError(t, err)
	pairABI, err := contracts.UniswapV2PairABI()
	require.NoError(t, err)
	chefABI, err := contracts.MasterChefABI()
	require.NoError(t, err)

	backend := chaintest.New(multicallAddr)
	registerToken := func(addr common.Address, decimals uint8, symbol string) {
		backend.Returns(addr, erc20, "decimals", decimals)
		backend.Returns(addr, erc20, "name", symbol+" Token")
		backend.Returns(addr, erc20, "symbol", symbol)
	}
	registerToken(wdoge, 18, "WDOGE")
	registerToken(usdc, 6, "USDC")
	registerToken(smallPair, 18, "SLP")
	registerToken(pricedPair, 18, "DLP")
	registerToken(vaultToken, 18, "DOGMONEY")
	registerToken(vaultShare, 18, "xDOGMONEY")

	backend.Returns(smallPair, pairABI, "token0", wdoge)
	backend.Returns(smallPair, pairABI, "token1", usdc)
	backend.Returns(smallPair, pairABI, "getReserves", big.NewInt(1000), big.NewInt(2000), uint32(1))
	backend.Returns(smallPair, pairABI, "totalSupply", big.NewInt(500))

	backend.Returns(pricedPair, pairABI, "token0", wdoge)
	backend.Returns(pricedPair, pairABI, "token1", usdc)
	backend.Returns(pricedPair, pairABI, "getReserves", e(10, 18), e(20, 6), uint32(1))
	backend.Returns(pricedPair, pairABI, "totalSupply", e(100, 18))

	backend.Returns(chef, chefABI, "poolLength", big.NewInt(int64(len(stakes))))
	backend.Handle(chef, chefABI, "poolInfo", func(args []interface{}) ([]interface{}, error) {
		idx := args[0].(*big.Int).Int64()
		return []interface{}{stakes[idx].token, big.NewInt(100), big.NewInt(0), big.NewInt(0)}, nil
	})
	backend.Handle(chef, chefABI, "userInfo", func(args []interface{}) ([]interface{}, error) {
		idx := args[0].(*big.Int).Int64()
		if args[1].(common.Address) != account {
			return []interface{}{big.NewInt(0), big.NewInt(0)}, nil
		}
		return []interface{}{stakes[idx].amount, big.NewInt(0)}, nil
	})

	exec := multicall.NewExecutor(backend, multicallAddr)
	cache := tokens.NewCache(exec)
	prices := &fakePrices{
		prices: map[common.Address]decimal.Decimal{},
		fail:   map[common.Address]bool{},
	}
	return &fixture{
		backend: backend,
		cache:   cache,
		prices:  prices,
		svc:     NewService(exec, cache, prices),
	}
}

func TestStakingPoolZeroStakesYieldsNoPositions(t *testing.T) {
	f := newFixture(t, []stake{
		{wdoge, big.NewInt(0)},
		{usdc, big.NewInt(0)},
		{smallPair, big.NewInt(0)},
	})

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	require.Empty(t, balances.Items)
	require.True(t, balances.FiatTotal.IsZero())
	require.Equal(t, 0, f.prices.callCount())
}

func TestStakingPoolEmptyPoolList(t *testing.T) {
	f := newFixture(t, nil)

	positions, err := f.svc.StakingPoolPositions(context.Background(), chef, account)
	require.NoError(t, err)
	require.Empty(t, positions)
	require.Equal(t, 1, f.backend.RoundTrips())
}

func TestStakingPoolNonLpWithoutPrice(t *testing.T) {
	f := newFixture(t, []stake{{wdoge, e(1, 18)}})

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 1)

	item := balances.Items[0]
	require.Equal(t, "1000000000000000000", item.Balance.String())
	require.False(t, item.Fiat.IsPriced())
	require.Nil(t, item.Lp)
	require.True(t, f.cache.IsNonLp(wdoge))

	display := ToStakedToken(item)
	require.Equal(t, "1", display.Balance.TokenBalance)
	require.Equal(t, "0.00", display.Balance.FiatBalance)
	require.Equal(t, model.PriceStatusUnavailable, display.PriceStatus)
	require.Equal(t, model.MissingPriceNote, display.PriceNote)
	require.Equal(t, "0.00", balances.FiatTotal.StringFixed(2))
}

func TestStakingPoolNonLpPriced(t *testing.T) {
	f := newFixture(t, []stake{{usdc, e(250, 6)}})
	f.prices.prices[usdc] = decimal.RequireFromString("1.001")

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 1)
	require.True(t, balances.Items[0].Fiat.IsPriced())
	require.Equal(t, "250.25", balances.Items[0].Fiat.Balance.StringFixed(2))
	require.Equal(t, "250.25", balances.FiatTotal.StringFixed(2))
}

func TestStakingPoolLpProRataReserves(t *testing.T) {
	f := newFixture(t, []stake{{smallPair, big.NewInt(50)}})

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 1)

	lp := balances.Items[0].Lp
	require.NotNil(t, lp)
	require.Equal(t, "100", lp.Reserves[0].String())
	require.Equal(t, "200", lp.Reserves[1].String())
	require.Equal(t, "WDOGE", lp.Token0.Symbol)
	require.Equal(t, "USDC", lp.Token1.Symbol)

	again, err := f.cache.LpTokenInfo(context.Background(), smallPair)
	require.NoError(t, err)
	require.Equal(t, "1000", again.Reserve0.String())
}

func TestStakingPoolLpPricesOneSideDoubled(t *testing.T) {
	f := newFixture(t, []stake{{pricedPair, e(50, 18)}})
	f.prices.prices[usdc] = decimal.NewFromInt(1)

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	item := balances.Items[0]
	require.True(t, item.Fiat.IsPriced())
	// 10 USDC share * 1 * 2
	require.Equal(t, "20.00", item.Fiat.Balance.StringFixed(2))
	require.Equal(t, "0.40", item.Fiat.Conversion.StringFixed(2))

	display := ToStakedToken(item)
	require.True(t, display.IsLpToken)
	require.Equal(t, []string{e(5, 18).String(), e(10, 6).String()}, display.Reserves)
	require.Equal(t, "50", display.Balance.TokenBalance)
	require.Empty(t, display.PriceNote)
}

func TestStakingPoolLpPrefersToken0Price(t *testing.T) {
	f := newFixture(t, []stake{{pricedPair, e(50, 18)}})
	f.prices.prices[wdoge] = decimal.RequireFromString("0.1")
	f.prices.prices[usdc] = decimal.NewFromInt(1)

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	// 5 WDOGE share * 0.1 * 2
	require.Equal(t, "1.00", balances.Items[0].Fiat.Balance.StringFixed(2))
}

func TestNonLpTokenNeverRetriedAsPair(t *testing.T) {
	f := newFixture(t, []stake{{wdoge, e(1, 18)}})
	pairABI, err := contracts.UniswapV2PairABI()
	require.NoError(t, err)
	f.backend.Reverts(wdoge, pairABI, "token0")
	ctx := context.Background()

	_, err = f.svc.StakingPoolBalances(ctx, chef, account)
	require.NoError(t, err)
	_, err = f.svc.StakingPoolBalances(ctx, chef, account)
	require.NoError(t, err)

	require.Equal(t, 1, f.backend.Calls(wdoge, "token0"))
	require.Equal(t, 1, f.backend.Calls(wdoge, "decimals"))
}

func TestCancelledLpLookupIsNotCachedAsNonLp(t *testing.T) {
	f := newFixture(t, []stake{{smallPair, big.NewInt(50)}})
	_, err := f.cache.TokenInfo(context.Background(), smallPair)
	require.NoError(t, err)

	var armed atomic.Bool
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.backend.OnRoundTrip(func(context.Context) {
		if !armed.Load() {
			return
		}
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *model.LpComposition, 1)
	armed.Store(true)
	go func() {
		done <- f.svc.lpComposition(ctx, model.PoolPosition{Token: smallPair, Amount: big.NewInt(50)})
	}()
	<-entered
	cancel()
	require.Nil(t, <-done)
	require.False(t, f.cache.IsNonLp(smallPair))

	armed.Store(false)
	close(release)

	staked, err := f.svc.StakingPoolTokens(context.Background(), chef, account)
	require.NoError(t, err)
	require.Len(t, staked, 1)
	require.True(t, staked[0].IsLpToken)
	require.Equal(t, []string{"100", "200"}, staked[0].Reserves)
}

func TestLpConversionUsesUnroundedFiat(t *testing.T) {
	f := newFixture(t, []stake{{pricedPair, e(50, 18)}})
	f.prices.prices[usdc] = decimal.RequireFromString("0.3333")

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	item := balances.Items[0]
	// 10 USDC share * 0.3333 * 2 = 6.666
	require.Equal(t, "6.67", item.Fiat.Balance.StringFixed(2))
	require.Equal(t, "0.13332", item.Fiat.Conversion.StringFixed(5))
}

func TestPriceFailureIsolatedPerPosition(t *testing.T) {
	f := newFixture(t, []stake{
		{wdoge, e(3, 18)},
		{usdc, big.NewInt(0)},
		{usdc, e(2, 6)},
	})
	f.prices.fail[wdoge] = true
	f.prices.prices[usdc] = decimal.NewFromInt(1)

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 2)

	require.Equal(t, uint64(0), balances.Items[0].PoolIndex)
	require.False(t, balances.Items[0].Fiat.IsPriced())
	require.Equal(t, uint64(2), balances.Items[1].PoolIndex)
	require.Equal(t, "2.00", balances.Items[1].Fiat.Balance.StringFixed(2))
	require.Equal(t, "2.00", balances.FiatTotal.StringFixed(2))
}

func TestUnresolvableTokenStillSurfaces(t *testing.T) {
	unknown := common.HexToAddress("0x9999999999999999999999999999999999999999")
	f := newFixture(t, []stake{{unknown, big.NewInt(42)}})

	balances, err := f.svc.StakingPoolBalances(context.Background(), chef, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 1)
	require.Equal(t, unknown.Hex(), balances.Items[0].Token.Address)
	require.Equal(t, "42", balances.Items[0].Balance.String())
	require.True(t, f.cache.IsNonLp(unknown))
}

func TestVaultZeroSharesShortCircuits(t *testing.T) {
	f := newFixture(t, nil)
	erc20, err := contracts.ERC20ABI()
	require.NoError(t, err)
	f.backend.Returns(vaultShare, erc20, "balanceOf", big.NewInt(0))
	f.backend.Returns(vaultShare, erc20, "totalSupply", e(100, 18))
	f.backend.Returns(vaultToken, erc20, "balanceOf", e(150, 18))

	balances, err := f.svc.VaultBalance(context.Background(), vaultToken, vaultShare, account)
	require.NoError(t, err)
	require.Empty(t, balances.Items)
	require.Equal(t, 1, f.backend.RoundTrips())
	require.Equal(t, 0, f.prices.callCount())
}

func TestVaultBalanceExchangeRate(t *testing.T) {
	f := newFixture(t, nil)
	erc20, err := contracts.ERC20ABI()
	require.NoError(t, err)
	f.backend.Returns(vaultShare, erc20, "balanceOf", e(10, 18))
	f.backend.Returns(vaultShare, erc20, "totalSupply", e(100, 18))
	f.backend.Returns(vaultToken, erc20, "balanceOf", e(150, 18))
	f.prices.prices[vaultToken] = decimal.NewFromInt(2)

	balances, err := f.svc.VaultBalance(context.Background(), vaultToken, vaultShare, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 1)

	item := balances.Items[0]
	require.Equal(t, model.SourceVault, item.Source)
	require.Equal(t, "xDOGMONEY", item.Token.Symbol)
	// 10 shares * 150 / 100 = 15 underlying, at 2 each
	require.Equal(t, "30.00", item.Fiat.Balance.StringFixed(2))
	require.Equal(t, "3.00", item.Fiat.Conversion.StringFixed(2))
	require.Equal(t, "30.00", balances.FiatTotal.StringFixed(2))
	require.Equal(t, "10", ToStakedToken(item).Balance.TokenBalance)
}

func TestVaultBalanceWithoutPrice(t *testing.T) {
	f := newFixture(t, nil)
	erc20, err := contracts.ERC20ABI()
	require.NoError(t, err)
	f.backend.Returns(vaultShare, erc20, "balanceOf", e(10, 18))
	f.backend.Returns(vaultShare, erc20, "totalSupply", e(100, 18))
	f.backend.Returns(vaultToken, erc20, "balanceOf", e(150, 18))

	balances, err := f.svc.VaultBalance(context.Background(), vaultToken, vaultShare, account)
	require.NoError(t, err)
	require.Len(t, balances.Items, 1)
	require.False(t, balances.Items[0].Fiat.IsPriced())
	require.True(t, balances.FiatTotal.IsZero())
}

func TestUnsetAddressesYieldEmptyLists(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pool, err := f.svc.StakingPoolTokens(ctx, common.Address{}, account)
	require.NoError(t, err)
	require.NotNil(t, pool)
	require.Empty(t, pool)

	vault, err := f.svc.VaultTokens(ctx, vaultToken, common.Address{}, account)
	require.NoError(t, err)
	require.NotNil(t, vault)
	require.Empty(t, vault)
	require.Equal(t, 0, f.backend.RoundTrips())
}
