package tokens

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/contracts"
	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
)

// fetchTokenMeta loads decimals, name and symbol in one batch.
// Name and symbol fall back to bytes32 decoding for legacy tokens.
func fetchTokenMeta(ctx context.Context, batcher Batcher, token common.Address, logoURI string) (model.TokenMeta, error) {
	if batcher == nil {
		return model.TokenMeta{}, fmt.Errorf("batcher is nil")
	}
	erc20, err := contracts.ERC20ABI()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	calls := make([]multicall.Call, 0, 3)
	for _, method := range []string{"decimals", "name", "symbol"} {
		call, err := multicall.NewCall(token, erc20, method)
		if err != nil {
			return model.TokenMeta{}, err
		}
		calls = append(calls, call)
	}

	results, err := batcher.TryAggregate(ctx, calls, false)
	if err != nil {
		return model.TokenMeta{}, err
	}
	if len(results) != len(calls) {
		return model.TokenMeta{}, fmt.Errorf("expected %d results, got %d", len(calls), len(results))
	}
	if !results[0].Success {
		return model.TokenMeta{}, fmt.Errorf("decimals call failed")
	}
	decimals, err := contracts.AsUint8(results[0].Value)
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("decimals: %w", err)
	}

	return model.TokenMeta{
		Type:     model.TokenTypeERC20,
		Address:  token.Hex(),
		Decimals: decimals,
		Name:     textResult("name", results[1]),
		Symbol:   textResult("symbol", results[2]),
		LogoURI:  logoURI,
	}, nil
}

func textResult(method string, result multicall.Result) string {
	if result.Success {
		if s, ok := contracts.AsString(result.Value); ok {
			return s
		}
		return ""
	}
	if len(result.Raw) != 32 {
		return ""
	}
	bytes32ABI, err := contracts.ERC20Bytes32ABI()
	if err != nil {
		return ""
	}
	values, err := bytes32ABI.Methods[method].Outputs.Unpack(result.Raw)
	if err != nil || len(values) != 1 {
		return ""
	}
	s, _ := contracts.AsString(values[0])
	return s
}

// fetchLpPair loads token0, token1, reserves and total supply in one required-success batch.
func fetchLpPair(ctx context.Context, batcher Batcher, pair common.Address) (model.LpPair, error) {
	if batcher == nil {
		return model.LpPair{}, fmt.Errorf("batcher is nil")
	}
	pairABI, err := contracts.UniswapV2PairABI()
	if err != nil {
		return model.LpPair{}, fmt.Errorf("parse pair abi: %w", err)
	}

	calls := make([]multicall.Call, 0, 4)
	for _, method := range []string{"token0", "token1", "getReserves", "totalSupply"} {
		call, err := multicall.NewCall(pair, pairABI, method)
		if err != nil {
			return model.LpPair{}, err
		}
		calls = append(calls, call)
	}

	values, err := batcher.Multicall(ctx, calls)
	if err != nil {
		return model.LpPair{}, err
	}
	if len(values) != len(calls) {
		return model.LpPair{}, fmt.Errorf("expected %d values, got %d", len(calls), len(values))
	}

	token0, err := contracts.AsAddress(values[0])
	if err != nil {
		return model.LpPair{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := contracts.AsAddress(values[1])
	if err != nil {
		return model.LpPair{}, fmt.Errorf("token1: %w", err)
	}

	reserve0Raw, err := contracts.Field(values[2], 0)
	if err != nil {
		return model.LpPair{}, fmt.Errorf("reserves: %w", err)
	}
	reserve1Raw, err := contracts.Field(values[2], 1)
	if err != nil {
		return model.LpPair{}, fmt.Errorf("reserves: %w", err)
	}
	reserve0, err := contracts.AsBigInt(reserve0Raw)
	if err != nil {
		return model.LpPair{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := contracts.AsBigInt(reserve1Raw)
	if err != nil {
		return model.LpPair{}, fmt.Errorf("reserve1: %w", err)
	}
	var blockTs uint32
	if tsRaw, err := contracts.Field(values[2], 2); err == nil {
		if ts, ok := tsRaw.(uint32); ok {
			blockTs = ts
		}
	}

	totalSupply, err := contracts.AsBigInt(values[3])
	if err != nil {
		return model.LpPair{}, fmt.Errorf("total supply: %w", err)
	}

	return model.LpPair{
		Token0:             token0,
		Token1:             token1,
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: blockTs,
		TotalSupply:        totalSupply,
	}, nil
}
