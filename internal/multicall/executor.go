package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"stakeScope/internal/contracts"
)

// ErrCallFailed is returned when a call fails or cannot be decoded inside a batch
// that requires success, including when the contract reverts the whole batch.
var ErrCallFailed = errors.New("multicall: call failed")

// DefaultCallTimeout bounds one batch round trip unless WithCallTimeout overrides it.
const DefaultCallTimeout = 15 * time.Second

// DefaultAddresses maps chain IDs to deployed Multicall2 contracts.
var DefaultAddresses = map[uint64]common.Address{
	10000: common.HexToAddress("0x3718e9C405D0bC779870355C34fb5624196A1cAA"),
	10001: common.HexToAddress("0xAF15A45d934a83b95daCFEbaACCaED8cF97e8200"),
}

// Caller performs an eth_call.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainIDSource reports the connected chain ID.
type ChainIDSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// ResolveAddress picks the Multicall2 address for the connected chain, preferring overrides.
func ResolveAddress(ctx context.Context, src ChainIDSource, overrides map[uint64]common.Address) (common.Address, error) {
	id, err := src.ChainID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("get chain id: %w", err)
	}
	if !id.IsUint64() {
		return common.Address{}, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	if addr, ok := overrides[id.Uint64()]; ok {
		return addr, nil
	}
	if addr, ok := DefaultAddresses[id.Uint64()]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("no multicall address configured for chain %d", id.Uint64())
}

// Option configures an Executor.
type Option func(*Executor)

// WithCallTimeout bounds every batch round trip. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor batches read-only calls through Multicall2.tryAggregate.
type Executor struct {
	caller  Caller
	address common.Address
	timeout time.Duration
	logger  *zap.Logger
}

func NewExecutor(caller Caller, address common.Address, opts ...Option) *Executor {
	e := &Executor{
		caller:  caller,
		address: address,
		timeout: DefaultCallTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address returns the Multicall2 contract address in use.
func (e *Executor) Address() common.Address {
	return e.address
}

// TryAggregate executes calls in a single round trip. The result has one entry per call, in order.
// With requireSuccess any failed or undecodable call fails the whole batch.
func (e *Executor) TryAggregate(ctx context.Context, calls []Call, requireSuccess bool) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}
	if e.caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}

	mcABI, err := contracts.Multicall2ABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}

	requests := make([]contracts.MulticallCall, len(calls))
	for i, call := range calls {
		requests[i] = contracts.MulticallCall{Target: call.Target, CallData: call.Data}
	}
	data, err := mcABI.Pack("tryAggregate", requireSuccess, requests)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	to := e.address
	resp, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		// Multicall2 reverts the whole batch when a required call fails.
		if requireSuccess && isRevert(err) {
			return nil, fmt.Errorf("%w: tryAggregate reverted: %w", ErrCallFailed, err)
		}
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	values, err := mcABI.Unpack("tryAggregate", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("tryAggregate return size %d", len(values))
	}
	raw := *abi.ConvertType(values[0], new([]contracts.MulticallResult)).(*[]contracts.MulticallResult)
	if len(raw) != len(calls) {
		return nil, fmt.Errorf("tryAggregate returned %d results for %d calls", len(raw), len(calls))
	}

	results := make([]Result, len(calls))
	for i, item := range raw {
		results[i] = Result{Raw: item.ReturnData}
		if !item.Success {
			if requireSuccess {
				return nil, fmt.Errorf("%w: %s on %s", ErrCallFailed, calls[i].Method, calls[i].Target.Hex())
			}
			continue
		}
		value, err := calls[i].decode(item.ReturnData)
		if err != nil {
			if requireSuccess {
				return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
			}
			e.logger.Debug("multicall decode failed", zap.String("target", calls[i].Target.Hex()), zap.Error(err))
			continue
		}
		results[i].Success = true
		results[i].Value = value
	}

	e.logger.Debug("multicall batch",
		zap.Int("calls", len(calls)),
		zap.Bool("require_success", requireSuccess),
		zap.Duration("elapsed", time.Since(start)),
	)

	return results, nil
}

// Multicall executes calls requiring success and returns only the decoded values.
func (e *Executor) Multicall(ctx context.Context, calls []Call) ([]interface{}, error) {
	results, err := e.TryAggregate(ctx, calls, true)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(results))
	for i, r := range results {
		values[i] = r.Value
	}
	return values, nil
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
