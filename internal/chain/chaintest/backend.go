// Package chaintest provides an in-memory contract backend that answers
// eth_calls and Multicall2 batches for tests.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/contracts"
)

// ErrReverted is returned for calls the backend cannot answer.
var ErrReverted = errors.New("execution reverted")

// Handler answers a decoded method call with output values in ABI order.
type Handler func(args []interface{}) ([]interface{}, error)

type handler struct {
	method abi.Method
	fn     Handler
}

// Backend dispatches calls by target address and method selector.
type Backend struct {
	mu         sync.Mutex
	multicall  common.Address
	chainID    *big.Int
	handlers   map[common.Address]map[[4]byte]handler
	counts     map[string]int
	roundTrips int
	hook       func(ctx context.Context)
}

// New creates a backend with a Multicall2 contract deployed at multicall.
func New(multicall common.Address) *Backend {
	return &Backend{
		multicall: multicall,
		chainID:   big.NewInt(10000),
		handlers:  make(map[common.Address]map[[4]byte]handler),
		counts:    make(map[string]int),
	}
}

// SetChainID sets the chain ID reported by ChainID.
func (b *Backend) SetChainID(id uint64) {
	b.mu.Lock()
	b.chainID = new(big.Int).SetUint64(id)
	b.mu.Unlock()
}

// OnRoundTrip registers a hook run at the start of every CallContract.
func (b *Backend) OnRoundTrip(hook func(ctx context.Context)) {
	b.mu.Lock()
	b.hook = hook
	b.mu.Unlock()
}

// Handle registers fn for method on target.
func (b *Backend) Handle(target common.Address, contractABI abi.ABI, method string, fn Handler) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: method %s not in abi", method))
	}
	var selector [4]byte
	copy(selector[:], m.ID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[target] == nil {
		b.handlers[target] = make(map[[4]byte]handler)
	}
	b.handlers[target][selector] = handler{method: m, fn: fn}
}

// Returns registers a fixed response for method on target.
func (b *Backend) Returns(target common.Address, contractABI abi.ABI, method string, values ...interface{}) {
	b.Handle(target, contractABI, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// Reverts registers method on target as always failing.
func (b *Backend) Reverts(target common.Address, contractABI abi.ABI, method string) {
	b.Handle(target, contractABI, method, func([]interface{}) ([]interface{}, error) {
		return nil, ErrReverted
	})
}

// RoundTrips reports how many CallContract invocations were served.
func (b *Backend) RoundTrips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roundTrips
}

// Calls reports how many times a registered method was invoked on target, batched or direct.
func (b *Backend) Calls(target common.Address, method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[countKey(target, method)]
}

// ChainID returns the configured chain ID.
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.chainID), nil
}

// CallContract answers an eth_call.
func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, fmt.Errorf("missing call target")
	}

	b.mu.Lock()
	b.roundTrips++
	hook := b.hook
	b.mu.Unlock()

	if hook != nil {
		hook(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	mcABI, err := contracts.Multicall2ABI()
	if err != nil {
		return nil, err
	}
	tryAggregate := mcABI.Methods["tryAggregate"]
	if *msg.To == b.multicall && len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], tryAggregate.ID) {
		return b.aggregate(tryAggregate, msg.Data[4:])
	}
	return b.dispatch(*msg.To, msg.Data)
}

func (b *Backend) aggregate(method abi.Method, input []byte) ([]byte, error) {
	args, err := method.Inputs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	requireSuccess, ok := args[0].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected requireSuccess type %T", args[0])
	}
	calls := *abi.ConvertType(args[1], new([]contracts.MulticallCall)).(*[]contracts.MulticallCall)

	results := make([]contracts.MulticallResult, len(calls))
	for i, call := range calls {
		data, err := b.dispatch(call.Target, call.CallData)
		if err != nil {
			if requireSuccess {
				return nil, fmt.Errorf("%w: Multicall2 aggregate: call failed", ErrReverted)
			}
			continue
		}
		results[i] = contracts.MulticallResult{Success: true, ReturnData: data}
	}
	return method.Outputs.Pack(results)
}

func (b *Backend) dispatch(target common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrReverted
	}
	var selector [4]byte
	copy(selector[:], data[:4])

	b.mu.Lock()
	h, ok := b.handlers[target][selector]
	if ok {
		b.counts[countKey(target, h.method.Name)]++
	}
	b.mu.Unlock()
	if !ok {
		return nil, ErrReverted
	}

	args, err := h.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: bad input: %v", ErrReverted, err)
	}
	values, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(values...)
}

func countKey(target common.Address, method string) string {
	return target.Hex() + ":" + method
}
