package multicall

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Call describes one read-only contract call inside a batch.
type Call struct {
	Target  common.Address
	Method  string
	Data    []byte
	Outputs abi.Arguments
}

// NewCall packs a method call against target and captures its output types.
func NewCall(target common.Address, contractABI abi.ABI, method string, args ...interface{}) (Call, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return Call{}, fmt.Errorf("method %s not found in abi", method)
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return Call{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return Call{
		Target:  target,
		Method:  method,
		Data:    data,
		Outputs: m.Outputs,
	}, nil
}

// Result is the outcome of one call, aligned with its position in the batch.
type Result struct {
	Success bool
	// Value is the bare value for single-output methods, []interface{} otherwise.
	Value interface{}
	// Raw is the undecoded return data, kept even when decoding failed.
	Raw []byte
}

// decode unpacks return data using the call's own output types.
func (c Call) decode(data []byte) (interface{}, error) {
	if len(c.Outputs) == 0 {
		return nil, nil
	}
	values, err := c.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", c.Method, err)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}
