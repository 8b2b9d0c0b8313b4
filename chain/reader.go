package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

var (
	// ErrCallReverted is attached to batch results whose call failed inside the multicall.
	ErrCallReverted = errors.New("call reverted")

	// ErrBatchMismatch is returned when the multicall returns a different number of results than calls.
	ErrBatchMismatch = errors.New("multicall result count mismatch")
)

// EthReader implements interfaces.ChainReader on top of eth_call. Batched
// reads are sent as a single Multicall3 aggregate3 call with allowFailure set
// on every sub-call.
type EthReader struct {
	caller    bind.ContractCaller
	multicall common.Address
	log       *slog.Logger
}

var _ interfaces.ChainReader = (*EthReader)(nil)

// NewEthReader creates a reader using caller for eth_call and the Multicall3
// contract at multicall for batched reads.
func NewEthReader(caller bind.ContractCaller, multicall common.Address, log *slog.Logger) *EthReader {
	return &EthReader{
		caller:    caller,
		multicall: multicall,
		log:       log,
	}
}

// Read packs the call, executes it against the latest block and unpacks the outputs.
func (r *EthReader) Read(ctx context.Context, call interfaces.Call) ([]any, error) {
	input, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("could not pack %s: %w", call.Method, err)
	}

	output, err := r.callContract(ctx, call.Contract, input)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", call.Method, call.Contract.Hex(), err)
	}

	return call.ABI.Unpack(call.Method, output)
}

// BatchRead executes all calls in one aggregate3 round trip. A call that cannot
// be packed, reverts, or returns data that does not unpack is reported as a
// CallFailure at its position; the remaining calls are unaffected.
func (r *EthReader) BatchRead(ctx context.Context, calls []interfaces.Call) ([]interfaces.CallResult, error) {
	results := make([]interfaces.CallResult, len(calls))
	if len(calls) == 0 {
		return results, nil
	}

	packed := make([]multicallCall, 0, len(calls))
	positions := make([]int, 0, len(calls))
	for i, call := range calls {
		input, err := call.ABI.Pack(call.Method, call.Args...)
		if err != nil {
			results[i] = interfaces.CallResult{Status: interfaces.CallFailure, Err: fmt.Errorf("could not pack %s: %w", call.Method, err)}
			continue
		}
		packed = append(packed, multicallCall{Target: call.Contract, AllowFailure: true, CallData: input})
		positions = append(positions, i)
	}

	if len(packed) == 0 {
		return results, nil
	}

	input, err := MulticallABI.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("could not pack aggregate3: %w", err)
	}

	output, err := r.callContract(ctx, r.multicall, input)
	if err != nil {
		return nil, fmt.Errorf("multicall failed: %w", err)
	}

	unpacked, err := MulticallABI.Unpack("aggregate3", output)
	if err != nil {
		return nil, fmt.Errorf("could not unpack aggregate3: %w", err)
	}
	decoded := *abi.ConvertType(unpacked[0], new([]multicallResult)).(*[]multicallResult)

	if len(decoded) != len(packed) {
		return nil, fmt.Errorf("%w: sent %d calls, got %d results", ErrBatchMismatch, len(packed), len(decoded))
	}

	for j, res := range decoded {
		i := positions[j]
		call := calls[i]
		if !res.Success {
			results[i] = interfaces.CallResult{Status: interfaces.CallFailure, Err: fmt.Errorf("%w: %s on %s", ErrCallReverted, call.Method, call.Contract.Hex())}
			continue
		}

		values, err := call.ABI.Unpack(call.Method, res.ReturnData)
		if err != nil {
			results[i] = interfaces.CallResult{Status: interfaces.CallFailure, Err: fmt.Errorf("could not unpack %s: %w", call.Method, err)}
			continue
		}
		results[i] = interfaces.CallResult{Status: interfaces.CallSuccess, Result: values}
	}

	r.log.Debug("batched read completed", "calls", len(calls), "multicall", r.multicall.Hex())
	return results, nil
}

func (r *EthReader) callContract(ctx context.Context, contract common.Address, input []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &contract, Data: input}
	output, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, err
	}

	// Mirror bind.BoundContract: empty output from an address without code is ErrNoCode.
	if len(output) == 0 {
		code, err := r.caller.CodeAt(ctx, contract, nil)
		if err != nil {
			return nil, err
		}
		if len(code) == 0 {
			return nil, bind.ErrNoCode
		}
	}
	return output, nil
}
