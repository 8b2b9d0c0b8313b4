package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call describes a single read-only contract call.
type Call struct {
	Contract common.Address
	ABI      *abi.ABI
	Method   string
	Args     []any
}

// CallStatus tags the outcome of one call inside a batched read.
type CallStatus int

const (
	CallSuccess CallStatus = iota
	CallFailure
)

func (s CallStatus) String() string {
	switch s {
	case CallSuccess:
		return "success"
	case CallFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// CallResult is the tagged outcome of one call in a batch: either
// {Status: CallSuccess, Result} or {Status: CallFailure, Err}.
type CallResult struct {
	Status CallStatus
	Result []any
	Err    error
}

// ChainReader provides read-only access to contract state.
type ChainReader interface {
	// Read performs a single call and returns the unpacked outputs.
	Read(ctx context.Context, call Call) ([]any, error)

	// BatchRead performs all calls in one round trip. Individual call failures
	// do not abort the batch; results are aligned positionally with calls.
	// An error is returned only when the batch itself could not be executed.
	BatchRead(ctx context.Context, calls []Call) ([]CallResult, error)
}

// TokenTransactor is the write surface of the factory and token contracts.
type TokenTransactor interface {
	// Factory returns the address of the token factory contract.
	Factory() common.Address

	// CanTransact reports whether transaction options (a signer) are configured.
	CanTransact() bool

	CreateConfidentialToken(ctx context.Context, name, symbol string) (*types.Transaction, error)
	Freemint(ctx context.Context, token common.Address) (*types.Transaction, error)

	// WaitMined blocks until the transaction is included in a block.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}
