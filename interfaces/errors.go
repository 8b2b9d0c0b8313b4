package interfaces

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the aggregator, the disclosure coordinator and the
// mutation manager. Causes are attached with fmt.Errorf("%w: %v", ...) so
// callers can branch with errors.Is.
var (
	// ErrRegistryUnavailable is returned when the token identity list cannot be read.
	ErrRegistryUnavailable = errors.New("token registry unavailable")

	// ErrNotAuthenticated is returned when no holder identity is available.
	ErrNotAuthenticated = errors.New("no holder identity available")

	// ErrChainRead is returned when reading an encrypted handle fails.
	ErrChainRead = errors.New("chain read failed")

	// ErrDisclosureServiceUnavailable is returned while the disclosure service is not initialized.
	ErrDisclosureServiceUnavailable = errors.New("disclosure service unavailable")

	// ErrSignatureDeclined is returned when the holder has no signer or refuses to sign.
	ErrSignatureDeclined = errors.New("authorization signature declined")

	// ErrDisclosureRequestFailed is returned when the disclosure call fails or returns malformed data.
	ErrDisclosureRequestFailed = errors.New("disclosure request failed")

	// ErrMutationRejected is returned when a mutation fails validation before submission.
	ErrMutationRejected = errors.New("mutation rejected")

	// ErrMutationReverted is returned when a submitted transaction fails on-chain.
	ErrMutationReverted = errors.New("mutation reverted")

	// ErrMutationInFlight is returned when the same action already has a mutation in flight.
	ErrMutationInFlight = fmt.Errorf("%w: a mutation for this action is already in flight", ErrMutationRejected)

	// ErrNoTransactOpts is returned when a transaction is attempted without transaction options.
	ErrNoTransactOpts = errors.New("no authorized transactor available")

	// ErrInvalidHandle is returned when a hex string does not decode to a 32-byte handle.
	ErrInvalidHandle = errors.New("invalid encrypted handle: must be 32 bytes")
)
