// Package chain provides access to the confidential token contracts.
//
// EthReader implements interfaces.ChainReader. Read performs a single
// eth_call; BatchRead packs any number of calls into one Multicall3
// aggregate3 round trip with allowFailure set, so a reverting or undecodable
// call is reported at its position without affecting the rest:
//
//	// ChainReader reads contract state.
//	type ChainReader interface {
//	    Read(ctx context.Context, call Call) ([]any, error)
//	    BatchRead(ctx context.Context, calls []Call) ([]CallResult, error)
//	}
//
// LaunchpadClient implements interfaces.TokenTransactor on top of
// bind.BoundContract: createConfidentialToken on the factory, freemint on a
// token, and WaitMined for receipts. It is read-only until SetTransactOpts is
// called.
//
// # Test doubles
//
// StubChain is an in-memory implementation of both interfaces whose encrypted
// balances can be resolved through Plaintext. MockChainReader and
// MockTokenTransactor are testify mocks.
package chain
