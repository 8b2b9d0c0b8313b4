package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

// LaunchpadClient implements interfaces.TokenTransactor for the token factory
// and the confidential tokens it deploys.
type LaunchpadClient struct {
	factory *bind.BoundContract
	client  bind.ContractBackend
	backend bind.DeployBackend
	address common.Address
	auth    *bind.TransactOpts
}

var _ interfaces.TokenTransactor = (*LaunchpadClient)(nil)

// NewLaunchpadClient creates a client for the factory at the specified address.
// It requires a ContractBackend for sending transactions and a DeployBackend
// for waiting on receipts.
func NewLaunchpadClient(client bind.ContractBackend, backend bind.DeployBackend, factory common.Address) *LaunchpadClient {
	return &LaunchpadClient{
		factory: bind.NewBoundContract(factory, *FactoryABI, client, client, client),
		client:  client,
		backend: backend,
		address: factory,
	}
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// This must be called before CreateConfidentialToken or Freemint.
func (c *LaunchpadClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// Factory returns the factory contract address.
func (c *LaunchpadClient) Factory() common.Address {
	return c.address
}

// CanTransact reports whether transaction options are set.
func (c *LaunchpadClient) CanTransact() bool {
	return c.auth != nil
}

// CreateConfidentialToken submits createConfidentialToken(name, symbol) to the factory.
func (c *LaunchpadClient) CreateConfidentialToken(ctx context.Context, name, symbol string) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	return c.factory.Transact(opts, MethodCreateConfidentialToken, name, symbol)
}

// Freemint submits freemint() to the token at the given address.
func (c *LaunchpadClient) Freemint(ctx context.Context, token common.Address) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	contract := bind.NewBoundContract(token, *TokenABI, c.client, c.client, c.client)
	return contract.Transact(opts, MethodFreemint)
}

// WaitMined blocks until tx is included in a block or ctx is done.
func (c *LaunchpadClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}

func (c *LaunchpadClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.auth == nil {
		return nil, interfaces.ErrNoTransactOpts
	}

	opts := *c.auth
	opts.Context = ctx
	return &opts, nil
}
