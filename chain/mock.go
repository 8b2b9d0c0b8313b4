package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

// MockChainReader mocks the ChainReader interface
type MockChainReader struct {
	mock.Mock
}

// Read mocks the Read method
func (m *MockChainReader) Read(ctx context.Context, call interfaces.Call) ([]any, error) {
	args := m.Called(ctx, call)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]any), args.Error(1)
}

// BatchRead mocks the BatchRead method
func (m *MockChainReader) BatchRead(ctx context.Context, calls []interfaces.Call) ([]interfaces.CallResult, error) {
	args := m.Called(ctx, calls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.CallResult), args.Error(1)
}

// MockTokenTransactor mocks the TokenTransactor interface
type MockTokenTransactor struct {
	mock.Mock
}

// Factory mocks the Factory method
func (m *MockTokenTransactor) Factory() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

// CanTransact mocks the CanTransact method
func (m *MockTokenTransactor) CanTransact() bool {
	args := m.Called()
	return args.Bool(0)
}

// CreateConfidentialToken mocks the CreateConfidentialToken method
func (m *MockTokenTransactor) CreateConfidentialToken(ctx context.Context, name, symbol string) (*types.Transaction, error) {
	args := m.Called(ctx, name, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

// Freemint mocks the Freemint method
func (m *MockTokenTransactor) Freemint(ctx context.Context, token common.Address) (*types.Transaction, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

// WaitMined mocks the WaitMined method
func (m *MockTokenTransactor) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}
