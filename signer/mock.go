package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/mock"
)

// MockAuthorizationSigner mocks the AuthorizationSigner interface
type MockAuthorizationSigner struct {
	mock.Mock
}

// Address mocks the Address method
func (m *MockAuthorizationSigner) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

// SignTypedData mocks the SignTypedData method
func (m *MockAuthorizationSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	args := m.Called(ctx, typedData)
	return args.String(0), args.Error(1)
}
