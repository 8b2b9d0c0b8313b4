package relayer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

// MockDisclosureService mocks the DisclosureService interface
type MockDisclosureService struct {
	mock.Mock
}

// GenerateKeypair mocks the GenerateKeypair method
func (m *MockDisclosureService) GenerateKeypair() (*interfaces.Keypair, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Keypair), args.Error(1)
}

// CreateAuthorization mocks the CreateAuthorization method
func (m *MockDisclosureService) CreateAuthorization(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays string) (*interfaces.AuthorizationPayload, error) {
	args := m.Called(publicKey, contractAddresses, startTimestamp, durationDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.AuthorizationPayload), args.Error(1)
}

// RequestDisclosure mocks the RequestDisclosure method
func (m *MockDisclosureService) RequestDisclosure(ctx context.Context, req *interfaces.DisclosureRequest) (interfaces.DisclosureResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.DisclosureResult), args.Error(1)
}
