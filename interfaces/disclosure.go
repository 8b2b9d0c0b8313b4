package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Keypair is single-use key material binding one authorization session.
// It is never persisted and never reused across tokens or sessions.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// AuthorizationPayload is the structured message the holder signs to allow
// disclosure of handles belonging to exactly ContractAddresses.
type AuthorizationPayload struct {
	PublicKey         []byte
	ContractAddresses []common.Address
	StartTimestamp    string
	DurationDays      string

	// TypedData is the EIP-712 representation that is signed.
	TypedData apitypes.TypedData
}

// HandleContractPair names one handle and the contract it belongs to.
type HandleContractPair struct {
	Handle          EncryptedHandle `json:"handle"`
	ContractAddress common.Address  `json:"contractAddress"`
}

// DisclosureRequest carries everything the disclosure service needs to verify
// and answer a user decryption.
type DisclosureRequest struct {
	Handles           []HandleContractPair
	PrivateKey        []byte
	PublicKey         []byte
	Signature         string // hex, without the 0x prefix
	ContractAddresses []common.Address
	HolderAddress     common.Address
	StartTimestamp    string
	DurationDays      string
}

// DisclosureResult maps handles to decimal-string plaintext amounts.
type DisclosureResult map[EncryptedHandle]string

// DisclosureService is the off-chain party able to decrypt handles under a
// valid authorization. GenerateKeypair returns ErrDisclosureServiceUnavailable
// until the service has finished initializing.
type DisclosureService interface {
	GenerateKeypair() (*Keypair, error)
	CreateAuthorization(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays string) (*AuthorizationPayload, error)
	RequestDisclosure(ctx context.Context, req *DisclosureRequest) (DisclosureResult, error)
}

// AuthorizationSigner holds the holder's signing capability.
type AuthorizationSigner interface {
	// Address is the holder identity the signer signs for.
	Address() common.Address

	// SignTypedData returns a 0x-prefixed signature over the EIP-712 hash of
	// typedData, or an error wrapping ErrSignatureDeclined.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error)
}
