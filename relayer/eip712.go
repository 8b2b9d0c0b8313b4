package relayer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 domain and type of the user decryption authorization.
const (
	DomainName    = "Decryption"
	DomainVersion = "1"
	PrimaryType   = "UserDecryptRequestVerification"
)

// Domain identifies the contract verifying user decryption signatures.
type Domain struct {
	ChainID           *big.Int       `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// NewUserDecryptTypedData builds the typed data a holder signs to authorize
// decryption of handles belonging to contracts.
func NewUserDecryptTypedData(domain Domain, publicKey []byte, contracts []common.Address, startTimestamp, durationDays string) apitypes.TypedData {
	addresses := make([]interface{}, len(contracts))
	for i, contract := range contracts {
		addresses[i] = contract.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(publicKey),
			"contractAddresses": addresses,
			"startTimestamp":    startTimestamp,
			"durationDays":      durationDays,
		},
	}
}

// RecoverSigner returns the address that produced signature over typedData.
// The signature is hex encoded, with or without the 0x prefix, and may use
// either the 0/1 or the 27/28 recovery id convention.
func RecoverSigner(typedData apitypes.TypedData, signature string) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return common.Address{}, fmt.Errorf("could not hash typed data: %w", err)
	}

	sig, err := hexutil.Decode(ensureHexPrefix(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("could not recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

func ensureHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s
	}
	return "0x" + s
}
