package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

// KeySigner signs EIP-712 payloads and transactions with a local key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ interfaces.AuthorizationSigner = (*KeySigner)(nil)

// NewKeySigner wraps key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeySignerFromHex parses a hex private key, with or without the 0x prefix.
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// NewKeySignerFromKeystore decrypts a go-ethereum keystore file.
func NewKeySignerFromKeystore(path, password string) (*KeySigner, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}

	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore file: %w", err)
	}
	return NewKeySigner(key.PrivateKey), nil
}

// Address returns the address of the key.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTypedData signs the EIP-712 hash of typedData and returns the 0x-prefixed
// 65-byte signature with a 27/28 recovery id.
func (s *KeySigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSignatureDeclined, err)
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("%w: could not hash typed data: %v", interfaces.ErrSignatureDeclined, err)
	}

	signature, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSignatureDeclined, err)
	}
	signature[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(signature), nil
}

// TransactOpts returns transaction options signing with the key on chainID.
func (s *KeySigner) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(s.key, chainID)
}

// PrivateKeyHex returns the key as 0x-prefixed hex, for storing in a key source.
func (s *KeySigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}
