package interfaces

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Fallback metadata used when a per-token field could not be read.
const (
	DefaultTokenName   = "Confidential Token"
	DefaultTokenSymbol = "CTK"
)

// EncryptedHandle is the opaque 32-byte reference to a ciphertext stored on-chain.
// Only the disclosure service can resolve it, and only under a valid authorization.
type EncryptedHandle [32]byte

// IsEmpty reports whether the handle is the chain's "never assigned" sentinel.
func (h EncryptedHandle) IsEmpty() bool {
	return h == EncryptedHandle{}
}

// Hex returns the 0x-prefixed hex encoding of the handle.
func (h EncryptedHandle) Hex() string {
	return hexutil.Encode(h[:])
}

func (h EncryptedHandle) String() string {
	return h.Hex()
}

// MarshalText implements encoding.TextMarshaler so handles can be used as JSON map keys.
func (h EncryptedHandle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *EncryptedHandle) UnmarshalText(input []byte) error {
	parsed, err := NewEncryptedHandleFromHex(string(input))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// NewEncryptedHandleFromHex parses a 0x-prefixed (or bare) 64-character hex string.
func NewEncryptedHandleFromHex(s string) (EncryptedHandle, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return EncryptedHandle{}, err
	}
	if len(raw) != 32 {
		return EncryptedHandle{}, ErrInvalidHandle
	}
	var h EncryptedHandle
	copy(h[:], raw)
	return h, nil
}

// TokenIdentity is produced once by the factory when a token is created.
type TokenIdentity struct {
	Address common.Address `json:"address"`
	Creator common.Address `json:"creator"`

	// CreatedAt is the creation time in unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (t TokenIdentity) CreatedTime() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// TokenMetadata holds the per-token fields read from the token contract.
type TokenMetadata struct {
	Name              string   `json:"name"`
	Symbol            string   `json:"symbol"`
	FreemintAllowance *big.Int `json:"freemintAllowance"`
}

// DefaultTokenMetadata returns the metadata substituted for unreadable fields.
func DefaultTokenMetadata() TokenMetadata {
	return TokenMetadata{
		Name:              DefaultTokenName,
		Symbol:            DefaultTokenSymbol,
		FreemintAllowance: new(big.Int),
	}
}

// TokenRecord is the externally visible merge of identity and metadata.
// Metadata fields are always populated, falling back to DefaultTokenMetadata.
type TokenRecord struct {
	TokenIdentity
	TokenMetadata
}

// IsCreator reports whether holder created the token.
func (r TokenRecord) IsCreator(holder common.Address) bool {
	return strings.EqualFold(r.Creator.Hex(), holder.Hex())
}

// FormattedAllowance renders the freemint allowance with the given decimal precision.
func (r TokenRecord) FormattedAllowance(decimals int) string {
	return FormatAmount(r.FreemintAllowance, decimals)
}
