package relayer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/nacl/box"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

const (
	secondsPerDay   = 24 * 60 * 60
	maxDurationDays = 365
)

// PlaintextLookup resolves a handle of contract to its decimal plaintext.
type PlaintextLookup func(contract common.Address, handle interfaces.EncryptedHandle) (string, bool)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Domain           Domain
	ContractsChainID *big.Int
	Log              *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Gateway is an in-process relayer serving the same HTTP API the Client
// consumes. It enforces the authorization rules of the real service: the
// signature must recover to the user address over exactly the submitted
// contract set, every handle must belong to an authorized contract, and the
// validity window must cover the current time.
type Gateway struct {
	cfg    *GatewayConfig
	lookup PlaintextLookup
	log    *slog.Logger
}

// NewGateway creates a gateway answering decryptions from lookup.
func NewGateway(cfg *GatewayConfig, lookup PlaintextLookup) *Gateway {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{
		cfg:    cfg,
		lookup: lookup,
		log:    cfg.Log,
	}
}

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Get(configPath, g.handleConfig)
	mux.Post(userDecryptPath, g.handleUserDecrypt)
	return mux
}

func (g *Gateway) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&g.cfg.Domain); err != nil {
		g.log.Error("failed to encode config", "err", err)
	}
}

func (g *Gateway) handleUserDecrypt(w http.ResponseWriter, r *http.Request) {
	var req UserDecryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ContractsChainID != g.cfg.ContractsChainID.String() {
		http.Error(w, "unsupported contracts chain id", http.StatusBadRequest)
		return
	}

	publicKey, err := hex.DecodeString(strings.TrimPrefix(req.PublicKey, "0x"))
	if err != nil || len(publicKey) != keySize {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}

	authorized := make(map[common.Address]struct{}, len(req.ContractAddresses))
	for _, contract := range req.ContractAddresses {
		authorized[contract] = struct{}{}
	}
	for _, pair := range req.HandleContractPairs {
		if _, ok := authorized[pair.ContractAddress]; !ok {
			http.Error(w, "contract not authorized: "+pair.ContractAddress.Hex(), http.StatusForbidden)
			return
		}
	}

	if !g.withinValidity(req.RequestValidity) {
		http.Error(w, "request validity window does not cover current time", http.StatusForbidden)
		return
	}

	typedData := NewUserDecryptTypedData(g.cfg.Domain, publicKey, req.ContractAddresses, req.RequestValidity.StartTimestamp, req.RequestValidity.DurationDays)
	signer, err := RecoverSigner(typedData, req.Signature)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if signer != req.UserAddress {
		g.log.Warn("signature does not match user", "signer", signer.Hex(), "user", req.UserAddress.Hex())
		http.Error(w, "signature does not match user address", http.StatusForbidden)
		return
	}

	var recipient [keySize]byte
	copy(recipient[:], publicKey)

	resp := UserDecryptResponse{Response: make([]SealedValue, 0, len(req.HandleContractPairs))}
	for _, pair := range req.HandleContractPairs {
		plaintext, ok := g.lookup(pair.ContractAddress, pair.Handle)
		if !ok {
			continue
		}
		sealed, err := box.SealAnonymous(nil, []byte(plaintext), &recipient, rand.Reader)
		if err != nil {
			g.log.Error("failed to seal plaintext", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		resp.Response = append(resp.Response, SealedValue{
			Handle:  pair.Handle,
			Payload: base64.StdEncoding.EncodeToString(sealed),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		g.log.Error("failed to encode response", "err", err)
	}
}

func (g *Gateway) withinValidity(validity RequestValidity) bool {
	start, ok := new(big.Int).SetString(validity.StartTimestamp, 10)
	if !ok || !start.IsInt64() {
		return false
	}
	days, ok := new(big.Int).SetString(validity.DurationDays, 10)
	if !ok || days.Sign() <= 0 || days.Cmp(big.NewInt(maxDurationDays)) > 0 {
		return false
	}

	now := g.cfg.Now().Unix()
	end := start.Int64() + days.Int64()*secondsPerDay
	return start.Int64() <= now && now < end
}
