package relayer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
	"golang.org/x/crypto/nacl/box"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

const (
	configPath      = "/v1/config"
	userDecryptPath = "/v1/user-decrypt"

	keySize = 32
)

// ErrInvalidKeypair is returned when a disclosure request carries keys of the wrong size.
var ErrInvalidKeypair = errors.New("keypair must hold 32-byte public and private keys")

// Config configures the relayer client.
type Config struct {
	// URL is the base URL of the relayer.
	URL string

	// ContractsChainID is the chain the token contracts live on.
	ContractsChainID *big.Int

	// Timeout bounds every HTTP request. Zero means 30 seconds.
	Timeout time.Duration
}

// Client implements interfaces.DisclosureService over the relayer HTTP API.
// It is unusable until Initialize has fetched the relayer configuration.
type Client struct {
	url              string
	contractsChainID *big.Int
	httpClient       *http.Client
	log              *slog.Logger

	ready  atomic.Bool
	mutex  sync.RWMutex
	domain Domain
}

var _ interfaces.DisclosureService = (*Client)(nil)

// NewClient creates an uninitialized relayer client.
func NewClient(cfg *Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		url:              strings.TrimSuffix(cfg.URL, "/"),
		contractsChainID: new(big.Int).Set(cfg.ContractsChainID),
		httpClient:       &http.Client{Timeout: timeout},
		log:              log,
	}
}

// Initialize fetches the EIP-712 domain from the relayer and marks the client ready.
func (c *Client) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+configPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not request relayer config: %v", interfaces.ErrDisclosureServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "relayer config"); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrDisclosureServiceUnavailable, err)
	}

	var domain Domain
	if err := json.NewDecoder(resp.Body).Decode(&domain); err != nil {
		return fmt.Errorf("%w: could not parse relayer config: %v", interfaces.ErrDisclosureServiceUnavailable, err)
	}
	if domain.ChainID == nil || domain.VerifyingContract == (common.Address{}) {
		return fmt.Errorf("%w: incomplete relayer config", interfaces.ErrDisclosureServiceUnavailable)
	}

	c.mutex.Lock()
	c.domain = domain
	c.mutex.Unlock()
	c.ready.Store(true)

	c.log.Info("relayer initialized", "url", c.url, "chainId", domain.ChainID.String(), "verifyingContract", domain.VerifyingContract.Hex())
	return nil
}

// IsReady reports whether Initialize has completed.
func (c *Client) IsReady() bool {
	return c.ready.Load()
}

// GenerateKeypair returns a fresh curve25519 keypair for one disclosure session.
func (c *Client) GenerateKeypair() (*interfaces.Keypair, error) {
	if !c.ready.Load() {
		return nil, interfaces.ErrDisclosureServiceUnavailable
	}

	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("could not generate keypair: %w", err)
	}

	return &interfaces.Keypair{
		PublicKey:  publicKey[:],
		PrivateKey: privateKey[:],
	}, nil
}

// CreateAuthorization builds the authorization payload for contractAddresses.
// The returned payload holds its own copy of the address slice.
func (c *Client) CreateAuthorization(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays string) (*interfaces.AuthorizationPayload, error) {
	if !c.ready.Load() {
		return nil, interfaces.ErrDisclosureServiceUnavailable
	}

	c.mutex.RLock()
	domain := c.domain
	c.mutex.RUnlock()

	contracts := append([]common.Address(nil), contractAddresses...)
	return &interfaces.AuthorizationPayload{
		PublicKey:         append([]byte(nil), publicKey...),
		ContractAddresses: contracts,
		StartTimestamp:    startTimestamp,
		DurationDays:      durationDays,
		TypedData:         NewUserDecryptTypedData(domain, publicKey, contracts, startTimestamp, durationDays),
	}, nil
}

// UserDecryptRequest is the body of POST /v1/user-decrypt.
type UserDecryptRequest struct {
	HandleContractPairs []interfaces.HandleContractPair `json:"handleContractPairs"`
	RequestValidity     RequestValidity                 `json:"requestValidity"`
	ContractsChainID    string                          `json:"contractsChainId"`
	ContractAddresses   []common.Address                `json:"contractAddresses"`
	UserAddress         common.Address                  `json:"userAddress"`
	Signature           string                          `json:"signature"`
	PublicKey           string                          `json:"publicKey"`
}

type RequestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

// UserDecryptResponse is the body returned by POST /v1/user-decrypt.
type UserDecryptResponse struct {
	Response []SealedValue `json:"response"`
}

// SealedValue carries one plaintext sealed to the session public key.
type SealedValue struct {
	Handle  interfaces.EncryptedHandle `json:"handle"`
	Payload string                     `json:"payload"`
}

// RequestDisclosure submits a signed user decryption request and opens the
// sealed plaintexts with the session private key.
func (c *Client) RequestDisclosure(ctx context.Context, req *interfaces.DisclosureRequest) (interfaces.DisclosureResult, error) {
	if !c.ready.Load() {
		return nil, interfaces.ErrDisclosureServiceUnavailable
	}

	publicKey, privateKey, err := toBoxKeys(req.PublicKey, req.PrivateKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(&UserDecryptRequest{
		HandleContractPairs: req.Handles,
		RequestValidity: RequestValidity{
			StartTimestamp: req.StartTimestamp,
			DurationDays:   req.DurationDays,
		},
		ContractsChainID:  c.contractsChainID.String(),
		ContractAddresses: req.ContractAddresses,
		UserAddress:       req.HolderAddress,
		Signature:         req.Signature,
		PublicKey:         hex.EncodeToString(req.PublicKey),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+userDecryptPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not request user decryption: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "user decryption"); err != nil {
		return nil, err
	}

	var parsed UserDecryptResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse user decryption response: %w", err)
	}

	result := make(interfaces.DisclosureResult, len(parsed.Response))
	for _, value := range parsed.Response {
		sealed, err := base64.StdEncoding.DecodeString(value.Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid payload for handle %s: %w", value.Handle, err)
		}
		plaintext, ok := box.OpenAnonymous(nil, sealed, publicKey, privateKey)
		if !ok {
			return nil, fmt.Errorf("could not open payload for handle %s", value.Handle)
		}
		result[value.Handle] = string(plaintext)
	}

	c.log.Debug("user decryption completed", "handles", len(req.Handles), "values", len(result), "holder", req.HolderAddress.Hex())
	return result, nil
}

func toBoxKeys(publicKey, privateKey []byte) (*[keySize]byte, *[keySize]byte, error) {
	if len(publicKey) != keySize || len(privateKey) != keySize {
		return nil, nil, ErrInvalidKeypair
	}

	var pub, priv [keySize]byte
	copy(pub[:], publicKey)
	copy(priv[:], privateKey)
	return &pub, &priv, nil
}

func checkStatus(resp *http.Response, endpoint string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("%s endpoint returned non-200 response: %d", endpoint, resp.StatusCode)
	}
	return fmt.Errorf("%s endpoint returned error %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}
