package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

const vaultKeyField = "private_key"

var (
	ErrKeyNotFound = errors.New("signer key not found")
	ErrVaultFormat = errors.New("invalid data format in Vault response")
)

// VaultKeySource reads and writes the holder key in a HashiCorp Vault KV v2 mount.
type VaultKeySource struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultKeySource creates a key source authenticated with a Vault token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token with read access to the key path
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path of the key within the mount (e.g. "launchpad/signer")
//   - log: Structured logger
func NewVaultKeySource(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultKeySource, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultKeySource{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

func (v *VaultKeySource) path() string {
	return fmt.Sprintf("%s/data/%s", v.mountPath, v.dataPath)
}

// Signer fetches the key and returns a signer for it.
func (v *VaultKeySource) Signer(ctx context.Context) (*KeySigner, error) {
	start := time.Now()
	path := v.path()

	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		v.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("failed to read signer key: %w", err)
	}

	if secret == nil || secret.Data == nil {
		v.log.Debug("Signer key not found in Vault", slog.String("path", path))
		return nil, ErrKeyNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, ErrVaultFormat
	}

	hexKey, ok := data[vaultKeyField].(string)
	if !ok {
		v.log.Error("Key field not found in Vault data", slog.String("path", path))
		return nil, fmt.Errorf("%w: missing %s", ErrVaultFormat, vaultKeyField)
	}

	signer, err := NewKeySignerFromHex(hexKey)
	if err != nil {
		return nil, err
	}

	v.log.Info("Fetched signer key from Vault",
		slog.String("address", signer.Address().Hex()),
		slog.Duration("duration", time.Since(start)))
	return signer, nil
}

// Store writes the signer's key to the key path.
func (v *VaultKeySource) Store(ctx context.Context, signer *KeySigner) error {
	path := v.path()
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			vaultKeyField: signer.PrivateKeyHex(),
		},
	}

	if _, err := v.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		v.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("failed to store signer key: %w", err)
	}

	v.log.Info("Stored signer key in Vault", slog.String("address", signer.Address().Hex()))
	return nil
}
