package signer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/relayer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTypedData() apitypes.TypedData {
	return relayer.NewUserDecryptTypedData(
		relayer.Domain{ChainID: big.NewInt(55815), VerifyingContract: common.HexToAddress("0xD0C")},
		make([]byte, 32),
		[]common.Address{common.HexToAddress("0xAA")},
		"1700000000",
		"7",
	)
}

func TestKeySigner_SignTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	typedData := testTypedData()
	signature, err := signer.SignTypedData(context.Background(), typedData)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signature, "0x"))

	raw, err := hexutil.Decode(signature)
	require.NoError(t, err)
	require.Len(t, raw, crypto.SignatureLength)
	assert.Contains(t, []byte{27, 28}, raw[crypto.RecoveryIDOffset])

	recovered, err := relayer.RecoverSigner(typedData, signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestKeySigner_CancelledContextDeclines(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewKeySigner(key).SignTypedData(ctx, testTypedData())
	assert.ErrorIs(t, err, interfaces.ErrSignatureDeclined)
}

func TestNewKeySignerFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)

	hexKey := hexutil.Encode(crypto.FromECDSA(key))
	for _, input := range []string{hexKey, strings.TrimPrefix(hexKey, "0x"), " " + hexKey + "\n"} {
		signer, err := NewKeySignerFromHex(input)
		require.NoError(t, err)
		assert.Equal(t, expected, signer.Address())
	}

	_, err = NewKeySignerFromHex("0xnothex")
	assert.Error(t, err)
}

func TestNewKeySignerFromKeystore(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key, "correct horse")
	require.NoError(t, err)

	signer, err := NewKeySignerFromKeystore(account.URL.Path, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, account.Address, signer.Address())

	_, err = NewKeySignerFromKeystore(account.URL.Path, "wrong")
	assert.Error(t, err)

	_, err = NewKeySignerFromKeystore(account.URL.Path+".missing", "correct horse")
	assert.Error(t, err)
}

func TestKeySigner_TransactOpts(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)

	opts, err := signer.TransactOpts(big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), opts.From)
}

// fakeVault serves the subset of the KV v2 API used by VaultKeySource.
type fakeVault struct {
	mutex   sync.Mutex
	secrets map[string]map[string]interface{}
	token   string
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Vault-Token") != f.token {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["permission denied"]}`))
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch r.Method {
	case http.MethodGet:
		data, ok := f.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data, "metadata": map[string]interface{}{"version": 1}},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.secrets[path] = body.Data
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": 1}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestVaultKeySource(t *testing.T) {
	vault := &fakeVault{secrets: map[string]map[string]interface{}{}, token: "s.test"}
	server := httptest.NewServer(vault)
	defer server.Close()

	source, err := NewVaultKeySource(server.URL, "s.test", "secret/", "/launchpad/signer/", discardLogger())
	require.NoError(t, err)

	_, err = source.Signer(context.Background())
	assert.ErrorIs(t, err, ErrKeyNotFound)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)
	require.NoError(t, source.Store(context.Background(), signer))
	assert.Contains(t, vault.secrets, "secret/data/launchpad/signer")

	fetched, err := source.Signer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), fetched.Address())
}

func TestVaultKeySource_Errors(t *testing.T) {
	vault := &fakeVault{secrets: map[string]map[string]interface{}{
		"secret/data/launchpad/signer": {"other": "value"},
	}, token: "s.test"}
	server := httptest.NewServer(vault)
	defer server.Close()

	source, err := NewVaultKeySource(server.URL, "s.test", "secret", "launchpad/signer", discardLogger())
	require.NoError(t, err)
	_, err = source.Signer(context.Background())
	assert.ErrorIs(t, err, ErrVaultFormat)

	unauthorized, err := NewVaultKeySource(server.URL, "s.wrong", "secret", "launchpad/signer", discardLogger())
	require.NoError(t, err)
	_, err = unauthorized.Signer(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}
