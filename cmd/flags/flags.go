package flags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/common"
	"github.com/ruteri/confidential-launchpad/httpserver"
	"github.com/ruteri/confidential-launchpad/signer"
)

var ErrNoSigner = errors.New("no signer key configured")

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// ParseAddress reads a required hex address flag.
func ParseAddress(cCtx *cli.Context, name string) (ethcommon.Address, error) {
	raw := cCtx.String(name)
	if !ethcommon.IsHexAddress(raw) {
		return ethcommon.Address{}, fmt.Errorf("invalid --%s address %q", name, raw)
	}
	return ethcommon.HexToAddress(raw), nil
}

// LoadSigner resolves the holder key from, in order of precedence, a raw hex
// key, an encrypted keystore file or a Vault KV v2 secret. It returns
// ErrNoSigner when no source is configured.
func LoadSigner(ctx context.Context, cCtx *cli.Context, log *slog.Logger) (*signer.KeySigner, error) {
	if hexKey := cCtx.String(PrivateKeyFlag.Name); hexKey != "" {
		return signer.NewKeySignerFromHex(hexKey)
	}

	if path := cCtx.String(KeystoreFileFlag.Name); path != "" {
		return signer.NewKeySignerFromKeystore(path, cCtx.String(KeystorePasswordFlag.Name))
	}

	if source, err := VaultKeySource(cCtx, log); err != nil {
		return nil, err
	} else if source != nil {
		return source.Signer(ctx)
	}

	return nil, ErrNoSigner
}

// VaultKeySource returns the configured Vault key source, or nil when
// --vault-addr is not set.
func VaultKeySource(cCtx *cli.Context, log *slog.Logger) (*signer.VaultKeySource, error) {
	addr := cCtx.String(VaultAddrFlag.Name)
	if addr == "" {
		return nil, nil
	}
	return signer.NewVaultKeySource(addr, cCtx.String(VaultTokenFlag.Name), cCtx.String(VaultMountFlag.Name), cCtx.String(VaultPathFlag.Name), log)
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "address to connect to RPC",
	EnvVars: []string{"LAUNCHPAD_RPC_ADDR"},
}

var FactoryAddrFlag = &cli.StringFlag{
	Name:     "factory",
	Required: true,
	Usage:    "confidential token factory contract address",
	EnvVars:  []string{"LAUNCHPAD_FACTORY"},
}

var MulticallAddrFlag = &cli.StringFlag{
	Name:    "multicall",
	Value:   chain.DefaultMulticallAddress.Hex(),
	Usage:   "Multicall3 contract address used for batched reads",
	EnvVars: []string{"LAUNCHPAD_MULTICALL"},
}

var RelayerURLFlag = &cli.StringFlag{
	Name:    "relayer-url",
	Value:   "http://127.0.0.1:3000",
	Usage:   "base URL of the disclosure relayer",
	EnvVars: []string{"LAUNCHPAD_RELAYER_URL"},
}

var ContractsChainIDFlag = &cli.Int64Flag{
	Name:    "chain-id",
	Value:   0,
	Usage:   "chain id of the token contracts, 0 to ask the RPC node",
	EnvVars: []string{"LAUNCHPAD_CHAIN_ID"},
}

var DecimalsFlag = &cli.IntFlag{
	Name:  "decimals",
	Value: 6,
	Usage: "token precision used to format amounts",
}

var ValidityDaysFlag = &cli.IntFlag{
	Name:  "validity-days",
	Value: 7,
	Usage: "validity of disclosure authorizations in days",
}

var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex-encoded secp256k1 holder key",
	EnvVars: []string{"LAUNCHPAD_PRIVKEY"},
}

var KeystoreFileFlag = &cli.StringFlag{
	Name:  "keystore",
	Usage: "encrypted JSON keystore file holding the holder key",
}

var KeystorePasswordFlag = &cli.StringFlag{
	Name:    "keystore-password",
	Usage:   "password of the keystore file",
	EnvVars: []string{"LAUNCHPAD_KEYSTORE_PASSWORD"},
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Usage:   "Vault address holding the holder key",
	EnvVars: []string{"VAULT_ADDR"},
}

var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	Usage:   "Vault token",
	EnvVars: []string{"VAULT_TOKEN"},
}

var VaultMountFlag = &cli.StringFlag{
	Name:  "vault-mount",
	Value: "secret",
	Usage: "Vault KV v2 mount path",
}

var VaultPathFlag = &cli.StringFlag{
	Name:  "vault-path",
	Value: "launchpad/signer",
	Usage: "path of the holder key within the Vault mount",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "launchpad",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ChainFlags = []cli.Flag{
	RpcAddrFlag,
	FactoryAddrFlag,
	MulticallAddrFlag,
	ContractsChainIDFlag,
	DecimalsFlag,
}

var SignerFlags = []cli.Flag{
	PrivateKeyFlag,
	KeystoreFileFlag,
	KeystorePasswordFlag,
	VaultAddrFlag,
	VaultTokenFlag,
	VaultMountFlag,
	VaultPathFlag,
}

var DisclosureFlags = []cli.Flag{
	RelayerURLFlag,
	ValidityDaysFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
