// Package config defines the agent's runtime configuration, populated
// from CLI flags (urfave/cli/v2) optionally layered over a TOML file
// (BurntSushi/toml), with a fsnotify watch hook for reloading that file.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	oplog "github.com/ethereum-optimism/op-challenger-agent/op-challenger/log"
)

const (
	L1EthRPCFlagName      = "l1-eth-rpc"
	TrustedRPCFlagName    = "trusted-node-rpc"
	FactoryAddrFlagName   = "factory-address"
	OracleAddrFlagName    = "oracle-address"
	SignerKeyFlagName     = "signer-key"
	PollIntervalFlagName  = "poll-interval"
	MetricsAddrFlagName   = "metrics-addr"
	ConfigFileFlagName    = "config"
	TrustedRateFlagName   = "trusted-rate-limit"
	TraceMaxDepthFlagName = "trace-max-depth"
	TraceHexFlagName      = "trace-hex"
)

// Config is the fully resolved set of options the agent runs with.
type Config struct {
	// ConfigFile is the path passed via --config, if any; empty when the
	// agent was configured purely from flags/environment. Watched by
	// WatchConfigFile for live reload of Reloadable fields.
	ConfigFile    string
	L1EthRPC      string
	TrustedRPC    string
	FactoryAddr   common.Address
	OracleAddr    common.Address
	SignerKey     *ecdsa.PrivateKey
	PollInterval  time.Duration
	MetricsAddr   string
	TrustedRate   float64
	TraceMaxDepth uint64
	Trace         []byte
	Log           oplog.Config
}

// fileConfig is the subset of Config that may be supplied by a TOML file;
// SignerKey is deliberately absent so private keys are never read from a
// config file on disk.
type fileConfig struct {
	L1EthRPC     string  `toml:"l1_eth_rpc"`
	TrustedRPC   string  `toml:"trusted_node_rpc"`
	FactoryAddr  string  `toml:"factory_address"`
	OracleAddr   string  `toml:"oracle_address"`
	PollInterval string  `toml:"poll_interval"`
	MetricsAddr  string  `toml:"metrics_addr"`
	TrustedRate  float64 `toml:"trusted_rate_limit"`
}

// CLIFlags returns the agent's flags, layered with the shared logging
// flags from the log package.
func CLIFlags(envPrefix string) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    ConfigFileFlagName,
			Usage:   "Path to an optional TOML config file, layered under CLI flags",
			EnvVars: []string{envPrefix + "_CONFIG"},
		},
		&cli.StringFlag{
			Name:     L1EthRPCFlagName,
			Usage:    "Websocket URL of the L1 node to subscribe to and submit transactions through",
			Required: true,
			EnvVars:  []string{envPrefix + "_L1_ETH_RPC"},
		},
		&cli.StringFlag{
			Name:     TrustedRPCFlagName,
			Usage:    "HTTP URL of the trusted L2 node to compare output roots against",
			Required: true,
			EnvVars:  []string{envPrefix + "_TRUSTED_NODE_RPC"},
		},
		&cli.StringFlag{
			Name:     FactoryAddrFlagName,
			Usage:    "Address of the DisputeGameFactory contract",
			Required: true,
			EnvVars:  []string{envPrefix + "_FACTORY_ADDRESS"},
		},
		&cli.StringFlag{
			Name:     OracleAddrFlagName,
			Usage:    "Address of the L2OutputOracle contract",
			Required: true,
			EnvVars:  []string{envPrefix + "_ORACLE_ADDRESS"},
		},
		&cli.StringFlag{
			Name:     SignerKeyFlagName,
			Usage:    "Hex-encoded ECDSA private key used to sign outbound transactions and challenges",
			Required: true,
			EnvVars:  []string{envPrefix + "_SIGNER_KEY"},
		},
		&cli.DurationFlag{
			Name:    PollIntervalFlagName,
			Usage:   "Interval between fault-game watcher polls",
			Value:   5 * time.Minute,
			EnvVars: []string{envPrefix + "_POLL_INTERVAL"},
		},
		&cli.StringFlag{
			Name:    MetricsAddrFlagName,
			Usage:   "Listen address for the metrics/health HTTP server",
			Value:   "127.0.0.1:7300",
			EnvVars: []string{envPrefix + "_METRICS_ADDR"},
		},
		&cli.Float64Flag{
			Name:    TrustedRateFlagName,
			Usage:   "Max requests per second to the trusted L2 node",
			Value:   5,
			EnvVars: []string{envPrefix + "_TRUSTED_RATE_LIMIT"},
		},
		&cli.Uint64Flag{
			Name:    TraceMaxDepthFlagName,
			Usage:   "Depth of the alphabet game's execution trace tree",
			Value:   4,
			EnvVars: []string{envPrefix + "_TRACE_MAX_DEPTH"},
		},
		&cli.StringFlag{
			Name:     TraceHexFlagName,
			Usage:    "Hex-encoded trusted execution trace, one byte per leaf",
			Required: true,
			EnvVars:  []string{envPrefix + "_TRACE_HEX"},
		},
	}
	return append(flags, oplog.CLIFlags(envPrefix)...)
}

// NewConfig resolves Config from a parsed cli.Context, layering an
// optional TOML file under the CLI flags: a value is only taken from the
// file when the corresponding flag was not explicitly set.
func NewConfig(ctx *cli.Context) (Config, error) {
	var file fileConfig
	if path := ctx.String(ConfigFileFlagName); path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	l1RPC := stringOrFallback(ctx, L1EthRPCFlagName, file.L1EthRPC)
	trustedRPC := stringOrFallback(ctx, TrustedRPCFlagName, file.TrustedRPC)
	factoryAddrStr := stringOrFallback(ctx, FactoryAddrFlagName, file.FactoryAddr)
	oracleAddrStr := stringOrFallback(ctx, OracleAddrFlagName, file.OracleAddr)
	metricsAddr := stringOrFallback(ctx, MetricsAddrFlagName, file.MetricsAddr)

	pollInterval := ctx.Duration(PollIntervalFlagName)
	if !ctx.IsSet(PollIntervalFlagName) && file.PollInterval != "" {
		d, err := time.ParseDuration(file.PollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("config: parsing poll_interval: %w", err)
		}
		pollInterval = d
	}

	trustedRate := ctx.Float64(TrustedRateFlagName)
	if !ctx.IsSet(TrustedRateFlagName) && file.TrustedRate != 0 {
		trustedRate = file.TrustedRate
	}

	if !common.IsHexAddress(factoryAddrStr) {
		return Config{}, fmt.Errorf("config: invalid factory address %q", factoryAddrStr)
	}
	if !common.IsHexAddress(oracleAddrStr) {
		return Config{}, fmt.Errorf("config: invalid oracle address %q", oracleAddrStr)
	}

	signerKey, err := crypto.HexToECDSA(stripHexPrefix(ctx.String(SignerKeyFlagName)))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid signer key: %w", err)
	}

	trace, err := hexutil.Decode(ctx.String(TraceHexFlagName))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid trace-hex: %w", err)
	}

	return Config{
		ConfigFile:    ctx.String(ConfigFileFlagName),
		L1EthRPC:      l1RPC,
		TrustedRPC:    trustedRPC,
		FactoryAddr:   common.HexToAddress(factoryAddrStr),
		OracleAddr:    common.HexToAddress(oracleAddrStr),
		SignerKey:     signerKey,
		PollInterval:  pollInterval,
		MetricsAddr:   metricsAddr,
		TrustedRate:   trustedRate,
		TraceMaxDepth: ctx.Uint64(TraceMaxDepthFlagName),
		Trace:         trace,
		Log:           oplog.ReadCLIConfig(ctx),
	}, nil
}

func stringOrFallback(ctx *cli.Context, flagName, fallback string) string {
	if ctx.IsSet(flagName) || fallback == "" {
		return ctx.String(flagName)
	}
	return fallback
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
