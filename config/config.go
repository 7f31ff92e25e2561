package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/types"
)

// Config holds the application configuration
type Config struct {
	// OKX Web3 API credentials
	APIKey     string
	SecretKey  string
	Passphrase string
	BaseURL    string

	// Wallet used to sign approvals and bridge transactions
	WalletAddress string
	PrivateKey    string

	// Applied to every destination when set, otherwise per-pair defaults are used
	DefaultSlippage string
	FeePercent      string

	API       APIConfig
	Bridge    BridgeConfig
	Chains    ChainConfig
	Telemetry TelemetryConfig

	HistoryFile string
}

// APIConfig tunes the aggregator HTTP client
type APIConfig struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables pacing
	MaxRetries int     // re-sends of rate-limited (HTTP 429) requests
}

// BridgeConfig tunes the bridge flow
type BridgeConfig struct {
	QuoteDelay   time.Duration
	BuildRetries int
	// Aggregator error codes that indicate a stale quote and justify a rebuild
	RetryCodes []string
}

// ChainConfig overrides the built-in chain registry
type ChainConfig struct {
	BaseChainID         string
	ArbitrumChainID     string
	BaseUSDCAddress     string
	ArbitrumUSDCAddress string
	RPCURLs             map[chains.Key]string
}

// TelemetryConfig enables optional tracing and metrics export
type TelemetryConfig struct {
	OtelEndpoint   string
	PushgatewayURL string
}

const (
	DefaultBaseURL    = "https://web3.okx.com"
	DefaultFeePercent = "0.5"
	DefaultTimeout    = 30 * time.Second
	DefaultQuoteDelay = 2 * time.Second
)

var requiredKeys = []string{
	"okx_api_key",
	"okx_secret_key",
	"okx_passphrase",
	"evm_wallet_address",
	"evm_private_key",
}

// Load reads configuration from environment variables and an optional config file.
// An empty path searches for .usdc-bridge.yaml in $HOME and the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".usdc-bridge")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	// Set default values
	v.SetDefault("okx_base_url", DefaultBaseURL)
	v.SetDefault("fee_percent", DefaultFeePercent)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("api.rate_limit", 2.0)
	v.SetDefault("api.max_retries", 2)
	v.SetDefault("bridge.quote_delay", DefaultQuoteDelay)
	v.SetDefault("bridge.build_retries", 0)

	// Read from environment variables: api.timeout <- API_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: reading config file: %v", types.ErrConfiguration, err)
		}
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required environment variables: %s", types.ErrConfiguration, strings.Join(missing, ", "))
	}

	cfg := &Config{
		APIKey:          v.GetString("okx_api_key"),
		SecretKey:       v.GetString("okx_secret_key"),
		Passphrase:      v.GetString("okx_passphrase"),
		BaseURL:         strings.TrimRight(v.GetString("okx_base_url"), "/"),
		WalletAddress:   v.GetString("evm_wallet_address"),
		PrivateKey:      v.GetString("evm_private_key"),
		DefaultSlippage: v.GetString("default_slippage"),
		FeePercent:      v.GetString("fee_percent"),
		API: APIConfig{
			Timeout:    v.GetDuration("api.timeout"),
			RateLimit:  v.GetFloat64("api.rate_limit"),
			MaxRetries: v.GetInt("api.max_retries"),
		},
		Bridge: BridgeConfig{
			QuoteDelay:   v.GetDuration("bridge.quote_delay"),
			BuildRetries: v.GetInt("bridge.build_retries"),
			RetryCodes:   splitCSV(v.GetStringSlice("bridge.retry_codes")),
		},
		Chains: ChainConfig{
			BaseChainID:         v.GetString("base_chain_id"),
			ArbitrumChainID:     v.GetString("arbitrum_chain_id"),
			BaseUSDCAddress:     v.GetString("base_usdc_address"),
			ArbitrumUSDCAddress: v.GetString("arbitrum_usdc_address"),
			RPCURLs: map[chains.Key]string{
				chains.Base:     v.GetString("rpc.base"),
				chains.Arbitrum: v.GetString("rpc.arbitrum"),
				chains.BSC:      v.GetString("rpc.bsc"),
				chains.Polygon:  v.GetString("rpc.polygon"),
			},
		},
		Telemetry: TelemetryConfig{
			OtelEndpoint:   v.GetString("otel_exporter_otlp_endpoint"),
			PushgatewayURL: v.GetString("pushgateway_url"),
		},
		HistoryFile: v.GetString("history_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the bridge flow
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.WalletAddress) {
		return fmt.Errorf("%w: EVM_WALLET_ADDRESS %q is not a hex address", types.ErrConfiguration, c.WalletAddress)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api timeout must be positive", types.ErrConfiguration)
	}
	if c.API.MaxRetries < 0 || c.Bridge.BuildRetries < 0 {
		return fmt.Errorf("%w: retry counts cannot be negative", types.ErrConfiguration)
	}
	for _, addr := range []string{c.Chains.BaseUSDCAddress, c.Chains.ArbitrumUSDCAddress} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: token address %q is not a hex address", types.ErrConfiguration, addr)
		}
	}
	return nil
}

// RegistryOverrides maps the configured chain overrides onto the registry
func (c *Config) RegistryOverrides() chains.Overrides {
	o := chains.Overrides{
		ChainIDs: map[chains.Key]string{
			chains.Base:     c.Chains.BaseChainID,
			chains.Arbitrum: c.Chains.ArbitrumChainID,
		},
		RPCURLs: c.Chains.RPCURLs,
		USDCAddresses: map[chains.Key]string{
			chains.Base:     c.Chains.BaseUSDCAddress,
			chains.Arbitrum: c.Chains.ArbitrumUSDCAddress,
		},
	}
	if c.DefaultSlippage != "" {
		o.DefaultSlippage = map[chains.Key]string{
			chains.Arbitrum: c.DefaultSlippage,
			chains.BSC:      c.DefaultSlippage,
			chains.Polygon:  c.DefaultSlippage,
		}
	}
	return o
}

// Registry builds the chain registry with overrides applied
func (c *Config) Registry() *chains.Registry {
	return chains.New(c.RegistryOverrides())
}

// splitCSV flattens values that arrive either as a list or as "a,b,c"
func splitCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
