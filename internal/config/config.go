package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ChainSpec describes one supported ledger from chains.json.
type ChainSpec struct {
	Name            string `json:"name"`
	ChainID         int64  `json:"chainId"`
	RPCURL          string `json:"rpcUrl"`
	Contract        string `json:"contract"`
	ExplorerBaseURL string `json:"explorerBaseUrl"`
	CustodyAddress  string `json:"custodyAddress"`
	BlockTimeSecs   int    `json:"blockTimeSeconds"`
}

// BlockTime returns the expected block time, with a floor so receipt
// polling never spins.
func (c ChainSpec) BlockTime() time.Duration {
	if c.BlockTimeSecs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.BlockTimeSecs) * time.Second
}

type chainsFile struct {
	DefaultChain string      `json:"defaultChain"`
	Chains       []ChainSpec `json:"chains"`
}

type ServiceConfig struct {
	HTTPPort          int
	LogLevel          string
	HMACClockSkew     time.Duration
	MintLease         time.Duration
	ReconcileInterval time.Duration
}

type SecretsConfig struct {
	SignerPrivateKey string
	AuthJWTSecret    string
	HookHMACSecret   string
}

// AppConfig ties together the chain registry and derived service values.
type AppConfig struct {
	DatabaseURL   string
	MigrationsDir string
	Service       ServiceConfig
	Secrets       SecretsConfig
	DefaultChain  string
	Chains        map[string]ChainSpec
}

const defaultChainsPath = "chains.json"

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	chainsPath := envOr("CHAINS_PATH", defaultChainsPath)

	defaultChain, chains, err := loadChains(chainsPath)
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}

	cfg := &AppConfig{
		DatabaseURL:   envOr("DATABASE_URL", ""),
		MigrationsDir: envOr("MIGRATIONS_DIR", "db/migrations"),
		Service: ServiceConfig{
			HTTPPort:          envOrInt("API_HTTP_PORT", 3000),
			LogLevel:          envOr("LOG_LEVEL", "info"),
			HMACClockSkew:     time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
			MintLease:         time.Duration(envOrInt("MINT_LEASE_SECONDS", 300)) * time.Second,
			ReconcileInterval: time.Duration(envOrInt("RECONCILE_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Secrets: SecretsConfig{
			SignerPrivateKey: envOr("SIGNER_PRIVATE_KEY", ""),
			AuthJWTSecret:    envOr("AUTH_JWT_SECRET", ""),
			HookHMACSecret:   envOr("HOOK_HMAC_SECRET", ""),
		},
		DefaultChain: defaultChain,
		Chains:       chains,
	}

	if cfg.Secrets.AuthJWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	return cfg, nil
}

func loadChains(path string) (string, map[string]ChainSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var file chainsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return "", nil, err
	}
	if len(file.Chains) == 0 {
		return "", nil, fmt.Errorf("no chains configured in %s", path)
	}

	chains := make(map[string]ChainSpec, len(file.Chains))
	for _, c := range file.Chains {
		if c.Name == "" {
			return "", nil, fmt.Errorf("chain entry without a name in %s", path)
		}
		chains[c.Name] = c
	}

	defaultChain := file.DefaultChain
	if defaultChain == "" {
		defaultChain = file.Chains[0].Name
	}
	if _, ok := chains[defaultChain]; !ok {
		return "", nil, fmt.Errorf("default chain %q is not configured", defaultChain)
	}

	return defaultChain, chains, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
