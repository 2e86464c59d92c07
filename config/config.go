package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"mimic-swap/pkg/timeline/steps"
)

// Config holds the application configuration
type Config struct {
	APIBaseURL string
	PrivateKey string
	ChainID    int64
	RPCURLs    map[int64]string

	Spender          common.Address
	ApprovalPolicy   steps.ApprovalPolicy
	TaskCID          string
	ScheduleOffset   time.Duration
	ConfigValidity   time.Duration
	TriggerDelta     string
	ExecutionTimeout time.Duration
	PollInterval     time.Duration

	OneClickJWT   string
	OneClickURL   string
	TokenListPath string
	HistoryPath   string
	LogLevel      string

	Session SessionConfig
}

// SessionConfig selects where sign-in sessions are kept
type SessionConfig struct {
	Backend   string
	Path      string
	RedisAddr string
	TTL       time.Duration
}

const (
	EnvPrefix      = "MIMIC_SWAP"
	ConfigName     = ".mimic-swap"
	SessionFile    = "file"
	SessionRedis   = "redis"
	DefaultChainID = 10
)

var (
	ErrNoAPIBaseURL = errors.New("API base URL not found. Please set MIMIC_SWAP_API_BASE_URL or api_base_url in .mimic-swap.yaml")
	ErrNoPrivateKey = errors.New("private key not found. Please set MIMIC_SWAP_PRIVATE_KEY or private_key in .mimic-swap.yaml")
)

var defaultRPCURLs = map[string]string{
	"10":    "https://mainnet.optimism.io",
	"42161": "https://arb1.arbitrum.io/rpc",
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	cfg, err := LoadFrom(v)
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// LoadFrom reads the configuration through a prepared viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	policy, err := steps.ParsePolicy(v.GetString("approval_policy"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIBaseURL:       strings.TrimRight(v.GetString("api_base_url"), "/"),
		PrivateKey:       v.GetString("private_key"),
		ChainID:          v.GetInt64("chain_id"),
		ApprovalPolicy:   policy,
		TaskCID:          v.GetString("task_cid"),
		ScheduleOffset:   v.GetDuration("schedule_offset"),
		ConfigValidity:   v.GetDuration("config_validity"),
		TriggerDelta:     v.GetString("trigger_delta"),
		ExecutionTimeout: v.GetDuration("execution_timeout"),
		PollInterval:     v.GetDuration("poll_interval"),
		OneClickJWT:      v.GetString("oneclick_jwt"),
		OneClickURL:      v.GetString("oneclick_url"),
		TokenListPath:    v.GetString("token_list_path"),
		HistoryPath:      v.GetString("history_path"),
		LogLevel:         v.GetString("log_level"),
		Session: SessionConfig{
			Backend:   strings.ToLower(v.GetString("session.backend")),
			Path:      v.GetString("session.path"),
			RedisAddr: v.GetString("session.redis_addr"),
			TTL:       v.GetDuration("session.ttl"),
		},
	}

	spender := v.GetString("spender_address")
	if !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("invalid spender address: %q", spender)
	}
	cfg.Spender = common.HexToAddress(spender)

	cfg.RPCURLs, err = rpcURLs(v.GetStringMapString("rpc_urls"))
	if err != nil {
		return nil, err
	}
	if u := v.GetString("rpc_url"); u != "" {
		cfg.RPCURLs[cfg.ChainID] = u
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain_id", DefaultChainID)
	v.SetDefault("rpc_urls", defaultRPCURLs)
	v.SetDefault("spender_address", steps.DefaultSpender.Hex())
	v.SetDefault("approval_policy", string(steps.PolicyUnlimited))
	v.SetDefault("task_cid", steps.DefaultTaskCID)
	v.SetDefault("schedule_offset", steps.DefaultScheduleOffset)
	v.SetDefault("config_validity", steps.DefaultConfigValidity)
	v.SetDefault("trigger_delta", steps.DefaultTriggerDelta)
	v.SetDefault("execution_timeout", steps.DefaultExecutionTimeout)
	v.SetDefault("poll_interval", steps.DefaultPollInterval)
	v.SetDefault("oneclick_url", "https://1click.chaindefuser.com")
	v.SetDefault("log_level", "info")
	v.SetDefault("session.backend", SessionFile)
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.ttl", 24*time.Hour)

	// Keys without defaults still need binding for env lookups
	for _, key := range []string{
		"api_base_url", "private_key", "rpc_url", "oneclick_jwt",
		"token_list_path", "history_path", "session.path",
	} {
		_ = v.BindEnv(key)
	}
}

func rpcURLs(raw map[string]string) (map[int64]string, error) {
	res := make(map[int64]string, len(raw))
	for k, u := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id in rpc_urls: %q", k)
		}
		res[id] = u
	}
	return res, nil
}

// Validate checks values that are wrong regardless of the command
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive, got %d", c.ChainID)
	}
	durations := map[string]time.Duration{
		"schedule_offset":   c.ScheduleOffset,
		"config_validity":   c.ConfigValidity,
		"execution_timeout": c.ExecutionTimeout,
		"poll_interval":     c.PollInterval,
		"session.ttl":       c.Session.TTL,
	}
	keys := make([]string, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if durations[k] <= 0 {
			return fmt.Errorf("%s must be a positive duration", k)
		}
	}
	if _, err := time.ParseDuration(c.TriggerDelta); err != nil {
		return fmt.Errorf("invalid trigger_delta %q: %w", c.TriggerDelta, err)
	}
	switch c.Session.Backend {
	case SessionFile, SessionRedis:
	default:
		return fmt.Errorf("unknown session backend %q (use %s or %s)",
			c.Session.Backend, SessionFile, SessionRedis)
	}
	return nil
}

// RequireAPI reports whether the protocol API is configured
func (c *Config) RequireAPI() error {
	if c.APIBaseURL == "" {
		return ErrNoAPIBaseURL
	}
	return nil
}

// RequireWallet reports whether a signing key is configured
func (c *Config) RequireWallet() error {
	if c.PrivateKey == "" {
		return ErrNoPrivateKey
	}
	return nil
}

// RPCURL returns the endpoint of a chain
func (c *Config) RPCURL(chainID int64) (string, error) {
	u, ok := c.RPCURLs[chainID]
	if !ok || u == "" {
		return "", fmt.Errorf("no RPC URL configured for chain %d (set rpc_urls.%d)", chainID, chainID)
	}
	return u, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
