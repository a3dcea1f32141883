package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the Loop Controller's and admin surface's static
// configuration, loaded from a YAML file and then overridden field by
// field from the environment, following the env-override-over-file
// idiom used throughout this codebase.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	ChainRPCURL string `yaml:"chain_rpc_url"`
	ChainID     uint64 `yaml:"chain_id"`

	IpnftContractAddress    string `yaml:"ipnft_contract_address"`
	IpnftContractBirthBlock uint64 `yaml:"ipnft_contract_birth_block"`

	TokenizerContractAddress string `yaml:"tokenizer_contract_address"`
	TokenizerBirthBlock      uint64 `yaml:"tokenizer_birth_block"`

	KamuNodeEndpoint string `yaml:"kamu_node_endpoint"`
	KamuNodeToken    string `yaml:"kamu_node_token"`

	CataloguePullIntervalSecs int      `yaml:"catalogue_pull_interval_secs"`
	IterationDelaySecs        int      `yaml:"iteration_delay_secs"`
	IgnoreProjectUids         []string `yaml:"ignore_project_uids"`

	AdminPort int    `yaml:"admin_port"`
	JWTSecret string `yaml:"jwt_secret"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if cfg.CataloguePullIntervalSecs <= 0 {
		cfg.CataloguePullIntervalSecs = 300
	}
	if cfg.IterationDelaySecs <= 0 {
		cfg.IterationDelaySecs = 15
	}
	if cfg.AdminPort <= 0 {
		cfg.AdminPort = 8080
	}

	return &cfg, nil
}

// applyEnvOverrides lets operators override any file-sourced value
// without editing the checked-in config, matching the env-var-override
// convention the rest of this codebase uses for deployment knobs.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DB_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		c.ChainRPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.ChainID = n
		}
	}
	if v := os.Getenv("IPNFT_CONTRACT_ADDRESS"); v != "" {
		c.IpnftContractAddress = v
	}
	if v := os.Getenv("TOKENIZER_CONTRACT_ADDRESS"); v != "" {
		c.TokenizerContractAddress = v
	}
	if v := os.Getenv("KAMU_NODE_ENDPOINT"); v != "" {
		c.KamuNodeEndpoint = v
	}
	if v := os.Getenv("KAMU_NODE_TOKEN"); v != "" {
		c.KamuNodeToken = v
	}
	if v := os.Getenv("ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AdminPort = n
		}
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("IGNORE_PROJECT_UIDS"); v != "" {
		c.IgnoreProjectUids = strings.Split(v, ",")
	}
}

func (c *Config) IterationDelay() time.Duration {
	return time.Duration(c.IterationDelaySecs) * time.Second
}

func (c *Config) CataloguePullInterval() time.Duration {
	return time.Duration(c.CataloguePullIntervalSecs) * time.Second
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: database_url is required")
	}
	if c.ChainRPCURL == "" {
		return fmt.Errorf("config: chain_rpc_url is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("config: chain_id is required")
	}
	if c.IpnftContractAddress == "" {
		return fmt.Errorf("config: ipnft_contract_address is required")
	}
	if c.TokenizerContractAddress == "" {
		return fmt.Errorf("config: tokenizer_contract_address is required")
	}
	if c.KamuNodeEndpoint == "" {
		return fmt.Errorf("config: kamu_node_endpoint is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: jwt_secret is required")
	}
	return nil
}
