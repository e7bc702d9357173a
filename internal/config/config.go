// Package config loads daemon and CLI settings from defaults, an optional
// YAML file and DOCREG_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docregistry/go-backend/internal/identity"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	FormatJSON = "json"
	FormatText = "text"
)

var ErrInvalidConfig = errors.New("invalid config")

// DefaultCandidates are probed in order when no explicit path is given.
var DefaultCandidates = []string{
	"configs/config.yaml",
	"config.yaml",
}

type Config struct {
	Wallet   WalletConfig   `yaml:"wallet"`
	Registry RegistryConfig `yaml:"registry"`
	RPC      RPCConfig      `yaml:"rpc"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type WalletConfig struct {
	Mnemonic     string `yaml:"mnemonic"     env:"DOCREG_WALLET_MNEMONIC"`
	Count        int    `yaml:"count"        env:"DOCREG_WALLET_COUNT"`
	PathTemplate string `yaml:"pathTemplate" env:"DOCREG_WALLET_PATH_TEMPLATE"`
}

type RegistryConfig struct {
	Backend string `yaml:"backend" env:"DOCREG_REGISTRY_BACKEND"`
	Path    string `yaml:"path"    env:"DOCREG_REGISTRY_PATH"`
	// Passphrase is never read from files.
	Passphrase       string `yaml:"-"                env:"DOCREG_REGISTRY_PASSPHRASE"`
	PendingRetention int    `yaml:"pendingRetention" env:"DOCREG_REGISTRY_PENDING_RETENTION"`
	ListWorkers      int    `yaml:"listWorkers"      env:"DOCREG_REGISTRY_LIST_WORKERS"`
}

type RPCConfig struct {
	Addr           string   `yaml:"addr"           env:"DOCREG_RPC_ADDR"`
	Token          string   `yaml:"token"          env:"DOCREG_RPC_TOKEN"`
	RequireToken   bool     `yaml:"requireToken"   env:"DOCREG_RPC_REQUIRE_TOKEN"`
	RateLimitRPS   float64  `yaml:"rateLimitRPS"   env:"DOCREG_RPC_RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rateLimitBurst" env:"DOCREG_RPC_RATE_LIMIT_BURST"`
	AllowedOrigins []string `yaml:"allowedOrigins" env:"DOCREG_RPC_ALLOWED_ORIGINS" envSeparator:","`
}

type LoggingConfig struct {
	Level  string `yaml:"level"  env:"DOCREG_LOG_LEVEL"`
	Format string `yaml:"format" env:"DOCREG_LOG_FORMAT"`
}

func Default() Config {
	return Config{
		Wallet: WalletConfig{
			Count:        identity.DefaultCount,
			PathTemplate: identity.PathTemplate,
		},
		Registry: RegistryConfig{
			Backend:          BackendMemory,
			PendingRetention: 1024,
			ListWorkers:      8,
		},
		RPC: RPCConfig{
			Addr:           "127.0.0.1:8787",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: FormatJSON,
		},
	}
}

// DefaultRegistryPath is the SQLite file used by docctl when the config
// names no persistent registry: $XDG_CONFIG_HOME/docregistry/registry.db or
// the platform equivalent.
func DefaultRegistryPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "docregistry", "registry.db"), nil
}

// Persistent reports whether records outlive the process.
func (r RegistryConfig) Persistent() bool {
	return r.Backend == BackendSQLite || r.Path != ""
}

// Load resolves the configuration. An explicit path must exist; the default
// candidates are optional and the first readable one wins.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		for _, candidate := range DefaultCandidates {
			data, err := os.ReadFile(candidate)
			if err != nil {
				continue
			}
			if err := decodeYAML(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", candidate, err)
			}
			break
		}
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Wallet.Count <= 0 {
		errs = append(errs, fmt.Errorf("wallet.count must be positive, got %d", c.Wallet.Count))
	}
	if strings.Count(c.Wallet.PathTemplate, "%d") != 1 {
		errs = append(errs, fmt.Errorf("wallet.pathTemplate must contain exactly one %%d: %q", c.Wallet.PathTemplate))
	}
	switch c.Registry.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Registry.Path == "" {
			errs = append(errs, errors.New("registry.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry.backend %q", c.Registry.Backend))
	}
	if c.Registry.Passphrase != "" && c.Registry.Path == "" {
		errs = append(errs, errors.New("registry passphrase set without registry.path"))
	}
	if c.Registry.PendingRetention <= 0 {
		errs = append(errs, fmt.Errorf("registry.pendingRetention must be positive, got %d", c.Registry.PendingRetention))
	}
	if c.Registry.ListWorkers <= 0 {
		errs = append(errs, fmt.Errorf("registry.listWorkers must be positive, got %d", c.Registry.ListWorkers))
	}
	if c.RPC.Addr == "" {
		errs = append(errs, errors.New("rpc.addr is required"))
	}
	if c.RPC.RequireToken && c.RPC.Token == "" {
		errs = append(errs, errors.New("rpc.requireToken is set but rpc.token is empty"))
	}
	if c.RPC.RateLimitRPS < 0 || c.RPC.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rpc rate limit values must not be negative"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != FormatJSON && c.Logging.Format != FormatText {
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level %q", raw)
	}
}

func (c *Config) normalize() {
	c.Wallet.Mnemonic = identity.NormalizeMnemonic(c.Wallet.Mnemonic)
	c.Wallet.PathTemplate = strings.TrimSpace(c.Wallet.PathTemplate)
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	c.Registry.Path = strings.TrimSpace(c.Registry.Path)
	c.RPC.Addr = strings.TrimSpace(c.RPC.Addr)
	c.RPC.Token = strings.TrimSpace(c.RPC.Token)
	origins := c.RPC.AllowedOrigins[:0]
	for _, o := range c.RPC.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.RPC.AllowedOrigins = origins
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
