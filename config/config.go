package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

type Config struct {
	ListenAddress string  `toml:"ListenAddress"`
	DataDir       string  `toml:"DataDir"`
	Environment   string  `toml:"Environment"`
	RosterFile    string  `toml:"RosterFile,omitempty"`
	PauseOnStart  bool    `toml:"PauseOnStart"`
	Store         Store   `toml:"Store"`
	Policy        Policy  `toml:"Policy"`
	Admin         Admin   `toml:"Admin"`
	Logging       Logging `toml:"Logging"`
	Indexer       Indexer `toml:"Indexer"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default configuration with a freshly generated admin token.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := cfg.Admin.normalise(); err != nil {
		return nil, fmt.Errorf("admin security: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./cookiejar-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendLevelDB
	}
	if cfg.Store.Backend == BackendRedis && strings.TrimSpace(cfg.Store.RedisAddr) == "" {
		cfg.Store.RedisAddr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Policy.CookieValue) == "" {
		cfg.Policy.CookieValue = "1"
	}
	if cfg.Policy.Period.Duration == 0 {
		cfg.Policy.Period.Duration = 24 * time.Hour
	}
	if cfg.Admin.RateLimitPerSecond == 0 {
		cfg.Admin.RateLimitPerSecond = 5
	}
	if cfg.Admin.RateLimitBurst == 0 {
		cfg.Admin.RateLimitBurst = 10
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
}

func (a *Admin) normalise() error {
	token := strings.TrimSpace(a.BearerToken)
	switch {
	case token != "":
	case strings.TrimSpace(a.BearerTokenEnv) != "":
		env := strings.TrimSpace(a.BearerTokenEnv)
		token = strings.TrimSpace(os.Getenv(env))
		if token == "" {
			return fmt.Errorf("BearerTokenEnv %s is empty", env)
		}
	case strings.TrimSpace(a.BearerTokenFile) != "":
		contents, err := os.ReadFile(strings.TrimSpace(a.BearerTokenFile))
		if err != nil {
			return fmt.Errorf("read BearerTokenFile: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Policy: Policy{
			PoolAddress:  "0x000000000000000000000000000000000000c00c",
			MaxPerPeriod: 3,
		},
		Admin: Admin{BearerToken: strings.ReplaceAll(uuid.NewString(), "-", "")},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
