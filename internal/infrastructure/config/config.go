package config

import (
	"errors"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Provider struct {
		WsURL          string `toml:"ws_url"`
		APIKey         string `toml:"api_key"`
		DialTimeoutSec int    `toml:"dial_timeout_sec"`
	} `toml:"provider"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Reconnect struct {
		InitialDelayMs int `toml:"initial_delay_ms"`
		MaxDelayMs     int `toml:"max_delay_ms"`
		MaxFailures    int `toml:"max_failures"`
	} `toml:"reconnect"`

	Publish struct {
		Buffer int    `toml:"buffer"`
		Policy string `toml:"policy"` // drop_oldest | block
	} `toml:"publish"`

	Staging struct {
		Driver       string `toml:"driver"` // memory | sqlite | postgres
		Path         string `toml:"path"`   // sqlite file
		DSN          string `toml:"dsn"`    // postgres dsn
		Queue        int    `toml:"queue"`
		RetryMax     int    `toml:"retry_max"`
		RetryDelayMs int    `toml:"retry_delay_ms"`
	} `toml:"staging"`

	Redis struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Prefix  string `toml:"prefix"`
		TTLMin  int    `toml:"ttl_min"`
	} `toml:"redis"`

	Health struct {
		WindowSec      int    `toml:"window_sec"`
		MetricsAddr    string `toml:"metrics_addr"`
		ReportEverySec int    `toml:"report_every_sec"`
	} `toml:"health"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.DialTimeoutSec <= 0 {
		cfg.Provider.DialTimeoutSec = 10
	}
	if cfg.Reconnect.InitialDelayMs <= 0 {
		cfg.Reconnect.InitialDelayMs = 500
	}
	if cfg.Reconnect.MaxDelayMs <= 0 {
		cfg.Reconnect.MaxDelayMs = 10000
	}
	if cfg.Reconnect.MaxFailures <= 0 {
		cfg.Reconnect.MaxFailures = 8
	}
	if cfg.Publish.Buffer <= 0 {
		cfg.Publish.Buffer = 256
	}
	if cfg.Publish.Policy == "" {
		cfg.Publish.Policy = "drop_oldest"
	}
	if cfg.Staging.Driver == "" {
		cfg.Staging.Driver = "sqlite"
	}
	if cfg.Staging.Path == "" {
		cfg.Staging.Path = "data/ticks.db"
	}
	if cfg.Staging.Queue <= 0 {
		cfg.Staging.Queue = 4096
	}
	if cfg.Staging.RetryMax <= 0 {
		cfg.Staging.RetryMax = 3
	}
	if cfg.Staging.RetryDelayMs <= 0 {
		cfg.Staging.RetryDelayMs = 200
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "stockpulse"
	}
	if cfg.Health.WindowSec <= 0 {
		cfg.Health.WindowSec = 10
	}
	if cfg.Health.ReportEverySec <= 0 {
		cfg.Health.ReportEverySec = 60
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Provider.WsURL) == "" {
		return errors.New("provider.ws_url is empty")
	}

	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	switch cfg.Publish.Policy {
	case "drop_oldest", "block":
	default:
		return errors.New("publish.policy must be drop_oldest or block")
	}

	switch cfg.Staging.Driver {
	case "memory", "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Staging.DSN) == "" {
			return errors.New("staging.dsn empty but driver is postgres")
		}
	default:
		return errors.New("staging.driver must be memory, sqlite or postgres")
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
