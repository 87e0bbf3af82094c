package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type SessionConfig struct {
	// MonitorInterval drives the expiry check loop; it is independent of
	// any in-flight request.
	MonitorInterval time.Duration `yaml:"monitorInterval"`
	LoginRatePerMin float64       `yaml:"loginRatePerMin"`
	LoginBurst      int           `yaml:"loginBurst"`
}

type StorageConfig struct {
	Dir    string `yaml:"dir"`
	Secret string `yaml:"secret"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Server: ServerConfig{
			BaseURL:        "http://127.0.0.1:3000",
			RequestTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			MonitorInterval: time.Minute,
			LoginRatePerMin: 10,
			LoginBurst:      3,
		},
		Storage: StorageConfig{
			Dir: filepath.Join(home, ".wolctl", "secrets"),
		},
	}
}

// LoadFromPath merges defaults, an optional YAML file and env overrides,
// in that order. A missing or unparseable candidate file is skipped.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		home, _ := os.UserHomeDir()
		candidates = append(candidates,
			filepath.Join(home, ".wolctl", "config.yaml"),
			"configs/config.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func merge(dst *Config, src Config) {
	if strings.TrimSpace(src.Server.BaseURL) != "" {
		dst.Server.BaseURL = strings.TrimSpace(src.Server.BaseURL)
	}
	if src.Server.RequestTimeout > 0 {
		dst.Server.RequestTimeout = src.Server.RequestTimeout
	}
	if src.Session.MonitorInterval > 0 {
		dst.Session.MonitorInterval = src.Session.MonitorInterval
	}
	if src.Session.LoginRatePerMin > 0 {
		dst.Session.LoginRatePerMin = src.Session.LoginRatePerMin
	}
	if src.Session.LoginBurst > 0 {
		dst.Session.LoginBurst = src.Session.LoginBurst
	}
	if strings.TrimSpace(src.Storage.Dir) != "" {
		dst.Storage.Dir = strings.TrimSpace(src.Storage.Dir)
	}
	if strings.TrimSpace(src.Storage.Secret) != "" {
		dst.Storage.Secret = strings.TrimSpace(src.Storage.Secret)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("WOLCTL_SERVER_URL")); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WOLCTL_REQUEST_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Server.RequestTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("WOLCTL_MONITOR_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.MonitorInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("WOLCTL_STORE_DIR")); v != "" {
		cfg.Storage.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("WOLCTL_STORE_SECRET")); v != "" {
		cfg.Storage.Secret = v
	}
}
