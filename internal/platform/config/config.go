package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName   = "minesync.yaml"
	SnapshotFileName  = "mining_session_state.json"
	HubSocketFileName = "tabbus.sock"
)

type Config struct {
	DataDir      string `yaml:"-"`
	DBPath       string `yaml:"db_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	HubSocket    string `yaml:"hub_socket"`
	ReceiptsDir  string `yaml:"receipts_dir"`

	ListenAddr string `yaml:"listen_addr"`
	UserID     string `yaml:"user_id"`
	LogLevel   string `yaml:"log_level"`
	LogJSON    bool   `yaml:"log_json"`

	RateUnitsPerSecond  int64 `yaml:"rate_units_per_second"`
	PrimaryCapSeconds   int64 `yaml:"primary_cap_seconds"`
	FailsafeCapSeconds  int64 `yaml:"failsafe_cap_seconds"`
	CooldownGraceMillis int64 `yaml:"cooldown_grace_millis"`
	DefaultIntensity    int   `yaml:"default_intensity"`

	NotifyPlugin   string `yaml:"notify_plugin"`
	DesktopNotices bool   `yaml:"desktop_notices"`
}

func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	return Config{
		DataDir:             dataDir,
		DBPath:              filepath.Join(dataDir, "minesync.db"),
		SnapshotPath:        filepath.Join(dataDir, SnapshotFileName),
		HubSocket:           filepath.Join(dataDir, HubSocketFileName),
		ReceiptsDir:         filepath.Join(dataDir, "receipts"),
		ListenAddr:          "127.0.0.1:7411",
		UserID:              "local",
		LogLevel:            "info",
		RateUnitsPerSecond:  1,
		PrimaryCapSeconds:   86400,
		FailsafeCapSeconds:  172800,
		CooldownGraceMillis: 3000,
		DefaultIntensity:    50,
	}, nil
}

// Load overlays the YAML file at path (or <dataDir>/minesync.yaml when empty) and
// MINESYNC_* environment variables on top of the defaults. A missing default file is not an error.
func Load(dataDir, path string) (Config, error) {
	cfg, err := New(dataDir)
	if err != nil {
		return Config{}, err
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dataDir, DefaultFileName)
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MINESYNC_USER")); v != "" {
		cfg.UserID = v
	}
	if v := strings.TrimSpace(os.Getenv("MINESYNC_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MINESYNC_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
}

func (c Config) Validate() error {
	if c.RateUnitsPerSecond <= 0 {
		return fmt.Errorf("rate_units_per_second must be positive")
	}
	if c.PrimaryCapSeconds <= 0 || c.FailsafeCapSeconds <= 0 {
		return fmt.Errorf("session caps must be positive")
	}
	if c.FailsafeCapSeconds < c.PrimaryCapSeconds {
		return fmt.Errorf("failsafe_cap_seconds must be >= primary_cap_seconds")
	}
	if c.CooldownGraceMillis < 0 {
		return fmt.Errorf("cooldown_grace_millis must not be negative")
	}
	if c.DefaultIntensity < 1 || c.DefaultIntensity > 100 {
		return fmt.Errorf("default_intensity must be within 1..100")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}
