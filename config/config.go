package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration read by paird and pair-audit.
type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	Environment   string    `toml:"Environment"`
	DataDir       string    `toml:"DataDir"`
	DBBackend     string    `toml:"DBBackend"`
	GenesisFile   string    `toml:"GenesisFile"`
	History       History   `toml:"history"`
	Auth          Auth      `toml:"auth"`
	Logging       Logging   `toml:"logging"`
	Telemetry     Telemetry `toml:"telemetry"`
	TLS           TLS       `toml:"tls"`
}

const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"

	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
)

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddress: ":7080",
		Environment:   "local",
		DataDir:       "./pair-data",
		DBBackend:     BackendLevelDB,
		GenesisFile:   "genesis.yaml",
		History:       History{Driver: HistorySQLite},
		Auth:          Auth{ClockSkewSeconds: 120},
		Logging:       Logging{Level: "info"},
		Telemetry:     Telemetry{SampleRatio: 1},
	}
}

func applyDefaults(cfg *Config) {
	def := defaults()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.DBBackend) == "" {
		cfg.DBBackend = def.DBBackend
	}
	cfg.DBBackend = strings.ToLower(strings.TrimSpace(cfg.DBBackend))
	if strings.TrimSpace(cfg.History.Driver) == "" {
		cfg.History.Driver = def.History.Driver
	}
	cfg.History.Driver = strings.ToLower(strings.TrimSpace(cfg.History.Driver))
	if cfg.Auth.ClockSkewSeconds == 0 {
		cfg.Auth.ClockSkewSeconds = def.Auth.ClockSkewSeconds
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
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
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// StatePath is the LevelDB directory holding pair state and the token ledger.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

// HistoryDSN returns the history database DSN, defaulting to a SQLite file
// under the data directory.
func (c *Config) HistoryDSN() string {
	if dsn := strings.TrimSpace(c.History.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "history.sqlite")
}

// GenesisPath resolves the genesis file relative to the directory holding the
// config file.
func (c *Config) GenesisPath(configPath string) string {
	if filepath.IsAbs(c.GenesisFile) {
		return c.GenesisFile
	}
	return filepath.Join(filepath.Dir(configPath), c.GenesisFile)
}
