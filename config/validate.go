package config

import (
	"fmt"
	"strings"
)

// ValidateConfig rejects node configurations paird cannot run with.
func ValidateConfig(c *Config) error {
	switch c.DBBackend {
	case BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("DBBackend: unknown backend %q", c.DBBackend)
	}
	switch c.History.Driver {
	case HistorySQLite:
	case HistoryPostgres:
		if strings.TrimSpace(c.History.DSN) == "" {
			return fmt.Errorf("history: postgres requires a DSN")
		}
	default:
		return fmt.Errorf("history: unknown driver %q", c.History.Driver)
	}
	if c.TLS.Enabled() && (strings.TrimSpace(c.TLS.CertFile) == "" || strings.TrimSpace(c.TLS.KeyFile) == "") {
		return fmt.Errorf("tls: CertFile and KeyFile must be set together")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	return nil
}
