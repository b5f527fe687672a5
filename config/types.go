package config

import (
	"os"
	"strings"
	"time"
)

// History selects the swap history database used by paird.
type History struct {
	// Driver is sqlite or postgres.
	Driver string `toml:"Driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `toml:"DSN"`
}

// Auth configures the HS256 bearer tokens whose subject is the caller address.
type Auth struct {
	HMACSecret       string `toml:"HMACSecret"`
	HMACSecretEnv    string `toml:"HMACSecretEnv"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds uint32 `toml:"ClockSkewSeconds"`
}

// Secret returns the configured secret, preferring the environment variable.
func (a Auth) Secret() string {
	if name := strings.TrimSpace(a.HMACSecretEnv); name != "" {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

// ClockSkew is the leeway applied to token expiry checks.
func (a Auth) ClockSkew() time.Duration {
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

// Logging mirrors observability/logging.Options.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// TLS configures the HTTP listener certificate. The listener serves plain
// HTTP when both files are empty.
type TLS struct {
	CertFile string `toml:"CertFile"`
	KeyFile  string `toml:"KeyFile"`
}

// Enabled reports whether a certificate is configured.
func (t TLS) Enabled() bool {
	return strings.TrimSpace(t.CertFile) != "" || strings.TrimSpace(t.KeyFile) != ""
}
