package common

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/flashbots/noisyagg/api/httpserver"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/oracle"
	"github.com/flashbots/noisyagg/protocol"
	"github.com/flashbots/noisyagg/services"
	"gopkg.in/yaml.v3"
)

// Config is the ledger daemon configuration file.
type Config struct {
	Log      LogConfig                `yaml:"log"`
	HTTP     HTTPConfig               `yaml:"http"`
	Ledger   LedgerConfig             `yaml:"ledger"`
	FHE      fhe.ParametersConfig     `yaml:"fhe"`
	Oracle   OracleConfig             `yaml:"oracle"`
	Postgres *services.PostgresConfig `yaml:"postgres"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// HTTPConfig configures the API and metrics servers.
type HTTPConfig struct {
	ListenAddr               string        `yaml:"listen_addr"`
	MetricsAddr              string        `yaml:"metrics_addr"`
	EnablePprof              bool          `yaml:"enable_pprof"`
	DrainDuration            time.Duration `yaml:"drain_duration"`
	GracefulShutdownDuration time.Duration `yaml:"graceful_shutdown_duration"`
	ReadTimeout              time.Duration `yaml:"read_timeout"`
	WriteTimeout             time.Duration `yaml:"write_timeout"`
	CORSAllowedOrigins       []string      `yaml:"cors_allowed_origins"`
	TrustProxyHeaders        bool          `yaml:"trust_proxy_headers"`
	RateLimit                float64       `yaml:"rate_limit"`
	RateBurst                int           `yaml:"rate_burst"`
}

// LedgerConfig holds the ledger deployment settings.
type LedgerConfig struct {
	DeploymentID       string        `yaml:"deployment_id"`
	OwnerPublicKey     string        `yaml:"owner_public_key"`
	SubmissionCooldown time.Duration `yaml:"submission_cooldown"`
	DecryptionCooldown time.Duration `yaml:"decryption_cooldown"`
}

// OracleConfig configures the local decryption oracle.
type OracleConfig struct {
	oracle.Config `yaml:",inline"`

	// SigningKey is the hex-encoded Ed25519 proof key. Generated if empty.
	SigningKey string `yaml:"signing_key"`

	// CallbackURL, when set, makes the oracle deliver results over HTTP
	// instead of in-process.
	CallbackURL string `yaml:"callback_url"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			ListenAddr:               ":8080",
			MetricsAddr:              ":8090",
			DrainDuration:            5 * time.Second,
			GracefulShutdownDuration: 10 * time.Second,
			ReadTimeout:              15 * time.Second,
			WriteTimeout:             15 * time.Second,
			RateLimit:                50,
			RateBurst:                100,
		},
		Ledger: LedgerConfig{
			DeploymentID:       "noisyagg-local",
			SubmissionCooldown: time.Second,
			DecryptionCooldown: 10 * time.Second,
		},
		FHE:    fhe.DefaultParametersConfig(),
		Oracle: OracleConfig{Config: oracle.DefaultConfig()},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// ProtocolConfig converts the ledger section for protocol.NewLedger.
func (c *Config) ProtocolConfig() *protocol.LedgerConfig {
	return &protocol.LedgerConfig{
		DeploymentID:       c.Ledger.DeploymentID,
		SubmissionCooldown: c.Ledger.SubmissionCooldown,
		DecryptionCooldown: c.Ledger.DecryptionCooldown,
	}
}

// HTTPServerConfig converts the http section for httpserver.New.
func (c *Config) HTTPServerConfig(log *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		Log:                      log,
		ListenAddr:               c.HTTP.ListenAddr,
		MetricsAddr:              c.HTTP.MetricsAddr,
		EnablePprof:              c.HTTP.EnablePprof,
		DrainDuration:            c.HTTP.DrainDuration,
		GracefulShutdownDuration: c.HTTP.GracefulShutdownDuration,
		ReadTimeout:              c.HTTP.ReadTimeout,
		WriteTimeout:             c.HTTP.WriteTimeout,
		CORSAllowedOrigins:       c.HTTP.CORSAllowedOrigins,
		TrustProxyHeaders:        c.HTTP.TrustProxyHeaders,
		RateLimit:                c.HTTP.RateLimit,
		RateBurst:                c.HTTP.RateBurst,
		RateLimitExemptPaths:     []string{services.OracleCallbackPath},
	}
}
