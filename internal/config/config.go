// Package config loads the charge point's static configuration.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TLSConfig holds TLS certificate configuration for the WebSocket transport.
type TLSConfig struct {
	CAFile         string `yaml:"ca_file"`
	ServerCertFile string `yaml:"server_cert_file"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	SkipVerify     bool   `yaml:"skip_verify"`
}

// Config holds everything needed to stand up one simulated charge point.
//
// It maps directly onto spec.md §3's ChargePointConfig plus the simulation
// knobs spec.md §4.7/§9 call out (remote-start delay, configurable
// accept/reject response).
type Config struct {
	CpId         string     `yaml:"cp_id"`
	WsUrl        string     `yaml:"ws_url"`
	Subprotocols []string   `yaml:"subprotocols"`
	DefaultIdTag string     `yaml:"default_id_tag"`
	TLS          *TLSConfig `yaml:"tls"`

	// RemoteStartDelaySeconds is the simulated delay between accepting a
	// RemoteStartTransaction and actually originating StartTransaction.
	RemoteStartDelaySeconds int `yaml:"remote_start_delay_seconds"`

	// RemoteStartStopResponse is the canned status ("Accepted"/"Rejected")
	// returned to RemoteStartTransaction/RemoteStopTransaction requests.
	RemoteStartStopResponse string `yaml:"remote_start_stop_response"`

	// DurableStatePath is the sqlite file backing the durable KV namespace.
	DurableStatePath string `yaml:"durable_state_path"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls the structured logger (internal/logging.Config mirror,
// kept as plain strings here so config.yaml stays free of internal types).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file at path, applying defaults
// first the way the teacher's config.Load does.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Subprotocols:            []string{"ocpp1.6", "ocpp1.5"},
		DefaultIdTag:            "DEADBEEF",
		RemoteStartDelaySeconds: 3,
		RemoteStartStopResponse: "Accepted",
		DurableStatePath:        "durable.db",
		Log:                     LogConfig{Level: "info", Format: "console", Output: "stdout"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.CpId == "" {
		return fmt.Errorf("cp_id is required")
	}
	if c.WsUrl == "" {
		return fmt.Errorf("ws_url is required")
	}
	if len(c.Subprotocols) == 0 {
		return fmt.Errorf("subprotocols must not be empty")
	}
	if c.RemoteStartDelaySeconds < 0 {
		return fmt.Errorf("remote_start_delay_seconds cannot be negative")
	}
	if c.RemoteStartStopResponse != "Accepted" && c.RemoteStartStopResponse != "Rejected" {
		return fmt.Errorf("remote_start_stop_response must be 'Accepted' or 'Rejected'")
	}
	return nil
}

// GetTLSConfig returns a *tls.Config for the WebSocket dialer, or nil if TLS
// was not configured.
func (c *Config) GetTLSConfig() (*tls.Config, error) {
	if c.TLS == nil {
		return nil, nil
	}

	tlsConfig := &tls.Config{}
	if c.TLS.SkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	certPool := x509.NewCertPool()
	hasCerts := false

	if c.TLS.CAFile != "" {
		caCert, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		hasCerts = true
	}

	if c.TLS.ServerCertFile != "" {
		serverCert, err := os.ReadFile(c.TLS.ServerCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read server certificate: %w", err)
		}
		if !certPool.AppendCertsFromPEM(serverCert) {
			return nil, fmt.Errorf("failed to parse server certificate")
		}
		hasCerts = true
	}

	if hasCerts {
		tlsConfig.RootCAs = certPool
	}

	if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
