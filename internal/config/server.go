package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"
)

// ServerConfig groups the two public listeners.
type ServerConfig struct {
	Control ControlPlaneConfig `envconfig:"CONTROL"`
	Data    DataPlaneConfig    `envconfig:"DATA"`
}

// ControlPlaneConfig configures the REST API used to manage variables and
// push record mutations.
type ControlPlaneConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port string `envconfig:"PORT" default:"8080"`

	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`

	// MaxHeaderBytes defaults to 512KB, MaxBodyBytes to 1MB.
	MaxHeaderBytes int   `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"`
	MaxBodyBytes   int64 `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"min=1"`

	// APIKeyHash is the hex SHA-256 of the bearer key. Empty disables auth
	// outside production.
	APIKeyHash string `envconfig:"API_KEY_HASH"`

	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE"`
	TLSKey     string `envconfig:"TLS_KEY_FILE"`
}

func (c *ControlPlaneConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate checks the listener and, in production, requires both an API
// key and TLS.
func (c *ControlPlaneConfig) Validate(environment string) error {
	if err := validateListener(c.Host, c.Port, "control plane"); err != nil {
		return err
	}

	if c.APIKeyHash != "" {
		if err := validateSHA256Hash(c.APIKeyHash); err != nil {
			return fmt.Errorf("invalid API key hash: %w", err)
		}
	}

	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return errors.New("TLS enabled but cert or key file not specified")
	}

	if environment != EnvironmentProduction {
		return nil
	}
	switch {
	case c.APIKeyHash == "":
		return errors.New("API key hash is required in production environment")
	case !c.TLSEnabled:
		return errors.New("TLS must be enabled in production environment")
	}
	return nil
}

// DataPlaneConfig configures the gRPC evaluation server.
type DataPlaneConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`
	Port    string `envconfig:"PORT" default:"50051"`

	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
}

func (c *DataPlaneConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate is skipped entirely when the data plane is disabled.
func (c *DataPlaneConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validateListener(c.Host, c.Port, "data plane")
}

func validateListener(host, port, name string) error {
	if err := validateHost(host, name); err != nil {
		return err
	}
	return validatePort(port, name)
}

// validateSHA256Hash expects 64 hex characters.
func validateSHA256Hash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("SHA-256 hash must be 64 characters, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("hash must be valid hexadecimal: %w", err)
	}
	return nil
}
