// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const (
	PairingBackendValkey = "valkey"
	PairingBackendSQL    = "sql"

	ClientAuthInsecure = "insecure"
	ClientAuthMTLS     = "mtls"
	ClientAuthAPIKey   = "api_key"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Chain       Chain       `yaml:"chain"`
	Pairing     Pairing     `yaml:"pairing"`
	Housekeeper Housekeeper `yaml:"housekeeper"`

	Database Database `yaml:"database"`
	ValKey   ValKey   `yaml:"valkey"`
}

type Chain struct {
	RPCURL          string `yaml:"rpcURL" default:"https://ghostnet.ecadinfra.com"`
	ContractAddress string `yaml:"contractAddress" default:"KT1FWGvZMxeB1SRaGi27EsJVqA9pfu61E861"`
	// PollInterval paces the block polling while waiting for a confirmation.
	PollInterval       time.Duration `yaml:"pollInterval" default:"2s"`
	EntrypointCacheTTL time.Duration `yaml:"entrypointCacheTTL" default:"1h"`
	// ConfirmationTimeout of zero waits for a confirmation forever.
	ConfirmationTimeout time.Duration `yaml:"confirmationTimeout" default:"0s"`
	ClientAuth          ClientAuth    `yaml:"clientAuth"`
}

// ClientAuth configures how the RPC node is reached.
type ClientAuth struct {
	Type         string              `yaml:"type" default:"insecure"`
	MTLS         *commoncfg.MTLS     `yaml:"mtls"`
	APIKey       commoncfg.SourceRef `yaml:"apiKey"`
	APIKeyHeader string              `yaml:"apiKeyHeader" default:"X-Api-Key"`
}

type Pairing struct {
	AppName     string        `yaml:"appName" default:"Contract Calculator"`
	Backend     string        `yaml:"backend" default:"valkey"`
	RequestTTL  time.Duration `yaml:"requestTTL" default:"15m"`
	RelayServer string        `yaml:"relayServer"`
	// AwaitTimeout of zero waits for the wallet until the command is interrupted.
	AwaitTimeout time.Duration `yaml:"awaitTimeout" default:"0s"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"5m"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"contract-calculator"`
	MTLS     *commoncfg.MTLS     `yaml:"mtls"`
}

// Validate checks the values LoadConfig cannot check on its own.
func (c *Config) Validate() error {
	var errs []error

	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("chain.rpcURL is required"))
	}

	if c.Chain.ContractAddress == "" {
		errs = append(errs, errors.New("chain.contractAddress is required"))
	}

	if c.Chain.PollInterval <= 0 {
		errs = append(errs, errors.New("chain.pollInterval must be positive"))
	}

	switch c.Chain.ClientAuth.Type {
	case ClientAuthInsecure, ClientAuthAPIKey:
	case ClientAuthMTLS:
		if c.Chain.ClientAuth.MTLS == nil {
			errs = append(errs, errors.New("chain.clientAuth.mtls is required for mtls client auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chain.clientAuth.type %q", c.Chain.ClientAuth.Type))
	}

	switch c.Pairing.Backend {
	case PairingBackendValkey, PairingBackendSQL:
	default:
		errs = append(errs, fmt.Errorf("unknown pairing.backend %q", c.Pairing.Backend))
	}

	if c.Pairing.RequestTTL <= 0 {
		errs = append(errs, errors.New("pairing.requestTTL must be positive"))
	}

	return errors.Join(errs...)
}
