package config

import (
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Chain: Chain{
			RPCURL:          "https://ghostnet.ecadinfra.com",
			ContractAddress: "KT1FWGvZMxeB1SRaGi27EsJVqA9pfu61E861",
			PollInterval:    2 * time.Second,
			ClientAuth:      ClientAuth{Type: ClientAuthInsecure},
		},
		Pairing: Pairing{
			Backend:    PairingBackendValkey,
			RequestTTL: 15 * time.Minute,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "valid",
			mutate:    func(*Config) {},
			assertErr: assert.NoError,
		},
		{
			name:      "sql backend",
			mutate:    func(c *Config) { c.Pairing.Backend = PairingBackendSQL },
			assertErr: assert.NoError,
		},
		{
			name: "mtls with certificates",
			mutate: func(c *Config) {
				c.Chain.ClientAuth = ClientAuth{Type: ClientAuthMTLS, MTLS: &commoncfg.MTLS{}}
			},
			assertErr: assert.NoError,
		},
		{
			name:      "mtls without certificates",
			mutate:    func(c *Config) { c.Chain.ClientAuth.Type = ClientAuthMTLS },
			assertErr: assert.Error,
		},
		{
			name:      "unknown client auth",
			mutate:    func(c *Config) { c.Chain.ClientAuth.Type = "oauth" },
			assertErr: assert.Error,
		},
		{
			name:      "missing endpoint",
			mutate:    func(c *Config) { c.Chain.RPCURL = "" },
			assertErr: assert.Error,
		},
		{
			name:      "missing contract",
			mutate:    func(c *Config) { c.Chain.ContractAddress = "" },
			assertErr: assert.Error,
		},
		{
			name:      "zero poll interval",
			mutate:    func(c *Config) { c.Chain.PollInterval = 0 },
			assertErr: assert.Error,
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Pairing.Backend = "etcd" },
			assertErr: assert.Error,
		},
		{
			name:      "zero request ttl",
			mutate:    func(c *Config) { c.Pairing.RequestTTL = 0 },
			assertErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			tt.assertErr(t, cfg.Validate())
		})
	}
}
