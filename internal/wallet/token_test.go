package wallet_test

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/contract-calculator/internal/wallet"
)

func TestTokenRoundTrip(t *testing.T) {
	req := wallet.PairingRequest{
		ID:          "5d1b7d3e-0f3a-4b43-9b0c-2c5b1a4e7f10",
		Type:        "p2p-pairing-request",
		Name:        "Contract Calculator",
		Version:     "3",
		PublicKey:   "ab12",
		RelayServer: "relay.example.org",
	}

	token, err := wallet.EncodeToken(req)
	require.NoError(t, err)

	got, err := wallet.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDecodeToken(t *testing.T) {
	valid, err := wallet.EncodeToken(wallet.PairingRequest{ID: "id", Type: "p2p-pairing-request"})
	require.NoError(t, err)

	raw, err := base58.Decode(valid)
	require.NoError(t, err)
	raw[0] ^= 0xff
	corrupted := base58.Encode(raw)

	wrongType, err := wallet.EncodeToken(wallet.PairingRequest{ID: "id", Type: "something-else"})
	require.NoError(t, err)

	noID, err := wallet.EncodeToken(wallet.PairingRequest{Type: "p2p-pairing-request"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "not base58", token: "0OIl"},
		{name: "too short", token: base58.Encode([]byte{1, 2, 3})},
		{name: "checksum mismatch", token: corrupted},
		{name: "wrong type", token: wrongType},
		{name: "missing id", token: noID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wallet.DecodeToken(tt.token)
			assert.Error(t, err)
		})
	}
}
