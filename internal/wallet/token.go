package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	pairingRequestType = "p2p-pairing-request"
	protocolVersion    = "3"
	checksumLen        = 4
)

// PairingRequest is the payload of a pairing token. The wallet scans it,
// answers on the relay and encrypts its answer to PublicKey.
type PairingRequest struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	PublicKey   string `json:"publicKey"`
	RelayServer string `json:"relayServer"`
}

// EncodeToken serialises req as base58check encoded JSON.
func EncodeToken(req PairingRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling pairing request: %w", err)
	}

	return base58.Encode(append(payload, checksum(payload)...)), nil
}

func DecodeToken(token string) (PairingRequest, error) {
	raw, err := base58.Decode(token)
	if err != nil {
		return PairingRequest{}, fmt.Errorf("decoding base58: %w", err)
	}

	if len(raw) <= checksumLen {
		return PairingRequest{}, errors.New("pairing token too short")
	}

	payload, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(sum, checksum(payload)) {
		return PairingRequest{}, errors.New("pairing token checksum mismatch")
	}

	var req PairingRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return PairingRequest{}, fmt.Errorf("unmarshaling pairing request: %w", err)
	}

	if req.Type != pairingRequestType || req.ID == "" {
		return PairingRequest{}, fmt.Errorf("unexpected pairing request type %q", req.Type)
	}

	return req, nil
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	return second[:checksumLen]
}
