package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/openkcm/contract-calculator/internal/chain"
)

type MessageType string

const (
	MessagePairingResponse   MessageType = "pairing_response"
	MessageOperationRequest  MessageType = "operation_request"
	MessageOperationResponse MessageType = "operation_response"
	MessageError             MessageType = "error"
	MessageDisconnect        MessageType = "disconnect"
)

// Message is exchanged over the relay, always sealed to the recipient's key.
type Message struct {
	Type            MessageType        `json:"type"`
	ID              string             `json:"id"`
	SenderPublicKey string             `json:"senderPublicKey,omitempty"`
	Address         string             `json:"address,omitempty"`
	Operation       *chain.Transaction `json:"operation,omitempty"`
	OperationHash   string             `json:"transactionHash,omitempty"`
	ErrorType       string             `json:"errorType,omitempty"`
}

// SealMessage encrypts msg so that only the holder of recipient's secret key can read it.
func SealMessage(msg Message, recipient []byte) ([]byte, error) {
	recipientKey, err := toKey(recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient key: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %w", err)
	}

	sealed, err := box.SealAnonymous(nil, payload, recipientKey, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sealing message: %w", err)
	}

	return sealed, nil
}

func OpenMessage(sealed, publicKey, secretKey []byte) (Message, error) {
	pub, err := toKey(publicKey)
	if err != nil {
		return Message{}, fmt.Errorf("public key: %w", err)
	}

	priv, err := toKey(secretKey)
	if err != nil {
		return Message{}, fmt.Errorf("secret key: %w", err)
	}

	payload, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	if !ok {
		return Message{}, errors.New("message cannot be opened with our key")
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshaling message: %w", err)
	}

	return msg, nil
}

// GenerateKeyPair returns a fresh box key pair.
func GenerateKeyPair() (publicKey, secretKey []byte, _ error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating key pair: %w", err)
	}

	return pub[:], priv[:], nil
}

func EncodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex key: %w", err)
	}

	if _, err := toKey(key); err != nil {
		return nil, err
	}

	return key, nil
}

func toKey(b []byte) (*[32]byte, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(b))
	}

	var key [32]byte
	copy(key[:], b)

	return &key, nil
}
