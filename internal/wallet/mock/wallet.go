package walletmock

import (
	"context"
	"fmt"

	"github.com/openkcm/contract-calculator/internal/wallet"
)

// Wallet plays the remote wallet side of a pairing for tests.
type Wallet struct {
	relay     wallet.Relay
	pairingID string
	peerKey   []byte
	publicKey []byte
	secretKey []byte
}

// NewWallet scans token the way a real wallet would.
func NewWallet(relay wallet.Relay, token string) (*Wallet, error) {
	req, err := wallet.DecodeToken(token)
	if err != nil {
		return nil, err
	}

	peerKey, err := wallet.DecodeKey(req.PublicKey)
	if err != nil {
		return nil, err
	}

	pub, sec, err := wallet.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	return &Wallet{
		relay:     relay,
		pairingID: req.ID,
		peerKey:   peerKey,
		publicKey: pub,
		secretKey: sec,
	}, nil
}

func (w *Wallet) PairingID() string {
	return w.pairingID
}

// Approve grants address to the dApp.
func (w *Wallet) Approve(ctx context.Context, address string) error {
	return w.Send(ctx, wallet.Message{
		Type:    wallet.MessagePairingResponse,
		ID:      w.pairingID,
		Address: address,
	})
}

// Reject refuses the pairing.
func (w *Wallet) Reject(ctx context.Context) error {
	return w.Send(ctx, wallet.Message{
		Type:      wallet.MessageError,
		ID:        w.pairingID,
		ErrorType: "ABORTED_ERROR",
	})
}

// NextRequest blocks until the dApp sends something to the wallet.
func (w *Wallet) NextRequest(ctx context.Context) (wallet.Message, error) {
	raw, err := w.relay.Receive(ctx, wallet.WalletMailbox(w.pairingID))
	if err != nil {
		return wallet.Message{}, err
	}

	return wallet.OpenMessage(raw, w.publicKey, w.secretKey)
}

// Respond answers request with a broadcast operation hash.
func (w *Wallet) Respond(ctx context.Context, requestID, operationHash string) error {
	return w.Send(ctx, wallet.Message{
		Type:          wallet.MessageOperationResponse,
		ID:            requestID,
		OperationHash: operationHash,
	})
}

// Refuse answers request with an error.
func (w *Wallet) Refuse(ctx context.Context, requestID, errorType string) error {
	return w.Send(ctx, wallet.Message{
		Type:      wallet.MessageError,
		ID:        requestID,
		ErrorType: errorType,
	})
}

// Serve answers every operation request with hashFor until ctx is done or
// the dApp disconnects.
func (w *Wallet) Serve(ctx context.Context, hashFor func(wallet.Message) string) error {
	for {
		msg, err := w.NextRequest(ctx)
		if err != nil {
			return err
		}

		switch msg.Type {
		case wallet.MessageDisconnect:
			return nil
		case wallet.MessageOperationRequest:
			if err := w.Respond(ctx, msg.ID, hashFor(msg)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected message type %s", msg.Type)
		}
	}
}

func (w *Wallet) Send(ctx context.Context, msg wallet.Message) error {
	msg.SenderPublicKey = wallet.EncodeKey(w.publicKey)

	sealed, err := wallet.SealMessage(msg, w.peerKey)
	if err != nil {
		return err
	}

	return w.relay.Send(ctx, wallet.DAppMailbox(w.pairingID), sealed)
}
