package wallet

import (
	"context"
	"time"
)

type Repository interface {
	LoadPairing(ctx context.Context, pairingID string) (Pairing, error)
	StorePairing(ctx context.Context, pairing Pairing) error
	DeletePairing(ctx context.Context, pairingID string) error
	// DeleteExpiredPairings removes pending pairings whose request expired
	// before t and returns how many were removed. Paired pairings are kept.
	DeleteExpiredPairings(ctx context.Context, t time.Time) (int64, error)
}

// Relay moves sealed messages between the dApp and the wallet. Each
// pairing has two mailboxes, one per direction.
type Relay interface {
	Send(ctx context.Context, mailbox string, payload []byte) error
	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context, mailbox string) ([]byte, error)
}

// DAppMailbox is where the wallet posts messages for the dApp.
func DAppMailbox(pairingID string) string {
	return pairingID + ":dapp"
}

// WalletMailbox is where the dApp posts messages for the wallet.
func WalletMailbox(pairingID string) string {
	return pairingID + ":wallet"
}
