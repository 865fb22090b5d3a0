package wallet

import "time"

// Connectivity is the lifecycle state of a wallet pairing.
type Connectivity int

const (
	Disconnected Connectivity = iota
	AwaitingPairing
	Connected
)

func (c Connectivity) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case AwaitingPairing:
		return "awaiting_pairing"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is a snapshot of a Session.
//
// AccountAddress is set iff Connectivity is Connected and PairingToken is
// set iff Connectivity is not Disconnected.
type State struct {
	Connectivity   Connectivity
	PairingToken   string
	AccountAddress string
}

type PairingStatus string

const (
	PairingPending PairingStatus = "pending"
	PairingPaired  PairingStatus = "paired"
)

// Pairing is what the provider persists about one pairing with a remote wallet.
type Pairing struct {
	ID            string        // Pairing request ID, also names the relay mailboxes
	AppName       string        // Name shown to the user in the wallet
	PublicKey     []byte        // Our box public key, published in the pairing token
	SecretKey     []byte        // Our box secret key
	PeerPublicKey []byte        // The wallet's box public key, set once paired
	Address       string        // Account address granted by the wallet
	Status        PairingStatus // Pending until the wallet answers
	Expiry        time.Time     // Pending requests are forgotten after this; zero once paired
}
