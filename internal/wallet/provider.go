package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

type ProviderConfig struct {
	AppName     string
	RelayServer string
	RequestTTL  time.Duration
}

// Provider pairs with a remote wallet over a Relay and forwards operations
// to it for signing. It keeps at most one active pairing.
type Provider struct {
	relay    Relay
	pairings Repository
	cfg      ProviderConfig

	mu       sync.Mutex
	activeID string
}

var (
	_ PairingProvider = (*Provider)(nil)
	_ chain.Signer    = (*Provider)(nil)
)

func NewProvider(cfg ProviderConfig, relay Relay, pairings Repository) *Provider {
	return &Provider{
		relay:    relay,
		pairings: pairings,
		cfg:      cfg,
	}
}

// CreatePairingRequest stores a new pending pairing and returns its token.
func (p *Provider) CreatePairingRequest(ctx context.Context) (string, error) {
	publicKey, secretKey, err := GenerateKeyPair()
	if err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrPairingUnavailable, err)
	}

	pairing := Pairing{
		ID:        uuid.NewString(),
		AppName:   p.cfg.AppName,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Status:    PairingPending,
		Expiry:    time.Now().Add(p.cfg.RequestTTL),
	}

	token, err := EncodeToken(PairingRequest{
		ID:          pairing.ID,
		Type:        pairingRequestType,
		Name:        p.cfg.AppName,
		Version:     protocolVersion,
		PublicKey:   EncodeKey(publicKey),
		RelayServer: p.cfg.RelayServer,
	})
	if err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrPairingUnavailable, err)
	}

	if err := p.pairings.StorePairing(ctx, pairing); err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrPairingUnavailable, fmt.Errorf("storing pairing: %w", err))
	}

	p.mu.Lock()
	p.activeID = pairing.ID
	p.mu.Unlock()

	slogctx.Info(ctx, "Created pairing request", "pairing_id", pairing.ID)

	return token, nil
}

// AwaitPairing blocks until the wallet answers the pairing request behind token.
func (p *Provider) AwaitPairing(ctx context.Context, token string) (string, error) {
	req, err := DecodeToken(token)
	if err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, err)
	}

	ctx = slogctx.With(ctx, "pairing_id", req.ID)

	pairing, err := p.pairings.LoadPairing(ctx, req.ID)
	if err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, fmt.Errorf("loading pairing: %w", err))
	}

	for {
		msg, err := p.receive(ctx, pairing)
		if err != nil {
			return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, err)
		}

		switch msg.Type {
		case MessagePairingResponse:
			peerKey, err := DecodeKey(msg.SenderPublicKey)
			if err != nil {
				return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, fmt.Errorf("wallet public key: %w", err))
			}
			if msg.Address == "" {
				return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, errors.New("wallet granted no account"))
			}

			pairing.PeerPublicKey = peerKey
			pairing.Address = msg.Address
			pairing.Status = PairingPaired
			// the request expiry does not bound the paired session
			pairing.Expiry = time.Time{}
			if err := p.pairings.StorePairing(ctx, pairing); err != nil {
				return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, fmt.Errorf("storing pairing: %w", err))
			}

			slogctx.Info(ctx, "Wallet paired", "address", msg.Address)
			return msg.Address, nil
		case MessageError, MessageDisconnect:
			return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, fmt.Errorf("wallet answered %s %s", msg.Type, msg.ErrorType))
		default:
			slogctx.Warn(ctx, "Ignoring unexpected message while pairing", "type", msg.Type)
		}
	}
}

// RequestOperation asks the paired wallet to sign and broadcast tx and
// returns the operation hash.
func (p *Provider) RequestOperation(ctx context.Context, tx chain.Transaction) (string, error) {
	pairing, err := p.activePairing(ctx)
	if err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrSubmissionRejected, err)
	}

	request := Message{
		Type:            MessageOperationRequest,
		ID:              uuid.NewString(),
		SenderPublicKey: EncodeKey(pairing.PublicKey),
		Operation:       &tx,
	}

	ctx = slogctx.With(ctx, "pairing_id", pairing.ID, "request_id", request.ID)

	if err := p.send(ctx, pairing, request); err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrSubmissionRejected, err)
	}

	for {
		msg, err := p.receive(ctx, pairing)
		if err != nil {
			return "", serviceerr.Wrap(serviceerr.ErrSubmissionRejected, err)
		}

		if msg.Type == MessageDisconnect {
			return "", serviceerr.Wrap(serviceerr.ErrSubmissionRejected, errors.New("wallet disconnected"))
		}

		if msg.ID != request.ID {
			slogctx.Warn(ctx, "Ignoring message for another request", "type", msg.Type, "message_id", msg.ID)
			continue
		}

		switch msg.Type {
		case MessageOperationResponse:
			return msg.OperationHash, nil
		case MessageError:
			return "", serviceerr.Wrap(serviceerr.ErrSubmissionRejected, fmt.Errorf("wallet refused the operation: %s", msg.ErrorType))
		default:
			slogctx.Warn(ctx, "Ignoring unexpected message type", "type", msg.Type)
		}
	}
}

// Teardown notifies the wallet and forgets the active pairing.
func (p *Provider) Teardown(ctx context.Context) error {
	p.mu.Lock()
	pairingID := p.activeID
	p.activeID = ""
	p.mu.Unlock()

	if pairingID == "" {
		return nil
	}

	var errs []error

	pairing, err := p.pairings.LoadPairing(ctx, pairingID)
	if err != nil {
		errs = append(errs, fmt.Errorf("loading pairing: %w", err))
	} else if pairing.Status == PairingPaired {
		msg := Message{Type: MessageDisconnect, ID: uuid.NewString(), SenderPublicKey: EncodeKey(pairing.PublicKey)}
		if err := p.send(ctx, pairing, msg); err != nil {
			errs = append(errs, fmt.Errorf("notifying wallet: %w", err))
		}
	}

	if err := p.pairings.DeletePairing(ctx, pairingID); err != nil {
		errs = append(errs, fmt.Errorf("deleting pairing: %w", err))
	}

	return errors.Join(errs...)
}

func (p *Provider) activePairing(ctx context.Context) (Pairing, error) {
	p.mu.Lock()
	pairingID := p.activeID
	p.mu.Unlock()

	if pairingID == "" {
		return Pairing{}, errors.New("no active pairing")
	}

	pairing, err := p.pairings.LoadPairing(ctx, pairingID)
	if err != nil {
		return Pairing{}, fmt.Errorf("loading pairing: %w", err)
	}

	if pairing.Status != PairingPaired {
		return Pairing{}, fmt.Errorf("pairing %s is %s", pairing.ID, pairing.Status)
	}

	return pairing, nil
}

func (p *Provider) send(ctx context.Context, pairing Pairing, msg Message) error {
	sealed, err := SealMessage(msg, pairing.PeerPublicKey)
	if err != nil {
		return err
	}

	if err := p.relay.Send(ctx, WalletMailbox(pairing.ID), sealed); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type, err)
	}

	return nil
}

// receive returns the next message that opens with our key; anything else
// on the mailbox is dropped.
func (p *Provider) receive(ctx context.Context, pairing Pairing) (Message, error) {
	for {
		raw, err := p.relay.Receive(ctx, DAppMailbox(pairing.ID))
		if err != nil {
			return Message{}, fmt.Errorf("receiving from relay: %w", err)
		}

		msg, err := OpenMessage(raw, pairing.PublicKey, pairing.SecretKey)
		if err != nil {
			slogctx.Warn(ctx, "Dropping unreadable relay message", "error", err)
			continue
		}

		return msg, nil
	}
}
