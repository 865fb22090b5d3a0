package wallet

import (
	"context"
	"errors"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

type PairingProvider interface {
	CreatePairingRequest(ctx context.Context) (string, error)
	// AwaitPairing blocks until the wallet accepts or rejects, and returns the granted address.
	AwaitPairing(ctx context.Context, token string) (string, error)
	Teardown(ctx context.Context) error
}

// Session owns the lifecycle of one wallet pairing:
// Disconnected -> AwaitingPairing -> Connected -> Disconnected.
type Session struct {
	provider PairingProvider

	mu          sync.Mutex
	state       State
	beginning   bool
	generation  uint64 // bumped by every Disconnect
	cancelBegin context.CancelFunc
	cancelAwait context.CancelFunc
}

func NewSession(provider PairingProvider) *Session {
	return &Session{provider: provider}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// BeginPairing obtains a pairing token from the provider. The provider is
// called without holding the session lock; a Disconnect meanwhile cancels
// the request and the fresh pairing is torn down again.
func (s *Session) BeginPairing(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state.Connectivity != Disconnected || s.beginning {
		s.mu.Unlock()
		return "", serviceerr.ErrInvalidState
	}

	generation := s.generation
	beginCtx, cancel := context.WithCancel(ctx)
	s.beginning = true
	s.cancelBegin = cancel
	s.mu.Unlock()

	defer cancel()

	token, err := s.provider.CreatePairingRequest(beginCtx)
	if err == nil && token == "" {
		err = errors.New("provider returned an empty pairing token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.beginning = false
	s.cancelBegin = nil

	if s.generation != generation {
		if err == nil {
			s.teardown(ctx)
		}
		return "", serviceerr.Wrap(serviceerr.ErrPairingUnavailable, errors.New("pairing cancelled"))
	}

	if err != nil {
		return "", serviceerr.Wrap(serviceerr.ErrPairingUnavailable, err)
	}

	s.state = State{Connectivity: AwaitingPairing, PairingToken: token}

	return token, nil
}

// AwaitConnection suspends until the wallet completes pairing. Cancelling
// ctx or calling Disconnect while waiting fails with ErrPairingRejected.
func (s *Session) AwaitConnection(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state.Connectivity != AwaitingPairing {
		s.mu.Unlock()
		return "", serviceerr.ErrInvalidState
	}

	token := s.state.PairingToken
	awaitCtx, cancel := context.WithCancel(ctx)
	s.cancelAwait = cancel
	s.mu.Unlock()

	defer cancel()

	address, err := s.provider.AwaitPairing(awaitCtx, token)
	if err == nil && address == "" {
		err = errors.New("provider returned an empty account address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.Connectivity == AwaitingPairing && s.state.PairingToken == token
	if !current {
		return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, errors.New("pairing cancelled"))
	}

	s.cancelAwait = nil

	if err != nil {
		s.reset(ctx)
		return "", serviceerr.Wrap(serviceerr.ErrPairingRejected, err)
	}

	s.state.Connectivity = Connected
	s.state.AccountAddress = address

	return address, nil
}

// Disconnect tears the pairing down. It is idempotent and never fails;
// teardown errors are only logged.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++

	if s.cancelBegin != nil {
		s.cancelBegin()
		s.cancelBegin = nil
	}

	if s.cancelAwait != nil {
		s.cancelAwait()
		s.cancelAwait = nil
	}

	if s.state.Connectivity == Disconnected {
		return
	}

	s.reset(ctx)
}

// reset must be called with mu held.
func (s *Session) reset(ctx context.Context) {
	s.state = State{}
	s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) {
	if err := s.provider.Teardown(context.WithoutCancel(ctx)); err != nil {
		slogctx.Warn(ctx, "Wallet pairing teardown failed", "error", err)
	}
}
