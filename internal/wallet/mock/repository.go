package walletmock

import (
	"context"
	"sync"
	"time"

	"github.com/openkcm/contract-calculator/internal/serviceerr"
	"github.com/openkcm/contract-calculator/internal/wallet"
)

type Repository struct {
	mu       sync.Mutex
	Pairings map[string]wallet.Pairing

	loadErr, storeErr, deleteErr error
}

type RepositoryOption func(*Repository)

func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) { r.loadErr = err }
}

func WithStoreError(err error) RepositoryOption {
	return func(r *Repository) { r.storeErr = err }
}

func WithDeleteError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteErr = err }
}

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		Pairings: make(map[string]wallet.Pairing),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Repository) LoadPairing(_ context.Context, pairingID string) (wallet.Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return wallet.Pairing{}, r.loadErr
	}

	if p, ok := r.Pairings[pairingID]; ok {
		return p, nil
	}

	return wallet.Pairing{}, serviceerr.ErrNotFound
}

func (r *Repository) StorePairing(_ context.Context, pairing wallet.Pairing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeErr != nil {
		return r.storeErr
	}

	r.Pairings[pairing.ID] = pairing
	return nil
}

func (r *Repository) DeletePairing(_ context.Context, pairingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	if _, ok := r.Pairings[pairingID]; !ok {
		return serviceerr.ErrNotFound
	}

	delete(r.Pairings, pairingID)
	return nil
}

func (r *Repository) DeleteExpiredPairings(_ context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return 0, r.deleteErr
	}

	var n int64
	for id, p := range r.Pairings {
		if p.Status == wallet.PairingPending && p.Expiry.Before(t) {
			delete(r.Pairings, id)
			n++
		}
	}

	return n, nil
}

// Len returns the number of stored pairings.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Pairings)
}
