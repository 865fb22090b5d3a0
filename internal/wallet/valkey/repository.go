package walletvalkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/contract-calculator/internal/wallet"
)

const objectTypePairing = "pairing"

type Repository struct {
	store *store
}

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) LoadPairing(ctx context.Context, pairingID string) (p wallet.Pairing, _ error) {
	if err := r.store.Get(ctx, objectTypePairing, pairingID, &p); err != nil {
		return wallet.Pairing{}, fmt.Errorf("getting pairing from store: %w", err)
	}

	return p, nil
}

// StorePairing keeps the pairing until its expiry. A pairing without
// expiry never expires.
func (r *Repository) StorePairing(ctx context.Context, p wallet.Pairing) error {
	var ttl time.Duration
	if !p.Expiry.IsZero() {
		ttl = time.Until(p.Expiry)
		if ttl <= 0 {
			return fmt.Errorf("pairing %s already expired", p.ID)
		}
	}

	if err := r.store.Set(ctx, objectTypePairing, p.ID, p, ttl); err != nil {
		return fmt.Errorf("setting pairing into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeletePairing(ctx context.Context, pairingID string) error {
	if err := r.store.Destroy(ctx, objectTypePairing, pairingID); err != nil {
		return fmt.Errorf("deleting pairing from store: %w", err)
	}

	return nil
}

// DeleteExpiredPairings is a no-op: valkey expires pairing keys itself.
func (r *Repository) DeleteExpiredPairings(context.Context, time.Time) (int64, error) {
	return 0, nil
}
