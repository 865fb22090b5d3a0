package walletsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/openkcm/contract-calculator/internal/serviceerr"
	"github.com/openkcm/contract-calculator/internal/wallet"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) LoadPairing(ctx context.Context, pairingID string) (wallet.Pairing, error) {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "load_pairing_sql")
	defer span.End()

	var p wallet.Pairing
	var status string
	var expiry *time.Time

	err := r.db.QueryRow(ctx,
		`SELECT id, app_name, public_key, secret_key, peer_public_key, address, status, expiry
			 FROM pairings WHERE id = $1;`, pairingID,
	).Scan(&p.ID, &p.AppName, &p.PublicKey, &p.SecretKey, &p.PeerPublicKey, &p.Address, &status, &expiry)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, pgx.ErrNoRows) {
			return wallet.Pairing{}, serviceerr.ErrNotFound
		}

		return wallet.Pairing{}, fmt.Errorf("scanning pairing: %w", err)
	}

	p.Status = wallet.PairingStatus(status)
	if expiry != nil {
		p.Expiry = *expiry
	}

	return p, nil
}

// StorePairing inserts the pairing or overwrites the stored one with the same ID.
func (r *Repository) StorePairing(ctx context.Context, p wallet.Pairing) error {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "store_pairing_sql")
	defer span.End()

	var expiry *time.Time
	if !p.Expiry.IsZero() {
		expiry = &p.Expiry
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO pairings (id, app_name, public_key, secret_key, peer_public_key, address, status, expiry)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE
			 SET peer_public_key = EXCLUDED.peer_public_key, address = EXCLUDED.address,
			     status = EXCLUDED.status, expiry = EXCLUDED.expiry;`,
		p.ID, p.AppName, p.PublicKey, p.SecretKey, p.PeerPublicKey, p.Address, string(p.Status), expiry,
	)
	if err != nil {
		span.RecordError(err)
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("upserting pairing: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (r *Repository) DeletePairing(ctx context.Context, pairingID string) error {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "delete_pairing_sql")
	defer span.End()

	ct, err := r.db.Exec(ctx, `DELETE FROM pairings WHERE id = $1;`, pairingID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("executing sql query: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return serviceerr.ErrNotFound
	}

	return nil
}

// DeleteExpiredPairings removes pending pairings whose request expired
// before t. Paired pairings live until they are torn down.
func (r *Repository) DeleteExpiredPairings(ctx context.Context, t time.Time) (int64, error) {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "delete_expired_pairings_sql")
	defer span.End()

	ct, err := r.db.Exec(ctx, `DELETE FROM pairings WHERE status = 'pending' AND expiry < $1;`, t)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("executing sql query: %w", err)
	}

	return ct.RowsAffected(), nil
}
