package walletsql_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/contract-calculator/internal/dbtest/postgrestest"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
	"github.com/openkcm/contract-calculator/internal/wallet"
	walletsql "github.com/openkcm/contract-calculator/internal/wallet/sql"
)

var dbPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, _, terminate := postgrestest.Start(ctx)
	dbPool = pool

	code := m.Run()
	terminate(ctx)

	os.Exit(code)
}

func newPairing(t *testing.T, id string, expiry time.Time) wallet.Pairing {
	t.Helper()

	pub, sec, err := wallet.GenerateKeyPair()
	require.NoError(t, err)

	return wallet.Pairing{
		ID:        id,
		AppName:   "Contract Calculator",
		PublicKey: pub,
		SecretKey: sec,
		Status:    wallet.PairingPending,
		Expiry:    expiry.UTC().Truncate(time.Microsecond),
	}
}

func TestRepository_PairingLifecycle(t *testing.T) {
	repo := walletsql.NewRepository(dbPool)
	ctx := t.Context()

	p := newPairing(t, "lifecycle", time.Now().Add(time.Hour))
	require.NoError(t, repo.StorePairing(ctx, p))

	got, err := repo.LoadPairing(ctx, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("loaded pairing mismatch (-want +got):\n%s", diff)
	}

	peer, _, err := wallet.GenerateKeyPair()
	require.NoError(t, err)

	p.PeerPublicKey = peer
	p.Address = "tz1Abc"
	p.Status = wallet.PairingPaired
	p.Expiry = time.Time{}
	require.NoError(t, repo.StorePairing(ctx, p))

	got, err = repo.LoadPairing(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Expiry.IsZero())
	assert.Equal(t, wallet.PairingPaired, got.Status)
	assert.Equal(t, "tz1Abc", got.Address)
	assert.Equal(t, peer, got.PeerPublicKey)

	require.NoError(t, repo.DeletePairing(ctx, p.ID))

	_, err = repo.LoadPairing(ctx, p.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_Errors(t *testing.T) {
	repo := walletsql.NewRepository(dbPool)

	tests := []struct {
		name      string
		run       func(ctx context.Context) error
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name: "load unknown pairing",
			run: func(ctx context.Context) error {
				_, err := repo.LoadPairing(ctx, "does-not-exist")
				return err
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrNotFound)
			},
		},
		{
			name: "delete unknown pairing",
			run: func(ctx context.Context) error {
				return repo.DeletePairing(ctx, "does-not-exist")
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrNotFound)
			},
		},
		{
			name: "paired without address",
			run: func(ctx context.Context) error {
				p := newPairing(t, "no-address", time.Now().Add(time.Hour))
				p.Status = wallet.PairingPaired
				return repo.StorePairing(ctx, p)
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
			},
		},
		{
			name: "pending without expiry",
			run: func(ctx context.Context) error {
				p := newPairing(t, "no-expiry", time.Now())
				p.Expiry = time.Time{}
				return repo.StorePairing(ctx, p)
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
			},
		},
		{
			name: "unknown status",
			run: func(ctx context.Context) error {
				p := newPairing(t, "bad-status", time.Now().Add(time.Hour))
				p.Status = "revoked"
				return repo.StorePairing(ctx, p)
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertErr(t, tt.run(t.Context()))
		})
	}
}

func TestRepository_DeleteExpiredPairings(t *testing.T) {
	repo := walletsql.NewRepository(dbPool)
	ctx := t.Context()

	now := time.Now()
	require.NoError(t, repo.StorePairing(ctx, newPairing(t, "expired-one", now.Add(-2*time.Hour))))
	require.NoError(t, repo.StorePairing(ctx, newPairing(t, "expired-two", now.Add(-time.Minute))))
	require.NoError(t, repo.StorePairing(ctx, newPairing(t, "still-valid", now.Add(time.Hour))))

	paired := newPairing(t, "paired", now.Add(-time.Hour))
	paired.Status = wallet.PairingPaired
	paired.Address = "tz1Abc"
	paired.Expiry = time.Time{}
	require.NoError(t, repo.StorePairing(ctx, paired))

	pairedWithExpiry := paired
	pairedWithExpiry.ID = "paired-with-expiry"
	pairedWithExpiry.Expiry = now.Add(-time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.StorePairing(ctx, pairedWithExpiry))

	n, err := repo.DeleteExpiredPairings(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []string{"still-valid", "paired", "paired-with-expiry"} {
		_, err = repo.LoadPairing(ctx, id)
		require.NoError(t, err, id)
	}

	_, err = repo.LoadPairing(ctx, "expired-one")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}
