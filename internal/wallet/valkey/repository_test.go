package walletvalkey_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/contract-calculator/internal/dbtest/valkeytest"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
	"github.com/openkcm/contract-calculator/internal/wallet"
	walletvalkey "github.com/openkcm/contract-calculator/internal/wallet/valkey"
)

var client valkey.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	valkeyClient, _, terminate := valkeytest.Start(ctx)
	client = valkeyClient

	code := m.Run()
	terminate(ctx)

	os.Exit(code)
}

func testPairing(id string) wallet.Pairing {
	pub, sec, _ := wallet.GenerateKeyPair()

	return wallet.Pairing{
		ID:        id,
		AppName:   "Contract Calculator",
		PublicKey: pub,
		SecretKey: sec,
		Status:    wallet.PairingPending,
		Expiry:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
}

func TestRepository_StoreLoadDelete(t *testing.T) {
	const prefix = "contract-calculator-pairing-test"
	repo := walletvalkey.NewRepository(client, prefix)
	ctx := t.Context()

	p := testPairing("pairing-one")
	require.NoError(t, repo.StorePairing(ctx, p))

	got, err := repo.LoadPairing(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.PublicKey, got.PublicKey)
	assert.Equal(t, p.SecretKey, got.SecretKey)
	assert.Equal(t, wallet.PairingPending, got.Status)
	assert.True(t, p.Expiry.Equal(got.Expiry))

	p.Status = wallet.PairingPaired
	p.Address = "tz1Abc"
	require.NoError(t, repo.StorePairing(ctx, p))

	got, err = repo.LoadPairing(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.PairingPaired, got.Status)
	assert.Equal(t, "tz1Abc", got.Address)

	ttl, err := client.Do(ctx, client.B().Pttl().Key(prefix+":pairing:"+p.ID).Build()).AsInt64()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.NoError(t, repo.DeletePairing(ctx, p.ID))

	_, err = repo.LoadPairing(ctx, p.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)

	err = repo.DeletePairing(ctx, p.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_PairedPairingDoesNotExpire(t *testing.T) {
	const prefix = "contract-calculator-paired-test"
	repo := walletvalkey.NewRepository(client, prefix)
	ctx := t.Context()

	p := testPairing("pairing-paired")
	require.NoError(t, repo.StorePairing(ctx, p))

	p.Status = wallet.PairingPaired
	p.Address = "tz1Abc"
	p.Expiry = time.Time{}
	require.NoError(t, repo.StorePairing(ctx, p))

	ttl, err := client.Do(ctx, client.B().Pttl().Key(prefix+":pairing:"+p.ID).Build()).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)

	got, err := repo.LoadPairing(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Expiry.IsZero())
}

func TestRepository_StoreExpired(t *testing.T) {
	repo := walletvalkey.NewRepository(client, "contract-calculator-expired-test")

	p := testPairing("pairing-expired")
	p.Expiry = time.Now().Add(-time.Minute)

	err := repo.StorePairing(t.Context(), p)
	assert.Error(t, err)
}

func TestRelay_SendReceive(t *testing.T) {
	relay := walletvalkey.NewRelay(client, "contract-calculator-relay-test:")
	ctx := t.Context()

	require.NoError(t, relay.Send(ctx, "box", []byte("first")))
	require.NoError(t, relay.Send(ctx, "box", []byte{0x00, 0xff}))

	got, err := relay.Receive(ctx, "box")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	got, err = relay.Receive(ctx, "box")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, got)
}

func TestRelay_ReceiveWaits(t *testing.T) {
	relay := walletvalkey.NewRelay(client, "contract-calculator-relay-wait-test")
	ctx := t.Context()

	go func() {
		time.Sleep(1500 * time.Millisecond)
		_ = relay.Send(context.Background(), "late", []byte("hello"))
	}()

	got, err := relay.Receive(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestRelay_ReceiveCancelled(t *testing.T) {
	relay := walletvalkey.NewRelay(client, "contract-calculator-relay-cancel-test")

	ctx, cancel := context.WithTimeout(t.Context(), 1500*time.Millisecond)
	defer cancel()

	_, err := relay.Receive(ctx, "empty")
	assert.Error(t, err)
}
