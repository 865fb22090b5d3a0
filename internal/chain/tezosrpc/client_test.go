package tezosrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/chain/tezosrpc"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

const (
	contractAddress = "KT1FWGvZMxeB1SRaGi27EsJVqA9pfu61E861"
	userAddress     = "tz1Abc"
	opHash          = "ooTestOperationHash"
)

type fakeNode struct {
	mu             sync.Mutex
	balance        string
	storage        string
	head           int64
	blocks         map[int64]string
	entrypointHits int
}

func (n *fakeNode) handler(t *testing.T) http.Handler {
	t.Helper()
	contractPrefix := "/chains/main/blocks/head/context/contracts/"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()

		switch {
		case r.URL.Path == contractPrefix+userAddress+"/balance":
			_, _ = fmt.Fprintf(w, "%q", n.balance)
		case r.URL.Path == contractPrefix+contractAddress+"/entrypoints":
			n.entrypointHits++
			_, _ = w.Write([]byte(`{"entrypoints":{"add":{"prim":"pair"},"multiply":{"prim":"pair"}}}`))
		case r.URL.Path == contractPrefix+contractAddress+"/storage":
			_, _ = fmt.Fprintf(w, `{"int":%q}`, n.storage)
		case strings.HasPrefix(r.URL.Path, contractPrefix) && strings.HasSuffix(r.URL.Path, "/entrypoints"):
			http.Error(w, `[{"kind":"temporary","id":"failure"}]`, http.StatusNotFound)
		case r.URL.Path == "/chains/main/blocks/head/header":
			_, _ = fmt.Fprintf(w, `{"level":%d}`, n.head)
			// every header poll produces a new block
			n.head++
		case strings.HasSuffix(r.URL.Path, "/operations/3"):
			var level int64
			_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/chains/main/blocks/"), "%d", &level)
			ops, ok := n.blocks[level]
			if !ok {
				ops = "[]"
			}
			_, _ = w.Write([]byte(ops))
		default:
			http.NotFound(w, r)
		}
	})
}

type fakeSigner struct {
	hash string
	err  error
	got  []chain.Transaction
}

func (s *fakeSigner) RequestOperation(_ context.Context, tx chain.Transaction) (string, error) {
	s.got = append(s.got, tx)
	return s.hash, s.err
}

func newClient(t *testing.T, node *fakeNode, signer chain.Signer) *tezosrpc.Client {
	t.Helper()

	server := httptest.NewServer(node.handler(t))
	t.Cleanup(server.Close)

	client, err := tezosrpc.NewClient(tezosrpc.Config{
		Endpoint:           server.URL,
		PollInterval:       time.Millisecond,
		EntrypointCacheTTL: time.Minute,
	}, signer, server.Client())
	require.NoError(t, err)

	return client
}

func appliedBlock(hash, status string) string {
	return fmt.Sprintf(`[{"hash":"other","contents":[]},{"hash":%q,"contents":[{"kind":"transaction","metadata":{"operation_result":{"status":%q}}}]}]`, hash, status)
}

func TestNewClient(t *testing.T) {
	_, err := tezosrpc.NewClient(tezosrpc.Config{}, nil, nil)
	assert.Error(t, err)

	_, err = tezosrpc.NewClient(tezosrpc.Config{Endpoint: "://bad", PollInterval: time.Second}, nil, nil)
	assert.Error(t, err)

	_, err = tezosrpc.NewClient(tezosrpc.Config{Endpoint: "https://ghostnet.ecadinfra.com"}, nil, nil)
	assert.ErrorContains(t, err, "poll interval must be positive")

	_, err = tezosrpc.NewClient(tezosrpc.Config{Endpoint: "https://ghostnet.ecadinfra.com", PollInterval: time.Second}, nil, nil)
	assert.NoError(t, err)
}

func TestClient_GetBalance(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		address  string
		want     uint64
		wantKind serviceerr.Code
	}{
		{name: "Success", balance: "5000000", address: userAddress, want: 5_000_000},
		{name: "Malformed balance", balance: "-1", address: userAddress, wantKind: serviceerr.CodeNetworkError},
		{name: "Unknown account", balance: "1", address: "tz1Unknown", wantKind: serviceerr.CodeNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, &fakeNode{balance: tt.balance}, nil)

			got, err := client.GetBalance(t.Context(), tt.address)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, serviceerr.KindOf(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ResolveContract(t *testing.T) {
	node := &fakeNode{}
	client := newClient(t, node, nil)

	ref, err := client.ResolveContract(t.Context(), contractAddress)
	require.NoError(t, err)
	assert.Equal(t, contractAddress, ref.Address())

	_, err = client.ResolveContract(t.Context(), contractAddress)
	require.NoError(t, err)
	node.mu.Lock()
	assert.Equal(t, 1, node.entrypointHits, "entry points should be served from the cache")
	node.mu.Unlock()

	_, err = client.ResolveContract(t.Context(), "KT1DoesNotExist")
	assert.ErrorIs(t, err, serviceerr.ErrContractNotFound)

	var statusErr *tezosrpc.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestClient_ReadStorage(t *testing.T) {
	node := &fakeNode{storage: "10"}
	client := newClient(t, node, nil)

	ref, err := client.ResolveContract(t.Context(), contractAddress)
	require.NoError(t, err)

	value, err := ref.ReadStorage(t.Context())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), value)

	node.mu.Lock()
	node.storage = "-123456789012345678901234567890"
	node.mu.Unlock()

	value, err = ref.ReadStorage(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "-123456789012345678901234567890", value.String())
}

func TestContract_Call(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		signer := &fakeSigner{hash: opHash}
		client := newClient(t, &fakeNode{head: 100}, signer)

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		op, err := ref.Call(t.Context(), "add", big.NewInt(3), big.NewInt(4))
		require.NoError(t, err)
		assert.Equal(t, chain.OperationRef{Hash: opHash, Level: 100}, op)

		require.Len(t, signer.got, 1)
		tx := signer.got[0]
		assert.Equal(t, contractAddress, tx.Destination)
		assert.Equal(t, "0", tx.Amount)
		assert.Equal(t, "add", tx.Parameters.Entrypoint)
		assert.JSONEq(t, `{"prim":"Pair","args":[{"int":"3"},{"int":"4"}]}`, string(tx.Parameters.Value))
	})

	t.Run("Unknown entrypoint", func(t *testing.T) {
		signer := &fakeSigner{hash: opHash}
		client := newClient(t, &fakeNode{}, signer)

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		_, err = ref.Call(t.Context(), "subtract", big.NewInt(1), big.NewInt(2))
		assert.ErrorIs(t, err, serviceerr.ErrSubmissionRejected)
		assert.Empty(t, signer.got)
	})

	t.Run("Signer error is returned", func(t *testing.T) {
		signErr := errors.New("aborted by user")
		client := newClient(t, &fakeNode{}, &fakeSigner{err: signErr})

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		_, err = ref.Call(t.Context(), "multiply", big.NewInt(2), big.NewInt(3))
		assert.ErrorIs(t, err, signErr)
	})

	t.Run("Empty hash", func(t *testing.T) {
		client := newClient(t, &fakeNode{}, &fakeSigner{})

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		_, err = ref.Call(t.Context(), "multiply", big.NewInt(2), big.NewInt(3))
		assert.ErrorIs(t, err, serviceerr.ErrSubmissionRejected)
	})
}

func TestContract_AwaitConfirmation(t *testing.T) {
	t.Run("Applied", func(t *testing.T) {
		node := &fakeNode{head: 10, blocks: map[int64]string{12: appliedBlock(opHash, "applied")}}
		client := newClient(t, node, nil)

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		err = ref.AwaitConfirmation(t.Context(), chain.OperationRef{Hash: opHash, Level: 10})
		assert.NoError(t, err)
	})

	t.Run("Failed on chain", func(t *testing.T) {
		node := &fakeNode{head: 10, blocks: map[int64]string{11: appliedBlock(opHash, "backtracked")}}
		client := newClient(t, node, nil)

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		err = ref.AwaitConfirmation(t.Context(), chain.OperationRef{Hash: opHash, Level: 10})
		assert.ErrorIs(t, err, serviceerr.ErrConfirmationFailure)
	})

	t.Run("Context cancelled", func(t *testing.T) {
		node := &fakeNode{head: 10}
		client := newClient(t, node, nil)

		ref, err := client.ResolveContract(t.Context(), contractAddress)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()

		err = ref.AwaitConfirmation(ctx, chain.OperationRef{Hash: opHash, Level: 10})
		assert.Error(t, err)
	})
}

func TestEncodeArgs(t *testing.T) {
	tests := []struct {
		name string
		args []*big.Int
		want string
	}{
		{name: "No arguments", args: nil, want: `{"prim":"Unit"}`},
		{name: "Single zero", args: []*big.Int{big.NewInt(0)}, want: `{"int":"0"}`},
		{name: "Pair", args: []*big.Int{big.NewInt(-2), big.NewInt(3)}, want: `{"prim":"Pair","args":[{"int":"-2"},{"int":"3"}]}`},
		{
			name: "Right comb",
			args: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
			want: `{"prim":"Pair","args":[{"int":"1"},{"prim":"Pair","args":[{"int":"2"},{"int":"3"}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tezosrpc.EncodeArgs(tt.args...)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
			assert.True(t, json.Valid(got))
		})
	}

	_, err := tezosrpc.EncodeArgs(big.NewInt(1), nil)
	assert.Error(t, err)
}
