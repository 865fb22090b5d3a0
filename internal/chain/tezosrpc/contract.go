package tezosrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/time/rate"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

const (
	statusApplied   = "applied"
	kindTransaction = "transaction"
)

type contract struct {
	client      *Client
	address     string
	entrypoints map[string]json.RawMessage
}

var _ chain.ContractRef = (*contract)(nil)

func (k *contract) Address() string {
	return k.address
}

// HasEntrypoint reports whether the contract exposes the named entry point.
func (k *contract) HasEntrypoint(name string) bool {
	_, ok := k.entrypoints[name]
	return ok
}

func (k *contract) Call(ctx context.Context, entryPoint string, args ...*big.Int) (chain.OperationRef, error) {
	if !k.HasEntrypoint(entryPoint) {
		return chain.OperationRef{}, serviceerr.Wrap(serviceerr.ErrSubmissionRejected,
			fmt.Errorf("contract %s has no entrypoint %q", k.address, entryPoint))
	}

	value, err := EncodeArgs(args...)
	if err != nil {
		return chain.OperationRef{}, serviceerr.Wrap(serviceerr.ErrSubmissionRejected, err)
	}

	if k.client.signer == nil {
		return chain.OperationRef{}, serviceerr.Wrap(serviceerr.ErrSubmissionRejected, errors.New("no signer configured"))
	}

	level, err := k.client.headLevel(ctx)
	if err != nil {
		return chain.OperationRef{}, err
	}

	hash, err := k.client.signer.RequestOperation(ctx, chain.Transaction{
		Kind:        kindTransaction,
		Destination: k.address,
		Amount:      "0",
		Parameters: chain.Parameters{
			Entrypoint: entryPoint,
			Value:      value,
		},
	})
	if err != nil {
		return chain.OperationRef{}, fmt.Errorf("requesting operation: %w", err)
	}
	if hash == "" {
		return chain.OperationRef{}, serviceerr.Wrap(serviceerr.ErrSubmissionRejected, errors.New("wallet returned an empty operation hash"))
	}

	slogctx.Info(ctx, "Operation broadcast", "operation", hash, "entrypoint", entryPoint, "level", level)

	return chain.OperationRef{Hash: hash, Level: level}, nil
}

func (k *contract) AwaitConfirmation(ctx context.Context, op chain.OperationRef) error {
	limiter := rate.NewLimiter(rate.Every(k.client.pollInterval), 1)
	next := op.Level + 1

	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for operation %s: %w", op.Hash, err)
		}

		head, err := k.client.headLevel(ctx)
		if err != nil {
			return err
		}

		for ; next <= head; next++ {
			status, found, err := k.client.operationStatus(ctx, next, op.Hash)
			if err != nil {
				return err
			}
			if !found {
				continue
			}

			if status != statusApplied {
				return serviceerr.Wrap(serviceerr.ErrConfirmationFailure,
					fmt.Errorf("operation %s is %s in block %d", op.Hash, status, next))
			}

			slogctx.Info(ctx, "Operation confirmed", "operation", op.Hash, "level", next)
			return nil
		}
	}
}

func (k *contract) ReadStorage(ctx context.Context) (*big.Int, error) {
	var storage struct {
		Int *string `json:"int"`
	}

	if err := k.client.getJSON(ctx, &storage, "chains", "main", "blocks", "head", "context", "contracts", k.address, "storage"); err != nil {
		return nil, fmt.Errorf("getting storage of %s: %w", k.address, err)
	}

	if storage.Int == nil {
		return nil, fmt.Errorf("storage of %s is not an int", k.address)
	}

	value, ok := new(big.Int).SetString(*storage.Int, 10)
	if !ok {
		return nil, fmt.Errorf("parsing storage value %q", *storage.Int)
	}

	return value, nil
}

type micheline struct {
	Prim string      `json:"prim,omitempty"`
	Args []micheline `json:"args,omitempty"`
	Int  *string     `json:"int,omitempty"`
}

// EncodeArgs encodes integer arguments as a Micheline value; several
// arguments become a right comb of Pair.
func EncodeArgs(args ...*big.Int) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage(`{"prim":"Unit"}`), nil
	}

	for i, arg := range args {
		if arg == nil {
			return nil, fmt.Errorf("argument %d is nil", i)
		}
	}

	value, err := json.Marshal(comb(args))
	if err != nil {
		return nil, fmt.Errorf("marshaling parameters: %w", err)
	}

	return value, nil
}

func comb(args []*big.Int) micheline {
	head := args[0].String()
	if len(args) == 1 {
		return micheline{Int: &head}
	}

	return micheline{Prim: "Pair", Args: []micheline{{Int: &head}, comb(args[1:])}}
}
