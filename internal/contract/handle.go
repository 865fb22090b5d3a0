// Package contract wraps the calculator contract: resolution, stored value
// reads and add/multiply invocations.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

type EntryPoint string

const (
	Add      EntryPoint = "add"
	Multiply EntryPoint = "multiply"
)

// EntryPoints lists every entry point the calculator contract must expose.
var EntryPoints = []EntryPoint{Add, Multiply}

func (e EntryPoint) Valid() bool {
	return e == Add || e == Multiply
}

// InvocationOutcome is the result of a confirmed invocation.
type InvocationOutcome struct {
	OperationHash string
	StoredValue   *big.Int
}

type entrypointChecker interface {
	HasEntrypoint(name string) bool
}

type Handle struct {
	ref                 chain.ContractRef
	confirmationTimeout time.Duration
}

type Option func(*Handle)

// WithConfirmationTimeout bounds the wait for an operation to be included.
// Zero waits forever.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(h *Handle) {
		h.confirmationTimeout = d
	}
}

// Resolve looks up the contract at address and checks that it exposes the
// calculator entry points.
func Resolve(ctx context.Context, client chain.Client, address string, opts ...Option) (*Handle, error) {
	ref, err := client.ResolveContract(ctx, address)
	if err != nil {
		switch serviceerr.KindOf(err) {
		case serviceerr.CodeContractNotFound, serviceerr.CodeNetworkError:
			return nil, err
		default:
			return nil, serviceerr.Wrap(serviceerr.ErrContractNotFound, err)
		}
	}

	if checker, ok := ref.(entrypointChecker); ok {
		for _, ep := range EntryPoints {
			if !checker.HasEntrypoint(string(ep)) {
				return nil, serviceerr.Wrap(serviceerr.ErrContractNotFound, fmt.Errorf("contract %s has no %s entry point", address, ep))
			}
		}
	}

	h := &Handle{ref: ref}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

func (h *Handle) Address() string {
	return h.ref.Address()
}

func (h *Handle) ReadStoredValue(ctx context.Context) (*big.Int, error) {
	v, err := h.ref.ReadStorage(ctx)
	if err != nil {
		return nil, serviceerr.Wrap(serviceerr.ErrReadFailure, err)
	}

	if v == nil {
		return nil, serviceerr.Wrap(serviceerr.ErrReadFailure, errors.New("contract storage is empty"))
	}

	return v, nil
}

// Invoke submits a call of entryPoint, waits for its confirmation and
// re-reads the stored value. Once the call is submitted the caller can no
// longer cancel it; only the confirmation timeout bounds the wait.
func (h *Handle) Invoke(ctx context.Context, entryPoint EntryPoint, a, b *big.Int) (InvocationOutcome, error) {
	if !entryPoint.Valid() || a == nil || b == nil {
		return InvocationOutcome{}, serviceerr.Wrap(serviceerr.ErrSubmissionRejected, fmt.Errorf("malformed call of %q", entryPoint))
	}

	ctx = slogctx.With(ctx, "contract", h.ref.Address(), "entry_point", string(entryPoint))

	op, err := h.ref.Call(ctx, string(entryPoint), a, b)
	if err != nil {
		return InvocationOutcome{}, serviceerr.Wrap(serviceerr.ErrSubmissionRejected, err)
	}

	slogctx.Info(ctx, "Operation submitted", "operation", op.Hash)

	waitCtx := context.WithoutCancel(ctx)
	if h.confirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, h.confirmationTimeout)
		defer cancel()
	}

	if err := h.ref.AwaitConfirmation(waitCtx, op); err != nil {
		return InvocationOutcome{OperationHash: op.Hash}, serviceerr.Wrap(serviceerr.ErrConfirmationFailure, err)
	}

	slogctx.Info(ctx, "Operation confirmed", "operation", op.Hash)

	stored, err := h.ReadStoredValue(waitCtx)
	if err != nil {
		return InvocationOutcome{OperationHash: op.Hash}, err
	}

	return InvocationOutcome{OperationHash: op.Hash, StoredValue: stored}, nil
}
