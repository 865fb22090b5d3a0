// Package calculator drives wallet pairing and calculator contract calls
// for one user session.
package calculator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/contract"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
	"github.com/openkcm/contract-calculator/internal/wallet"
)

// WalletSession is the pairing lifecycle the orchestrator drives.
type WalletSession interface {
	BeginPairing(ctx context.Context) (string, error)
	AwaitConnection(ctx context.Context) (string, error)
	Disconnect(ctx context.Context)
	State() wallet.State
}

// Orchestrator runs at most one connect, invoke or disconnect at a time.
// Triggers that are not valid in the current phase are rejected, never
// queued. Every action captures the epoch it started in; results that
// arrive after a Disconnect bumped the epoch are discarded with ErrAborted.
type Orchestrator struct {
	session         WalletSession
	chain           chain.Client
	contractAddress string
	handleOpts      []contract.Option
	pairingTimeout  time.Duration
	meters          *Meters
	observers       []func(View)

	mu       sync.Mutex
	phase    Phase
	pending  PendingAction
	epoch    uint64
	token    string
	handle   *contract.Handle
	account  *AccountView
	contract ContractState
	lastOp   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers fn to be called with a fresh View after every
// transition. fn may be called from several goroutines.
func WithObserver(fn func(View)) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, fn)
	}
}

// WithMeters records action counts, durations and the stored value on m.
func WithMeters(m *Meters) Option {
	return func(o *Orchestrator) {
		o.meters = m
	}
}

// WithPairingTimeout bounds the wait for the wallet to answer a pairing
// request. Zero waits until the caller's context is done.
func WithPairingTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pairingTimeout = d
	}
}

// WithContractOptions is passed to contract.Resolve on every connect.
func WithContractOptions(opts ...contract.Option) Option {
	return func(o *Orchestrator) {
		o.handleOpts = append(o.handleOpts, opts...)
	}
}

// New returns an idle, disconnected orchestrator for the calculator
// contract at contractAddress.
func New(session WalletSession, client chain.Client, contractAddress string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:         session,
		chain:           client,
		contractAddress: contractAddress,
		contract:        ContractState{Address: contractAddress},
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// View returns a snapshot of the orchestrator state.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.viewLocked()
}

func (o *Orchestrator) viewLocked() View {
	v := View{
		Phase:             o.phase,
		PendingAction:     o.pending,
		ContractAddress:   o.contractAddress,
		LastOperationHash: o.lastOp,
	}

	switch o.phase {
	case IdleConnected, Invoking:
		v.Connectivity = wallet.Connected
		v.PairingToken = o.token
		if o.account != nil {
			v.AccountAddress = o.account.Address
			balance := o.account.Balance
			v.AccountBalance = &balance
		}
		if o.contract.StoredValue != nil {
			v.StoredValue = new(big.Int).Set(o.contract.StoredValue)
		}
	case Connecting:
		if o.token != "" {
			v.Connectivity = wallet.AwaitingPairing
			v.PairingToken = o.token
		}
	}

	return v
}

func (o *Orchestrator) notify() {
	if len(o.observers) == 0 {
		return
	}

	v := o.View()
	for _, fn := range o.observers {
		fn(v)
	}
}

// begin moves to phase if the orchestrator is idle in from. It returns
// the epoch the action runs in.
func (o *Orchestrator) begin(from, phase Phase, action PendingAction, bumpEpoch bool) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.phase {
	case from:
	case IdleDisconnected, IdleConnected:
		return 0, serviceerr.ErrInvalidState
	default:
		return 0, serviceerr.ErrOperationInProgress
	}

	if bumpEpoch {
		o.epoch++
	}
	o.phase = phase
	o.pending = action

	return o.epoch, nil
}

func (o *Orchestrator) current(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.epoch == epoch
}

func (o *Orchestrator) startSpan(ctx context.Context, action PendingAction) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider()
	return tracer.Tracer("").Start(ctx, "calculator_"+string(action),
		trace.WithAttributes(attribute.String("contract", o.contractAddress)))
}

// Connect pairs a wallet, resolves the contract and reads the initial
// stored value and balance. The pairing token is visible through View and
// observers while Connect waits for the wallet. On any failure the
// orchestrator returns to IdleDisconnected.
func (o *Orchestrator) Connect(ctx context.Context) (err error) {
	epoch, err := o.begin(IdleDisconnected, Connecting, ActionConnect, true)
	if err != nil {
		return err
	}

	started := time.Now()
	ctx, span := o.startSpan(ctx, ActionConnect)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		o.meters.record(ctx, ActionConnect, started, err)
	}()

	o.notify()

	token, err := o.session.BeginPairing(ctx)
	if err != nil {
		return o.rollbackConnect(ctx, epoch, err)
	}

	o.mu.Lock()
	stale := o.epoch != epoch
	if !stale {
		o.token = token
	}
	o.mu.Unlock()

	if stale {
		// Disconnect may have run before the pairing existed.
		if o.session.State().PairingToken == token {
			o.session.Disconnect(ctx)
		}
		return serviceerr.ErrAborted
	}

	o.notify()
	slogctx.Info(ctx, "Waiting for the wallet to pair")

	awaitCtx := ctx
	if o.pairingTimeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, o.pairingTimeout)
		defer cancel()
	}

	address, err := o.session.AwaitConnection(awaitCtx)
	if err != nil {
		return o.rollbackConnect(ctx, epoch, err)
	}

	ctx = slogctx.With(ctx, "address", address)
	slogctx.Info(ctx, "Wallet connected")

	if !o.current(epoch) {
		return serviceerr.ErrAborted
	}

	handle, err := contract.Resolve(ctx, o.chain, o.contractAddress, o.handleOpts...)
	if err != nil {
		return o.rollbackConnect(ctx, epoch, err)
	}

	stored, err := handle.ReadStoredValue(ctx)
	if err != nil {
		return o.rollbackConnect(ctx, epoch, err)
	}

	balance, err := o.chain.GetBalance(ctx, address)
	if err != nil {
		return o.rollbackConnect(ctx, epoch, asNetworkError(err))
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return serviceerr.ErrAborted
	}

	o.phase = IdleConnected
	o.pending = NoAction
	o.handle = handle
	o.account = &AccountView{Address: address, Balance: balance}
	o.contract = ContractState{Address: o.contractAddress, StoredValue: stored}
	state := o.contract
	o.mu.Unlock()

	o.meters.recordStoredValue(ctx, state)
	o.notify()

	return nil
}

// rollbackConnect tears the half-built connection down. cause is returned
// unless a Disconnect already superseded the connect.
func (o *Orchestrator) rollbackConnect(ctx context.Context, epoch uint64, cause error) error {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return serviceerr.Wrap(serviceerr.ErrAborted, cause)
	}

	o.phase = Disconnecting
	o.pending = ActionDisconnect
	o.clearLocked()
	o.mu.Unlock()

	slogctx.Warn(ctx, "Connect failed", "error", cause)

	o.notify()
	o.session.Disconnect(context.WithoutCancel(ctx))
	o.settleDisconnect(epoch)

	return cause
}

// Invoke calls the requested entry point and, once confirmed, applies the
// new stored value and the re-queried balance together. On failure the
// previous state is kept. Operands are validated before any call is made.
func (o *Orchestrator) Invoke(ctx context.Context, req OperationRequest) (err error) {
	a, b, err := req.parse()
	if err != nil {
		return err
	}

	action := PendingAction(req.Kind)

	epoch, err := o.begin(IdleConnected, Invoking, action, false)
	if err != nil {
		return err
	}

	started := time.Now()
	ctx, span := o.startSpan(ctx, action)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		o.meters.record(ctx, action, started, err)
	}()

	o.mu.Lock()
	if o.epoch != epoch || o.handle == nil || o.account == nil {
		o.mu.Unlock()
		return serviceerr.ErrAborted
	}
	handle := o.handle
	address := o.account.Address
	o.mu.Unlock()

	o.notify()

	ctx = slogctx.With(ctx, "entry_point", string(req.Kind), "address", address)

	outcome, err := handle.Invoke(ctx, req.Kind, a, b)
	if err != nil {
		return o.finishInvoke(ctx, epoch, err)
	}

	// The operation is confirmed; its outcome is reported even if the
	// caller gave up meanwhile.
	balance, err := o.chain.GetBalance(context.WithoutCancel(ctx), address)
	if err != nil {
		return o.finishInvoke(ctx, epoch, asNetworkError(err))
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		slogctx.Info(ctx, "Discarding result of an aborted invocation", "operation", outcome.OperationHash)
		return serviceerr.ErrAborted
	}

	o.phase = IdleConnected
	o.pending = NoAction
	o.contract.StoredValue = outcome.StoredValue
	o.account.Balance = balance
	o.lastOp = outcome.OperationHash
	state := o.contract
	o.mu.Unlock()

	o.meters.recordStoredValue(ctx, state)
	o.notify()

	return nil
}

func (o *Orchestrator) finishInvoke(ctx context.Context, epoch uint64, cause error) error {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return serviceerr.Wrap(serviceerr.ErrAborted, cause)
	}

	o.phase = IdleConnected
	o.pending = NoAction
	o.mu.Unlock()

	slogctx.Warn(ctx, "Invocation failed", "error", cause)
	o.notify()

	return cause
}

// Disconnect aborts whatever is in flight, tears the wallet pairing down
// and clears all state. It is valid in every phase and never fails.
func (o *Orchestrator) Disconnect(ctx context.Context) {
	started := time.Now()
	ctx, span := o.startSpan(ctx, ActionDisconnect)
	defer func() {
		span.End()
		o.meters.record(ctx, ActionDisconnect, started, nil)
	}()

	o.mu.Lock()
	o.epoch++
	epoch := o.epoch
	o.phase = Disconnecting
	o.pending = ActionDisconnect
	o.clearLocked()
	o.mu.Unlock()

	o.notify()
	o.session.Disconnect(ctx)
	o.settleDisconnect(epoch)
}

func (o *Orchestrator) settleDisconnect(epoch uint64) {
	o.mu.Lock()
	settled := o.epoch == epoch
	if settled {
		o.phase = IdleDisconnected
		o.pending = NoAction
	}
	o.mu.Unlock()

	if settled {
		o.notify()
	}
}

func (o *Orchestrator) clearLocked() {
	o.token = ""
	o.handle = nil
	o.account = nil
	o.contract = ContractState{Address: o.contractAddress}
	o.lastOp = ""
}

func asNetworkError(err error) error {
	if serviceerr.KindOf(err) == serviceerr.CodeUnknown {
		return serviceerr.Wrap(serviceerr.ErrNetwork, err)
	}

	return err
}

// IsAborted reports whether err means the action was superseded by a Disconnect.
func IsAborted(err error) bool {
	return errors.Is(err, serviceerr.ErrAborted)
}
