package chainmock

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

// Client is an in-memory ledger holding balances and contracts.
type Client struct {
	mu        sync.Mutex
	balances  map[string]uint64
	contracts map[string]*Contract

	balanceErr   error
	resolveErr   error
	balanceCalls int
}

var _ chain.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		balances:  make(map[string]uint64),
		contracts: make(map[string]*Contract),
	}
}

func (c *Client) SetBalance(address string, mutez uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[address] = mutez
}

// Charge deducts fee from the balance of address.
func (c *Client) Charge(address string, fee uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[address] -= min(fee, c.balances[address])
}

func (c *Client) AddContract(contract *Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.contracts[contract.address] = contract
}

// FailBalance makes GetBalance return err until it is called with nil.
func (c *Client) FailBalance(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balanceErr = err
}

func (c *Client) FailResolve(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolveErr = err
}

func (c *Client) BalanceCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.balanceCalls
}

func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balanceCalls++
	if err := ctx.Err(); err != nil {
		return 0, serviceerr.Wrap(serviceerr.ErrNetwork, err)
	}
	if c.balanceErr != nil {
		return 0, serviceerr.Wrap(serviceerr.ErrNetwork, c.balanceErr)
	}

	return c.balances[address], nil
}

func (c *Client) ResolveContract(_ context.Context, address string) (chain.ContractRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolveErr != nil {
		return nil, serviceerr.Wrap(serviceerr.ErrNetwork, c.resolveErr)
	}

	contract, ok := c.contracts[address]
	if !ok {
		return nil, serviceerr.Wrap(serviceerr.ErrContractNotFound, fmt.Errorf("no contract at %s", address))
	}

	return contract, nil
}

// Semantics computes the new stored value of an entry point call.
type Semantics func(stored, a, b *big.Int) *big.Int

// Call records one submitted entry point call.
type Call struct {
	EntryPoint string
	Args       []*big.Int
}

// Contract is an in-memory contract. Calls are applied to the stored value
// when they are confirmed.
type Contract struct {
	mu          sync.Mutex
	address     string
	stored      *big.Int
	entryPoints map[string]Semantics
	pending     map[string]Call
	calls       []Call
	reads       int

	callErr, confirmErr, readErr error
	confirmGate                  chan struct{}
	onConfirm                    func(Call)
}

var _ chain.ContractRef = (*Contract)(nil)

// NewContract returns a contract with add (stored + a + b) and
// multiply (a * b) entry points.
func NewContract(address string, stored int64) *Contract {
	return &Contract{
		address: address,
		stored:  big.NewInt(stored),
		entryPoints: map[string]Semantics{
			"add": func(stored, a, b *big.Int) *big.Int {
				return new(big.Int).Add(stored, new(big.Int).Add(a, b))
			},
			"multiply": func(_, a, b *big.Int) *big.Int {
				return new(big.Int).Mul(a, b)
			},
		},
		pending: make(map[string]Call),
	}
}

// WithoutEntryPoint removes name from the contract.
func (k *Contract) WithoutEntryPoint(name string) *Contract {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.entryPoints, name)
	return k
}

// OnConfirm registers fn to run for every confirmed call, e.g. to charge fees.
func (k *Contract) OnConfirm(fn func(Call)) *Contract {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.onConfirm = fn
	return k
}

// HoldConfirmations makes AwaitConfirmation block until Release is called.
func (k *Contract) HoldConfirmations() *Contract {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.confirmGate = make(chan struct{})
	return k
}

// Release lets one held confirmation through.
func (k *Contract) Release() {
	k.mu.Lock()
	gate := k.confirmGate
	k.mu.Unlock()

	gate <- struct{}{}
}

func (k *Contract) FailCalls(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.callErr = err
}

func (k *Contract) FailConfirmations(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.confirmErr = err
}

func (k *Contract) FailReads(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.readErr = err
}

func (k *Contract) SetStored(v int64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.stored = big.NewInt(v)
}

func (k *Contract) Stored() *big.Int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return new(big.Int).Set(k.stored)
}

func (k *Contract) Calls() []Call {
	k.mu.Lock()
	defer k.mu.Unlock()

	return slices.Clone(k.calls)
}

func (k *Contract) Reads() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.reads
}

func (k *Contract) Address() string {
	return k.address
}

func (k *Contract) HasEntrypoint(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, ok := k.entryPoints[name]
	return ok
}

func (k *Contract) Call(_ context.Context, entryPoint string, args ...*big.Int) (chain.OperationRef, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	call := Call{EntryPoint: entryPoint, Args: args}
	k.calls = append(k.calls, call)

	if k.callErr != nil {
		return chain.OperationRef{}, k.callErr
	}

	if _, ok := k.entryPoints[entryPoint]; !ok || len(args) != 2 {
		return chain.OperationRef{}, fmt.Errorf("malformed call of %s", entryPoint)
	}

	op := chain.OperationRef{Hash: fmt.Sprintf("oo%d", len(k.calls)), Level: int64(len(k.calls))}
	k.pending[op.Hash] = call

	return op, nil
}

func (k *Contract) AwaitConfirmation(ctx context.Context, op chain.OperationRef) error {
	k.mu.Lock()
	gate := k.confirmGate
	k.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.confirmErr != nil {
		return k.confirmErr
	}

	call, ok := k.pending[op.Hash]
	if !ok {
		return fmt.Errorf("unknown operation %s", op.Hash)
	}
	delete(k.pending, op.Hash)

	k.stored = k.entryPoints[call.EntryPoint](k.stored, call.Args[0], call.Args[1])
	if k.onConfirm != nil {
		k.onConfirm(call)
	}

	return nil
}

func (k *Contract) ReadStorage(context.Context) (*big.Int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.reads++
	if k.readErr != nil {
		return nil, k.readErr
	}

	return new(big.Int).Set(k.stored), nil
}
