// Package chain describes the ledger node collaborators the calculator
// core depends on. Implementations live in sub-packages.
package chain

import (
	"context"
	"encoding/json"
	"math/big"
)

// Client is an opaque handle to a remote ledger node.
type Client interface {
	// GetBalance returns the balance of address in the smallest currency unit.
	GetBalance(ctx context.Context, address string) (uint64, error)
	// ResolveContract looks up a contract by address.
	ResolveContract(ctx context.Context, address string) (ContractRef, error)
}

// ContractRef is a resolved on-chain contract.
type ContractRef interface {
	Address() string
	// Call submits a signed call of entryPoint and returns once the
	// operation has been broadcast.
	Call(ctx context.Context, entryPoint string, args ...*big.Int) (OperationRef, error)
	// AwaitConfirmation suspends until op is included in a block.
	AwaitConfirmation(ctx context.Context, op OperationRef) error
	// ReadStorage returns the current stored value of the contract.
	ReadStorage(ctx context.Context) (*big.Int, error)
}

// OperationRef identifies a broadcast operation.
type OperationRef struct {
	Hash string
	// Level is the head level observed right before submission; blocks
	// above it are searched for the operation.
	Level int64
}

// Signer asks the account owner to sign and broadcast a transaction.
type Signer interface {
	RequestOperation(ctx context.Context, tx Transaction) (string, error)
}

// Transaction is a contract call as handed to the wallet for signing.
type Transaction struct {
	Kind        string     `json:"kind"`
	Destination string     `json:"destination"`
	Amount      string     `json:"amount"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Entrypoint string          `json:"entrypoint"`
	Value      json.RawMessage `json:"value"`
}
