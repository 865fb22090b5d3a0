package calculator

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/openkcm/contract-calculator/internal/contract"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
	"github.com/openkcm/contract-calculator/internal/wallet"
)

// Phase is the orchestrator state. Connecting, Invoking and Disconnecting
// are mutually exclusive because they share this single field.
type Phase int

const (
	IdleDisconnected Phase = iota
	Connecting
	IdleConnected
	Invoking
	Disconnecting
)

func (p Phase) String() string {
	switch p {
	case IdleDisconnected:
		return "idle_disconnected"
	case Connecting:
		return "connecting"
	case IdleConnected:
		return "idle_connected"
	case Invoking:
		return "invoking"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// PendingAction names the action in flight, if any.
type PendingAction string

const (
	NoAction         PendingAction = ""
	ActionConnect    PendingAction = "connect"
	ActionAdd        PendingAction = "add"
	ActionMultiply   PendingAction = "multiply"
	ActionDisconnect PendingAction = "disconnect"
)

type AccountView struct {
	Address string
	Balance uint64 // mutez
}

type ContractState struct {
	Address     string
	StoredValue *big.Int // nil until read
}

// OperationRequest is one user submission. Operands are decimal integer
// literals of arbitrary size.
type OperationRequest struct {
	Kind     contract.EntryPoint
	OperandA string
	OperandB string
}

// Validate reports ErrInvalidOperands unless Kind is supported and both
// operands are integers.
func (r OperationRequest) Validate() error {
	_, _, err := r.parse()
	return err
}

func (r OperationRequest) parse() (a, b *big.Int, _ error) {
	if !r.Kind.Valid() {
		return nil, nil, serviceerr.Wrap(serviceerr.ErrInvalidOperands, fmt.Errorf("unsupported operation %q", r.Kind))
	}

	a, err := parseOperand(r.OperandA)
	if err != nil {
		return nil, nil, err
	}

	b, err = parseOperand(r.OperandB)
	if err != nil {
		return nil, nil, err
	}

	return a, b, nil
}

func parseOperand(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, serviceerr.Wrap(serviceerr.ErrInvalidOperands, fmt.Errorf("%q is not an integer", s))
	}

	return v, nil
}

// View is what a presentation layer renders. Pointer fields are nil when absent.
type View struct {
	Phase             Phase
	Connectivity      wallet.Connectivity
	PairingToken      string
	AccountAddress    string
	AccountBalance    *uint64
	StoredValue       *big.Int
	ContractAddress   string
	PendingAction     PendingAction
	LastOperationHash string
}

// Links points to block explorer pages of the contract and the account.
type Links struct {
	Contract string
	Account  string
}

// ExplorerLinks returns the ghostnet explorer pages for the view. Account is
// empty while no account is connected.
func (v View) ExplorerLinks() Links {
	links := Links{
		Contract: fmt.Sprintf("https://better-call.dev/ghostnet/%s/operations", v.ContractAddress),
	}
	if v.AccountAddress != "" {
		links.Account = fmt.Sprintf("https://ghostnet.tzkt.io/%s/operations/", v.AccountAddress)
	}

	return links
}

// FormattedBalance returns the balance in tez, or "" when absent.
func (v View) FormattedBalance() string {
	if v.AccountBalance == nil {
		return ""
	}

	return FormatTez(*v.AccountBalance)
}
