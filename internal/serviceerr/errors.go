// Package serviceerr defines the error kinds surfaced by the calculator core.
// Every failure that leaves the orchestrator carries exactly one of these
// kinds; the underlying cause is attached with errors.Join.
package serviceerr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown Code = "unknown"

	// Wallet pairing
	CodePairingUnavailable Code = "pairing_unavailable"
	CodePairingRejected    Code = "pairing_rejected"

	// Contract interaction
	CodeContractNotFound    Code = "contract_not_found"
	CodeReadFailure         Code = "read_failure"
	CodeSubmissionRejected  Code = "submission_rejected"
	CodeConfirmationFailure Code = "confirmation_failure"
	CodeNetworkError        Code = "network_error"

	// Orchestration
	CodeInvalidOperands     Code = "invalid_operands"
	CodeOperationInProgress Code = "operation_in_progress"
	CodeInvalidState        Code = "invalid_state"
	CodeAborted             Code = "aborted"

	// Storage
	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"
)

type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Err, e.Description)
}

var (
	ErrUnknown = &Error{Err: CodeUnknown, Description: "unknown error"}

	ErrPairingUnavailable = &Error{Err: CodePairingUnavailable, Description: "wallet pairing provider cannot be reached"}
	ErrPairingRejected    = &Error{Err: CodePairingRejected, Description: "wallet pairing was rejected or cancelled"}

	ErrContractNotFound    = &Error{Err: CodeContractNotFound, Description: "contract address does not resolve"}
	ErrReadFailure         = &Error{Err: CodeReadFailure, Description: "reading on-chain state failed"}
	ErrSubmissionRejected  = &Error{Err: CodeSubmissionRejected, Description: "operation rejected before inclusion"}
	ErrConfirmationFailure = &Error{Err: CodeConfirmationFailure, Description: "operation submitted but not confirmed"}
	ErrNetwork             = &Error{Err: CodeNetworkError, Description: "chain node transport failure"}

	ErrInvalidOperands     = &Error{Err: CodeInvalidOperands, Description: "operands must be integers"}
	ErrOperationInProgress = &Error{Err: CodeOperationInProgress, Description: "another operation is in flight"}
	ErrInvalidState        = &Error{Err: CodeInvalidState, Description: "action not valid in the current state"}
	ErrAborted             = &Error{Err: CodeAborted, Description: "result discarded after disconnect"}

	ErrNotFound = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConflict = &Error{Err: CodeConflict, Description: "already exists"}
)

// KindOf returns the code of the first *Error found in err's tree.
func KindOf(err error) Code {
	if err == nil {
		return ""
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Err
	}

	return CodeUnknown
}

// Wrap attaches cause to the given kind. A nil cause yields the kind itself.
func Wrap(kind *Error, cause error) error {
	if cause == nil {
		return kind
	}

	return errors.Join(kind, cause)
}
