package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// Validation
	ErrInvalidContribution = errors.New("transaction without value")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidGoal         = errors.New("fundraising goal must be positive")

	// State
	ErrGoalAlreadyAchieved  = errors.New("fundraising goal achieved, you cannot mint more")
	ErrGoalNotAchieved      = errors.New("fundraising goal is not achieved")
	ErrWithdrawalImpossible = errors.New("withdrawal impossible")
	ErrNothingToWithdraw    = errors.New("nothing to withdraw")
	ErrNotDeployed          = errors.New("ledger is not deployed")
	ErrAlreadyDeployed      = errors.New("ledger is already deployed")

	// Authorization
	ErrNotAuthorized = errors.New("caller is not the owner")

	// Transfer
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferRejected  = errors.New("recipient rejected transfer")

	// Arithmetic
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
)

// TransferError reports a failed custody transfer. The enclosing operation
// is rolled back whenever one is returned.
type TransferError struct {
	Purpose string
	From    common.Address
	To      common.Address
	Amount  *big.Int
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer of %s wei from %s to %s failed: %v",
		e.Purpose, e.Amount, e.From.Hex(), e.To.Hex(), e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ErrorKind groups ledger failures so callers can react per category.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindAuthorization ErrorKind = "authorization"
	KindTransfer      ErrorKind = "transfer"
	KindArithmetic    ErrorKind = "arithmetic"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err. Unknown errors are internal.
func Kind(err error) ErrorKind {
	var te *TransferError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrTransferRejected):
		return KindTransfer
	case errors.Is(err, ErrInvalidContribution),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrInvalidGoal):
		return KindValidation
	case errors.Is(err, ErrGoalAlreadyAchieved),
		errors.Is(err, ErrGoalNotAchieved),
		errors.Is(err, ErrWithdrawalImpossible),
		errors.Is(err, ErrNothingToWithdraw),
		errors.Is(err, ErrNotDeployed),
		errors.Is(err, ErrAlreadyDeployed):
		return KindState
	case errors.Is(err, ErrNotAuthorized):
		return KindAuthorization
	case errors.Is(err, ErrOverflow), errors.Is(err, ErrUnderflow):
		return KindArithmetic
	default:
		return KindInternal
	}
}
