package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store runs ledger transactions. Update commits only when fn returns nil;
// any error rolls back every write made through the Tx, custody transfers
// and journal appends included.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit of work handed to Store callbacks.
type Tx interface {
	// State returns ErrNotDeployed when the ledger has not been created yet.
	State(ctx context.Context) (*State, error)
	PutState(ctx context.Context, s *State) error

	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	PutBalance(ctx context.Context, account common.Address, amount *big.Int) error
	Balances(ctx context.Context) (map[common.Address]*big.Int, error)

	// Custody book
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	Deposit(ctx context.Context, account common.Address, amount *big.Int) error
	// Transfer returns ErrInsufficientFunds or ErrTransferRejected.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error

	// AppendEvents assigns sequence numbers and returns the stored events.
	AppendEvents(ctx context.Context, events []Event) ([]Event, error)
	Events(ctx context.Context, afterSeq int64, limit int) ([]Event, error)
}

// PaymentRejecter is implemented by stores that can flag a custody account
// as refusing incoming transfers, like a contract without a payable fallback.
type PaymentRejecter interface {
	SetRejectPayments(ctx context.Context, account common.Address, reject bool) error
}

// Clock is read once per operation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock with Go's monotonic reading.
var SystemClock Clock = systemClock{}
