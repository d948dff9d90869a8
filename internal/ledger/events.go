package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event types
const (
	EventTokensMinted                   = "tokens_minted"
	EventOverpaymentRefunded            = "overpayment_refunded"
	EventGoalAchieved                   = "goal_achieved"
	EventCollectedFundsWithdrawnByOwner = "collected_funds_withdrawn_by_owner"
	EventTokensBurned                   = "tokens_burned"
	EventContributionForfeited          = "contribution_forfeited"
	EventTimeLockOpened                 = "time_lock_opened"
)

// Event is a journal entry. Seq is assigned by the store on append and is
// strictly increasing.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Seq        int64          `json:"seq"`
	Type       string         `json:"type"`
	Account    common.Address `json:"account"`
	Amount     *big.Int       `json:"amount"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func newEvent(typ string, account common.Address, amount *big.Int, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		Account:    account,
		Amount:     clone(amount),
		OccurredAt: at,
	}
}
