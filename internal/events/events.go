package events

import (
	"context"

	"github.com/fundraising-token/backend/internal/ledger"
)

// ChannelLedger carries every committed ledger event.
const ChannelLedger = "events:ledger"

// Event types
const (
	EventTokensMinted                   = ledger.EventTokensMinted
	EventOverpaymentRefunded            = ledger.EventOverpaymentRefunded
	EventGoalAchieved                   = ledger.EventGoalAchieved
	EventCollectedFundsWithdrawnByOwner = ledger.EventCollectedFundsWithdrawnByOwner
	EventTokensBurned                   = ledger.EventTokensBurned
	EventContributionForfeited          = ledger.EventContributionForfeited
	EventTimeLockOpened                 = ledger.EventTimeLockOpened
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// FromLedger wraps a journal entry in the bus envelope. Amounts travel both
// as wei and as an ether string.
func FromLedger(e ledger.Event) Event {
	payload := map[string]any{
		"id":          e.ID.String(),
		"seq":         e.Seq,
		"account":     e.Account.Hex(),
		"occurred_at": e.OccurredAt.UTC(),
	}
	if e.Amount != nil {
		payload["amount_wei"] = e.Amount.String()
		payload["amount"] = ledger.FormatEther(e.Amount)
	}
	return Event{Type: e.Type, Payload: payload}
}
