package events

import (
	"context"

	"github.com/fundraising-token/backend/internal/ledger"
	"go.uber.org/zap"
)

// LedgerNotifier publishes committed ledger events. The ledger state is
// already durable when it runs, so a failed publish is only logged.
type LedgerNotifier struct {
	publisher Publisher
	log       *zap.Logger
}

func NewLedgerNotifier(publisher Publisher, log *zap.Logger) *LedgerNotifier {
	return &LedgerNotifier{publisher: publisher, log: log}
}

func (n *LedgerNotifier) Notify(ctx context.Context, evs []ledger.Event) {
	for _, e := range evs {
		if err := n.publisher.Publish(context.WithoutCancel(ctx), ChannelLedger, FromLedger(e)); err != nil {
			n.log.Error("failed to publish ledger event",
				zap.String("type", e.Type),
				zap.Int64("seq", e.Seq),
				zap.Error(err),
			)
		}
	}
}
