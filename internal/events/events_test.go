package events

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromLedger(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := ledger.Event{
		ID:         uuid.New(),
		Seq:        7,
		Type:       ledger.EventTokensMinted,
		Account:    common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Amount:     ledger.MustParseEther("0.25"),
		OccurredAt: at,
	}

	got := FromLedger(e)
	assert.Equal(t, EventTokensMinted, got.Type)
	assert.Equal(t, int64(7), got.Payload["seq"])
	assert.Equal(t, "250000000000000000", got.Payload["amount_wei"])
	assert.Equal(t, "0.25", got.Payload["amount"])
	assert.Equal(t, e.Account.Hex(), got.Payload["account"])
}

func TestLocalBus(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Subscribe(ctx, ChannelLedger, func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}))

	require.NoError(t, bus.Publish(context.Background(), ChannelLedger, Event{Type: EventGoalAchieved}))
	require.NoError(t, bus.Publish(context.Background(), "other", Event{Type: EventTokensBurned}))

	mu.Lock()
	assert.Equal(t, []string{EventGoalAchieved}, got)
	mu.Unlock()

	cancel()
	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return bus.handlers[ChannelLedger][0] == nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), ChannelLedger, Event{Type: EventTokensMinted}))
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, Event) error {
	p.calls++
	return errors.New("redis down")
}

func TestLedgerNotifierKeepsGoingOnError(t *testing.T) {
	p := &failingPublisher{}
	n := NewLedgerNotifier(p, zap.NewNop())
	n.Notify(context.Background(), []ledger.Event{
		{Type: ledger.EventTokensMinted, Amount: big.NewInt(1)},
		{Type: ledger.EventGoalAchieved, Amount: big.NewInt(1)},
	})
	assert.Equal(t, 2, p.calls)
}
