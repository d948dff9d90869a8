package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *captureNotifier) Notify(_ context.Context, events []Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *captureNotifier) count(typ string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == typ {
			c++
		}
	}
	return c
}

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

type fixture struct {
	ledger   *Ledger
	store    *MemoryStore
	clock    *fakeClock
	notifier *captureNotifier
	escrow   common.Address
}

func newFixture(t *testing.T, policy TimeLockPolicy) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    NewMemoryStore(),
		clock:    &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		notifier: &captureNotifier{},
	}
	f.ledger = New(f.store, Options{
		TimeLockPolicy: policy,
		Clock:          f.clock,
		Notifier:       f.notifier,
	}, nil)
	t.Cleanup(f.ledger.Close)

	st, err := f.ledger.Deploy(ctx, DeployParams{Goal: MustParseEther("1"), Owner: owner})
	require.NoError(t, err)
	f.escrow = st.Escrow

	for _, a := range []common.Address{owner, alice, bob, carol} {
		_, err := f.ledger.Deposit(ctx, a, MustParseEther("10"))
		require.NoError(t, err)
	}
	return f
}

// notified counts delivered events of typ once the queue has drained.
func (f *fixture) notified(typ string) int {
	f.ledger.Flush()
	return f.notifier.count(typ)
}

func (f *fixture) native(t *testing.T, a common.Address) *big.Int {
	t.Helper()
	v, err := f.ledger.NativeBalanceOf(context.Background(), a)
	require.NoError(t, err)
	return v
}

func (f *fixture) tokens(t *testing.T, a common.Address) *big.Int {
	t.Helper()
	v, err := f.ledger.BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return v
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	rec, err := f.ledger.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, rec.OK(), "violations: %v", rec.Violations)
}

func eth(s string) *big.Int { return MustParseEther(s) }

func TestDeploy(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), Options{}, nil)

	_, err := l.FundraisingGoal(ctx)
	assert.ErrorIs(t, err, ErrNotDeployed)

	_, err = l.Deploy(ctx, DeployParams{Goal: big.NewInt(0), Owner: owner})
	assert.ErrorIs(t, err, ErrInvalidGoal)
	_, err = l.Deploy(ctx, DeployParams{Goal: eth("1")})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = l.Deploy(ctx, DeployParams{Goal: eth("1"), Owner: owner, Escrow: owner})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	st, err := l.Deploy(ctx, DeployParams{Goal: eth("1"), Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, EscrowAddress(owner), st.Escrow)
	assert.Equal(t, 0, st.TotalCollected.Sign())
	assert.False(t, st.GoalAchieved)

	again, err := l.Deploy(ctx, DeployParams{Goal: eth("1"), Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, st.DeployedAt, again.DeployedAt)

	_, err = l.Deploy(ctx, DeployParams{Goal: eth("2"), Owner: owner})
	assert.ErrorIs(t, err, ErrAlreadyDeployed)

	goal, err := l.FundraisingGoal(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("1"), goal)
}

func TestContributeBelowGoal(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	r, err := f.ledger.Contribute(ctx, alice, eth("0.5"))
	require.NoError(t, err)
	assert.Equal(t, eth("0.5"), r.Accepted)
	assert.Equal(t, 0, r.Refunded.Sign())
	assert.False(t, r.GoalAchieved)
	require.Len(t, r.Events, 1)
	assert.Equal(t, EventTokensMinted, r.Events[0].Type)

	assert.Equal(t, eth("0.5"), f.tokens(t, alice))
	assert.Equal(t, eth("9.5"), f.native(t, alice))
	assert.Equal(t, eth("0.5"), f.native(t, f.escrow))

	total, err := f.ledger.TotalCollected(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("0.5"), total)

	snap, err := f.ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFundraising, snap.Status)
	assert.EqualValues(t, 50, snap.ProgressPercent)
	f.requireConsistent(t)
}

func TestContributeOverpaymentIsCappedAndRefunded(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.7"))
	require.NoError(t, err)

	r, err := f.ledger.Contribute(ctx, bob, eth("2"))
	require.NoError(t, err)
	assert.Equal(t, eth("0.3"), r.Accepted)
	assert.Equal(t, eth("1.7"), r.Refunded)
	assert.True(t, r.GoalAchieved)

	types := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventTokensMinted, EventOverpaymentRefunded, EventGoalAchieved}, types)

	assert.Equal(t, eth("0.3"), f.tokens(t, bob))
	assert.Equal(t, eth("9.7"), f.native(t, bob))
	assert.Equal(t, eth("1"), f.native(t, f.escrow))

	snap, err := f.ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAchieved, snap.Status)
	assert.EqualValues(t, 100, snap.ProgressPercent)
	f.requireConsistent(t)
}

func TestContributeAfterGoalRejected(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("1"))
	require.NoError(t, err)

	_, err = f.ledger.Contribute(ctx, bob, eth("0.1"))
	assert.ErrorIs(t, err, ErrGoalAlreadyAchieved)
	assert.Equal(t, eth("10"), f.native(t, bob))
	assert.Equal(t, 0, f.tokens(t, bob).Sign())
	assert.Equal(t, 1, f.notified(EventGoalAchieved))
}

func TestContributeInvalidInput(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidContribution)
	_, err = f.ledger.Contribute(ctx, alice, nil)
	assert.ErrorIs(t, err, ErrInvalidContribution)
	_, err = f.ledger.Contribute(ctx, alice, new(big.Int).Add(MaxAmount, big.NewInt(1)))
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = f.ledger.Contribute(ctx, common.Address{}, eth("0.1"))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = f.ledger.Contribute(ctx, f.escrow, eth("0.1"))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = f.ledger.Contribute(ctx, alice, eth("11"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, KindTransfer, Kind(err))
	f.requireConsistent(t)
}

func TestContributeRefundRejectedRollsBack(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.9"))
	require.NoError(t, err)

	require.NoError(t, f.store.SetRejectPayments(ctx, bob, true))
	_, err = f.ledger.Contribute(ctx, bob, eth("0.5"))
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "refund", te.Purpose)
	assert.ErrorIs(t, err, ErrTransferRejected)

	assert.Equal(t, eth("10"), f.native(t, bob))
	assert.Equal(t, 0, f.tokens(t, bob).Sign())
	assert.Equal(t, eth("0.9"), f.native(t, f.escrow))
	total, err := f.ledger.TotalCollected(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("0.9"), total)
	assert.Equal(t, 0, f.notified(EventGoalAchieved))

	// exact amount needs no refund
	r, err := f.ledger.Contribute(ctx, bob, eth("0.1"))
	require.NoError(t, err)
	assert.True(t, r.GoalAchieved)
	f.requireConsistent(t)
}

func TestWithdrawOwnerFunds(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.4"))
	require.NoError(t, err)

	_, err = f.ledger.WithdrawOwnerFunds(ctx, alice)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.ledger.WithdrawOwnerFunds(ctx, owner)
	assert.ErrorIs(t, err, ErrGoalNotAchieved)

	_, err = f.ledger.Contribute(ctx, bob, eth("0.6"))
	require.NoError(t, err)

	_, err = f.ledger.WithdrawOwnerFunds(ctx, bob)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	r, err := f.ledger.WithdrawOwnerFunds(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, eth("1"), r.Amount)
	require.Len(t, r.Events, 1)
	assert.Equal(t, EventCollectedFundsWithdrawnByOwner, r.Events[0].Type)

	assert.Equal(t, eth("11"), f.native(t, owner))
	assert.Equal(t, 0, f.native(t, f.escrow).Sign())

	// balances and total are untouched
	assert.Equal(t, eth("0.4"), f.tokens(t, alice))
	total, err := f.ledger.TotalCollected(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("1"), total)

	_, err = f.ledger.WithdrawOwnerFunds(ctx, owner)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)
	f.requireConsistent(t)
}

func TestWithdrawOwnerFundsRejectedRollsBack(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("1"))
	require.NoError(t, err)

	require.NoError(t, f.ledger.SetRejectPayments(ctx, owner, true))
	_, err = f.ledger.WithdrawOwnerFunds(ctx, owner)
	assert.ErrorIs(t, err, ErrTransferRejected)
	assert.Equal(t, eth("1"), f.native(t, f.escrow))
	assert.Equal(t, 0, f.notified(EventCollectedFundsWithdrawnByOwner))

	require.NoError(t, f.ledger.SetRejectPayments(ctx, owner, false))
	_, err = f.ledger.WithdrawOwnerFunds(ctx, owner)
	require.NoError(t, err)
}

func TestWithdrawContributionWhileFundraising(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.WithdrawContribution(ctx, alice)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)

	_, err = f.ledger.Contribute(ctx, alice, eth("0.3"))
	require.NoError(t, err)
	_, err = f.ledger.Contribute(ctx, bob, eth("0.2"))
	require.NoError(t, err)

	r, err := f.ledger.WithdrawContribution(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, eth("0.3"), r.Amount)
	assert.False(t, r.Forfeited)

	assert.Equal(t, 0, f.tokens(t, alice).Sign())
	assert.Equal(t, eth("10"), f.native(t, alice))
	assert.Equal(t, eth("0.2"), f.native(t, f.escrow))
	total, err := f.ledger.TotalCollected(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("0.2"), total)

	_, err = f.ledger.WithdrawContribution(ctx, alice)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)
	f.requireConsistent(t)
}

func TestWithdrawContributionRejectedRollsBack(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.3"))
	require.NoError(t, err)

	require.NoError(t, f.store.SetRejectPayments(ctx, alice, true))
	_, err = f.ledger.WithdrawContribution(ctx, alice)
	assert.ErrorIs(t, err, ErrTransferRejected)
	assert.Equal(t, eth("0.3"), f.tokens(t, alice))
	assert.Equal(t, eth("0.3"), f.native(t, f.escrow))
	f.requireConsistent(t)
}

func TestWithdrawContributionTimeLock(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.6"))
	require.NoError(t, err)
	_, err = f.ledger.Contribute(ctx, bob, eth("0.4"))
	require.NoError(t, err)

	_, err = f.ledger.WithdrawContribution(ctx, alice)
	assert.ErrorIs(t, err, ErrWithdrawalImpossible)

	// the lock opens strictly after the window
	f.clock.Advance(DefaultTimeLock)
	_, err = f.ledger.WithdrawContribution(ctx, alice)
	assert.ErrorIs(t, err, ErrWithdrawalImpossible)

	f.clock.Advance(time.Second)
	snap, err := f.ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.TimeLockOpen)

	r, err := f.ledger.WithdrawContribution(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, eth("0.6"), r.Amount)
	assert.Equal(t, eth("10"), f.native(t, alice))

	// the goal flag stays set even though the total dropped
	snap, err = f.ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAchieved, snap.Status)
	assert.Equal(t, eth("0.4"), snap.TotalCollected)

	_, err = f.ledger.Contribute(ctx, carol, eth("0.1"))
	assert.ErrorIs(t, err, ErrGoalAlreadyAchieved)
	f.requireConsistent(t)
}

func TestTimeLockRefundAfterOwnerWithdrawalFails(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("1"))
	require.NoError(t, err)
	_, err = f.ledger.WithdrawOwnerFunds(ctx, owner)
	require.NoError(t, err)

	f.clock.Advance(31536001 * time.Second)
	_, err = f.ledger.WithdrawContribution(ctx, alice)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, KindTransfer, Kind(err))
	assert.Equal(t, eth("1"), f.tokens(t, alice))
}

func TestTimeLockForfeit(t *testing.T) {
	f := newFixture(t, PolicyForfeit)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.5"))
	require.NoError(t, err)
	_, err = f.ledger.Contribute(ctx, bob, eth("0.5"))
	require.NoError(t, err)

	// forfeit applies only through the time-lock
	f.clock.Advance(31536001 * time.Second)
	r, err := f.ledger.WithdrawContribution(ctx, alice)
	require.NoError(t, err)
	assert.True(t, r.Forfeited)
	assert.Equal(t, eth("0.5"), r.Amount)
	assert.Equal(t, eth("9.5"), f.native(t, alice))
	assert.Equal(t, eth("1"), f.native(t, f.escrow))
	assert.Equal(t, 1, f.notified(EventContributionForfeited))

	w, err := f.ledger.WithdrawOwnerFunds(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, eth("1"), w.Amount)
	f.requireConsistent(t)
}

func TestForfeitPolicyRefundsWhileFundraising(t *testing.T) {
	f := newFixture(t, PolicyForfeit)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.5"))
	require.NoError(t, err)
	r, err := f.ledger.WithdrawContribution(ctx, alice)
	require.NoError(t, err)
	assert.False(t, r.Forfeited)
	assert.Equal(t, eth("10"), f.native(t, alice))
}

func TestConcurrentContributionsNeverExceedGoal(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	senders := make([]common.Address, 20)
	for i := range senders {
		senders[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		_, err := f.ledger.Deposit(ctx, senders[i], eth("1"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(senders))
	for _, s := range senders {
		wg.Add(1)
		go func(s common.Address) {
			defer wg.Done()
			_, err := f.ledger.Contribute(ctx, s, eth("0.15"))
			if err != nil && !errors.Is(err, ErrGoalAlreadyAchieved) {
				errs <- err
			}
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	total, err := f.ledger.TotalCollected(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("1"), total)
	assert.Equal(t, eth("1"), f.native(t, f.escrow))
	assert.Equal(t, 1, f.notified(EventGoalAchieved))
	f.requireConsistent(t)
}

func TestEventsJournal(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Contribute(ctx, alice, eth("0.5"))
	require.NoError(t, err)
	_, err = f.ledger.Contribute(ctx, bob, eth("1"))
	require.NoError(t, err)

	all, err := f.ledger.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		assert.EqualValues(t, i+1, e.Seq)
	}

	tail, err := f.ledger.Events(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, EventOverpaymentRefunded, tail[0].Type)
	assert.Equal(t, EventGoalAchieved, tail[1].Type)
}

func TestDepositRejectsEscrow(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	_, err := f.ledger.Deposit(ctx, f.escrow, eth("1"))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = f.ledger.Deposit(ctx, alice, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	bal, err := f.ledger.Deposit(ctx, alice, eth("0.25"))
	require.NoError(t, err)
	assert.Equal(t, eth("10.25"), bal)
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{ErrInvalidContribution, KindValidation},
		{ErrGoalAlreadyAchieved, KindState},
		{ErrNotAuthorized, KindAuthorization},
		{&TransferError{Err: ErrTransferRejected}, KindTransfer},
		{ErrOverflow, KindArithmetic},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	seqs    []int64
}

func (n *blockingNotifier) Notify(_ context.Context, events []Event) {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range events {
		n.seqs = append(n.seqs, e.Seq)
	}
}

func TestSlowNotifierDoesNotBlockOperations(t *testing.T) {
	ctx := context.Background()
	n := &blockingNotifier{release: make(chan struct{})}
	l := New(NewMemoryStore(), Options{Notifier: n}, nil)
	t.Cleanup(l.Close)

	_, err := l.Deploy(ctx, DeployParams{Goal: MustParseEther("1"), Owner: owner})
	require.NoError(t, err)
	_, err = l.Deposit(ctx, alice, eth("1"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		if _, err := l.Contribute(ctx, alice, eth("0.1")); err != nil {
			done <- err
			return
		}
		_, err := l.Contribute(ctx, alice, eth("0.2"))
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("contributions blocked behind the notifier")
	}

	close(n.release)
	l.Flush()

	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.seqs)
	for i := 1; i < len(n.seqs); i++ {
		assert.Less(t, n.seqs[i-1], n.seqs[i], "events delivered out of commit order")
	}
}

type viewOnlyStore struct{ Store }

func TestSetRejectPayments(t *testing.T) {
	f := newFixture(t, PolicyRefund)
	ctx := context.Background()

	assert.ErrorIs(t, f.ledger.SetRejectPayments(ctx, common.Address{}, true), ErrInvalidAddress)

	l := New(viewOnlyStore{NewMemoryStore()}, Options{}, nil)
	err := l.SetRejectPayments(ctx, alice, true)
	require.Error(t, err)
	assert.Equal(t, KindInternal, Kind(err))
}
