package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// DefaultTimeLock is the window after deployment past which contributors may
// withdraw even though the goal was achieved.
const DefaultTimeLock = 365 * 24 * time.Hour

// TimeLockPolicy decides what happens to the funds of a contributor who
// withdraws through the time-lock exception.
type TimeLockPolicy string

const (
	// PolicyRefund pays the contribution back from escrow.
	PolicyRefund TimeLockPolicy = "refund"
	// PolicyForfeit burns the tokens and leaves the funds in escrow for the owner.
	PolicyForfeit TimeLockPolicy = "forfeit"
)

func (p TimeLockPolicy) Valid() bool {
	return p == PolicyRefund || p == PolicyForfeit
}

// Notifier receives events after their transaction has committed.
type Notifier interface {
	Notify(ctx context.Context, events []Event)
}

// Recorder observes operation outcomes (metrics).
type Recorder interface {
	ObserveOperation(op string, err error, d time.Duration)
}

type Options struct {
	TimeLock       time.Duration
	TimeLockPolicy TimeLockPolicy
	Clock          Clock
	Notifier       Notifier
	Recorder       Recorder
}

// Ledger is the fundraising state machine. All mutations go through one
// mutex and one store transaction, so concurrent callers can never observe
// a stale remaining room and overshoot the goal.
type Ledger struct {
	store    Store
	clock    Clock
	dispatch *dispatcher
	recorder Recorder
	timeLock time.Duration
	policy   TimeLockPolicy
	token    TokenInfo
	log      *zap.Logger

	mu sync.Mutex
}

func New(store Store, opts Options, log *zap.Logger) *Ledger {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.TimeLock <= 0 {
		opts.TimeLock = DefaultTimeLock
	}
	if !opts.TimeLockPolicy.Valid() {
		opts.TimeLockPolicy = PolicyRefund
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		store:    store,
		clock:    opts.Clock,
		recorder: opts.Recorder,
		timeLock: opts.TimeLock,
		policy:   opts.TimeLockPolicy,
		token:    DefaultTokenInfo,
		log:      log,
	}
	if opts.Notifier != nil {
		l.dispatch = newDispatcher(opts.Notifier, log)
	}
	return l
}

// Flush blocks until every event committed so far has reached the notifier.
func (l *Ledger) Flush() {
	if l.dispatch != nil {
		l.dispatch.flush()
	}
}

// Close delivers pending events and stops the notifier goroutine. Events
// committed after Close stay in the journal only.
func (l *Ledger) Close() {
	if l.dispatch != nil {
		l.dispatch.close()
	}
}

// EscrowAddress derives the custody account of a ledger deployed by owner,
// the same way a contract address is derived from its creator.
func EscrowAddress(owner common.Address) common.Address {
	return crypto.CreateAddress(owner, 0)
}

type DeployParams struct {
	Goal   *big.Int
	Owner  common.Address
	Escrow common.Address // zero value derives it from Owner
}

// Deploy creates the ledger once. Calling it again with the same goal and
// owner returns the existing state, so every process can call it on start.
func (l *Ledger) Deploy(ctx context.Context, p DeployParams) (*State, error) {
	if p.Goal == nil || p.Goal.Sign() <= 0 {
		return nil, ErrInvalidGoal
	}
	if p.Goal.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	if p.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner is the zero address", ErrInvalidAddress)
	}
	if p.Escrow == (common.Address{}) {
		p.Escrow = EscrowAddress(p.Owner)
	}
	if p.Escrow == p.Owner {
		return nil, fmt.Errorf("%w: escrow must differ from owner", ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out *State
	err := l.store.Update(ctx, func(tx Tx) error {
		existing, err := tx.State(ctx)
		if err == nil {
			if existing.Goal.Cmp(p.Goal) != 0 || existing.Owner != p.Owner || existing.Escrow != p.Escrow {
				return ErrAlreadyDeployed
			}
			out = existing
			return nil
		}
		if !errors.Is(err, ErrNotDeployed) {
			return err
		}

		st := &State{
			Goal:           clone(p.Goal),
			Owner:          p.Owner,
			Escrow:         p.Escrow,
			DeployedAt:     l.clock.Now(),
			TotalCollected: zero(),
		}
		if err := tx.PutState(ctx, st); err != nil {
			return err
		}
		out = st
		l.log.Info("ledger deployed",
			zap.String("goal_wei", st.Goal.String()),
			zap.String("owner", st.Owner.Hex()),
			zap.String("escrow", st.Escrow.Hex()),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

type ContributionReceipt struct {
	Accepted     *big.Int
	Refunded     *big.Int
	GoalAchieved bool // this contribution reached the goal
	Events       []Event
}

// Contribute mints receipt tokens 1:1 for amount, capped at the remaining
// room; the excess is refunded to sender within the same transaction.
func (l *Ledger) Contribute(ctx context.Context, sender common.Address, amount *big.Int) (*ContributionReceipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidContribution
	}
	if amount.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	if sender == (common.Address{}) {
		return nil, ErrInvalidAddress
	}

	receipt := &ContributionReceipt{}
	events, err := l.update(ctx, "contribute", func(tx Tx, st *State, now time.Time) ([]Event, error) {
		if st.GoalAchieved {
			return nil, ErrGoalAlreadyAchieved
		}
		if sender == st.Escrow {
			return nil, ErrInvalidAddress
		}

		room, err := sub(st.Goal, st.TotalCollected)
		if err != nil {
			return nil, err
		}
		accepted := minAmount(amount, room)
		refund, err := sub(amount, accepted)
		if err != nil {
			return nil, err
		}

		if err := tx.Transfer(ctx, sender, st.Escrow, amount); err != nil {
			return nil, &TransferError{Purpose: "contribution", From: sender, To: st.Escrow, Amount: clone(amount), Err: err}
		}
		if refund.Sign() > 0 {
			if err := tx.Transfer(ctx, st.Escrow, sender, refund); err != nil {
				return nil, &TransferError{Purpose: "refund", From: st.Escrow, To: sender, Amount: refund, Err: err}
			}
		}

		balance, err := tx.Balance(ctx, sender)
		if err != nil {
			return nil, err
		}
		balance, err = add(balance, accepted)
		if err != nil {
			return nil, err
		}
		total, err := add(st.TotalCollected, accepted)
		if err != nil {
			return nil, err
		}
		if err := tx.PutBalance(ctx, sender, balance); err != nil {
			return nil, err
		}
		st.TotalCollected = total

		events := []Event{newEvent(EventTokensMinted, sender, accepted, now)}
		if refund.Sign() > 0 {
			events = append(events, newEvent(EventOverpaymentRefunded, sender, refund, now))
		}
		if total.Cmp(st.Goal) == 0 {
			st.GoalAchieved = true
			receipt.GoalAchieved = true
			events = append(events, newEvent(EventGoalAchieved, sender, total, now))
		}

		receipt.Accepted = accepted
		receipt.Refunded = refund
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	receipt.Events = events

	l.log.Info("contribution accepted",
		zap.String("sender", sender.Hex()),
		zap.String("accepted_wei", receipt.Accepted.String()),
		zap.String("refunded_wei", receipt.Refunded.String()),
		zap.Bool("goal_achieved", receipt.GoalAchieved),
	)
	return receipt, nil
}

type WithdrawalReceipt struct {
	Account   common.Address
	Amount    *big.Int
	Forfeited bool
	Events    []Event
}

// WithdrawOwnerFunds pays the entire escrow to the owner once the goal is
// achieved. Token balances and the collected total are left as they are.
func (l *Ledger) WithdrawOwnerFunds(ctx context.Context, caller common.Address) (*WithdrawalReceipt, error) {
	receipt := &WithdrawalReceipt{Account: caller}
	events, err := l.update(ctx, "withdraw_owner_funds", func(tx Tx, st *State, now time.Time) ([]Event, error) {
		if caller != st.Owner {
			return nil, ErrNotAuthorized
		}
		if !st.GoalAchieved {
			return nil, ErrGoalNotAchieved
		}

		escrow, err := tx.NativeBalance(ctx, st.Escrow)
		if err != nil {
			return nil, err
		}
		if escrow.Sign() == 0 {
			return nil, ErrNothingToWithdraw
		}
		if err := tx.Transfer(ctx, st.Escrow, st.Owner, escrow); err != nil {
			return nil, &TransferError{Purpose: "owner withdrawal", From: st.Escrow, To: st.Owner, Amount: escrow, Err: err}
		}

		receipt.Amount = escrow
		return []Event{newEvent(EventCollectedFundsWithdrawnByOwner, st.Owner, escrow, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	receipt.Events = events

	l.log.Info("collected funds withdrawn by owner",
		zap.String("owner", caller.Hex()),
		zap.String("amount_wei", receipt.Amount.String()),
	)
	return receipt, nil
}

// WithdrawContribution burns the caller's tokens and pays the contribution
// back. It is allowed while fundraising, and after the goal only once the
// time-lock has opened; what happens to the funds then depends on the
// configured TimeLockPolicy.
func (l *Ledger) WithdrawContribution(ctx context.Context, caller common.Address) (*WithdrawalReceipt, error) {
	receipt := &WithdrawalReceipt{Account: caller}
	events, err := l.update(ctx, "withdraw_contribution", func(tx Tx, st *State, now time.Time) ([]Event, error) {
		viaTimeLock := false
		if st.GoalAchieved {
			if !l.timeLockOpen(st, now) {
				return nil, ErrWithdrawalImpossible
			}
			viaTimeLock = true
		}

		amount, err := tx.Balance(ctx, caller)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			return nil, ErrNothingToWithdraw
		}
		total, err := sub(st.TotalCollected, amount)
		if err != nil {
			return nil, err
		}

		if err := tx.PutBalance(ctx, caller, zero()); err != nil {
			return nil, err
		}
		st.TotalCollected = total

		events := []Event{newEvent(EventTokensBurned, caller, amount, now)}
		if viaTimeLock && l.policy == PolicyForfeit {
			receipt.Forfeited = true
			events = append(events, newEvent(EventContributionForfeited, caller, amount, now))
		} else {
			if err := tx.Transfer(ctx, st.Escrow, caller, amount); err != nil {
				return nil, &TransferError{Purpose: "contribution withdrawal", From: st.Escrow, To: caller, Amount: clone(amount), Err: err}
			}
		}

		receipt.Amount = amount
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	receipt.Events = events

	l.log.Info("contribution withdrawn",
		zap.String("account", caller.Hex()),
		zap.String("amount_wei", receipt.Amount.String()),
		zap.Bool("forfeited", receipt.Forfeited),
	)
	return receipt, nil
}

// Deposit credits native funds to an account's custody balance. It is the
// out-of-band funding path; the escrow account cannot be credited.
func (l *Ledger) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if account == (common.Address{}) {
		return nil, ErrInvalidAddress
	}

	var balance *big.Int
	_, err := l.update(ctx, "deposit", func(tx Tx, st *State, now time.Time) ([]Event, error) {
		if account == st.Escrow {
			return nil, fmt.Errorf("%w: escrow is funded by contributions only", ErrInvalidAddress)
		}
		current, err := tx.NativeBalance(ctx, account)
		if err != nil {
			return nil, err
		}
		if _, err := add(current, amount); err != nil {
			return nil, err
		}
		if err := tx.Deposit(ctx, account, amount); err != nil {
			return nil, err
		}
		balance, err = tx.NativeBalance(ctx, account)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// SetRejectPayments flags account as refusing incoming custody transfers.
// Payouts to it (refunds, withdrawals) then fail and roll back.
func (l *Ledger) SetRejectPayments(ctx context.Context, account common.Address, reject bool) error {
	if account == (common.Address{}) {
		return ErrInvalidAddress
	}
	r, ok := l.store.(PaymentRejecter)
	if !ok {
		return fmt.Errorf("store %T cannot reject payments", l.store)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := r.SetRejectPayments(ctx, account, reject); err != nil {
		return err
	}
	l.log.Info("custody payment policy changed",
		zap.String("account", account.Hex()),
		zap.Bool("reject", reject),
	)
	return nil
}

// update runs one serialized ledger transaction. fn mutates st in place;
// st and the returned events are persisted only if fn succeeds.
func (l *Ledger) update(ctx context.Context, op string, fn func(tx Tx, st *State, now time.Time) ([]Event, error)) ([]Event, error) {
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	var committed []Event
	err := l.store.Update(ctx, func(tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		events, err := fn(tx, st, now)
		if err != nil {
			return err
		}
		if err := tx.PutState(ctx, st); err != nil {
			return err
		}
		if len(events) > 0 {
			committed, err = tx.AppendEvents(ctx, events)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if l.recorder != nil {
		l.recorder.ObserveOperation(op, err, time.Since(start))
	}
	if err != nil {
		l.logRejected(op, err)
		return nil, err
	}

	// доставка асинхронная: медленный подписчик не держит мьютекс
	if l.dispatch != nil && len(committed) > 0 {
		l.dispatch.enqueue(ctx, committed)
	}
	return committed, nil
}

func (l *Ledger) logRejected(op string, err error) {
	switch Kind(err) {
	case KindInternal, KindArithmetic:
		l.log.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
	case KindTransfer:
		l.log.Warn("ledger operation rolled back", zap.String("op", op), zap.Error(err))
	default:
		l.log.Debug("ledger operation rejected", zap.String("op", op), zap.Error(err))
	}
}

func (l *Ledger) timeLockOpen(st *State, now time.Time) bool {
	return now.Sub(st.DeployedAt) > l.timeLock
}
