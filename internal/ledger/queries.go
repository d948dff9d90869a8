package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Read accessors never take the write lock; the store gives them a
// consistent view.

func (l *Ledger) TokenInfo() TokenInfo { return l.token }

func (l *Ledger) FundraisingGoal(ctx context.Context) (*big.Int, error) {
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.Goal, nil
}

func (l *Ledger) Owner(ctx context.Context) (common.Address, error) {
	st, err := l.state(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return st.Owner, nil
}

// TotalCollected doubles as the token's total supply.
func (l *Ledger) TotalCollected(ctx context.Context) (*big.Int, error) {
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.TotalCollected, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out *big.Int
	err := l.store.View(ctx, func(tx Tx) error {
		b, err := tx.Balance(ctx, account)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NativeBalanceOf returns the custody (currency) balance of account.
func (l *Ledger) NativeBalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out *big.Int
	err := l.store.View(ctx, func(tx Tx) error {
		b, err := tx.NativeBalance(ctx, account)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := l.clock.Now()
	var snap *Snapshot
	err := l.store.View(ctx, func(tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		escrow, err := tx.NativeBalance(ctx, st.Escrow)
		if err != nil {
			return err
		}
		snap = &Snapshot{
			Goal:            st.Goal,
			Owner:           st.Owner,
			Escrow:          st.Escrow,
			DeployedAt:      st.DeployedAt,
			TotalCollected:  st.TotalCollected,
			EscrowBalance:   escrow,
			Status:          st.Status(),
			ProgressPercent: Progress(st.Goal, st.TotalCollected),
			TimeLockOpensAt: st.DeployedAt.Add(l.timeLock),
			TimeLockOpen:    l.timeLockOpen(st, now),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Events returns journal entries with Seq > afterSeq, oldest first.
func (l *Ledger) Events(ctx context.Context, afterSeq int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Event
	err := l.store.View(ctx, func(tx Tx) error {
		evs, err := tx.Events(ctx, afterSeq, limit)
		out = evs
		return err
	})
	return out, err
}

func (l *Ledger) state(ctx context.Context) (*State, error) {
	var st *State
	err := l.store.View(ctx, func(tx Tx) error {
		s, err := tx.State(ctx)
		st = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
