package ledger

import (
	"context"
	"fmt"
	"math/big"
)

// Reconciliation is the result of checking the ledger's cross-field invariants.
type Reconciliation struct {
	TotalCollected *big.Int
	SumOfBalances  *big.Int
	EscrowBalance  *big.Int
	Goal           *big.Int
	OwnerWithdrawn bool
	Violations     []string
}

func (r *Reconciliation) OK() bool { return len(r.Violations) == 0 }

// Reconcile verifies total == Σ balances and total <= goal, and escrow ==
// total as long as neither the owner nor a forfeiting contributor has made
// them diverge on purpose.
func (l *Ledger) Reconcile(ctx context.Context) (*Reconciliation, error) {
	r := &Reconciliation{}
	err := l.store.View(ctx, func(tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		balances, err := tx.Balances(ctx)
		if err != nil {
			return err
		}
		escrow, err := tx.NativeBalance(ctx, st.Escrow)
		if err != nil {
			return err
		}
		diverged, err := l.escrowDiverged(ctx, tx)
		if err != nil {
			return err
		}

		sum := new(big.Int)
		for _, b := range balances {
			if b.Sign() < 0 {
				r.Violations = append(r.Violations, "negative token balance")
			}
			sum.Add(sum, b)
		}

		r.TotalCollected = st.TotalCollected
		r.SumOfBalances = sum
		r.EscrowBalance = escrow
		r.Goal = st.Goal
		r.OwnerWithdrawn = diverged

		if sum.Cmp(st.TotalCollected) != 0 {
			r.Violations = append(r.Violations,
				fmt.Sprintf("total collected %s != sum of balances %s", st.TotalCollected, sum))
		}
		if st.TotalCollected.Cmp(st.Goal) > 0 {
			r.Violations = append(r.Violations,
				fmt.Sprintf("total collected %s exceeds goal %s", st.TotalCollected, st.Goal))
		}
		if !diverged && escrow.Cmp(st.TotalCollected) != 0 {
			r.Violations = append(r.Violations,
				fmt.Sprintf("escrow %s != total collected %s", escrow, st.TotalCollected))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// escrowDiverged reports whether the journal holds an owner withdrawal or a
// forfeit, after which escrow and total legitimately differ.
func (l *Ledger) escrowDiverged(ctx context.Context, tx Tx) (bool, error) {
	var after int64
	for {
		evs, err := tx.Events(ctx, after, 500)
		if err != nil {
			return false, err
		}
		for _, e := range evs {
			if e.Type == EventCollectedFundsWithdrawnByOwner || e.Type == EventContributionForfeited {
				return true, nil
			}
			after = e.Seq
		}
		if len(evs) < 500 {
			return false, nil
		}
	}
}
