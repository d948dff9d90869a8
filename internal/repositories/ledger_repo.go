package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepo is the Postgres ledger.Store. Write transactions lock the
// single ledger_state row, so API processes sharing the database serialize
// on it the same way goroutines serialize on the ledger mutex.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&ledgerTx{tx: tx, forUpdate: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepo) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetRejectPayments flags a custody account as refusing incoming transfers.
func (r *LedgerRepo) SetRejectPayments(ctx context.Context, account common.Address, reject bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO custody_accounts (address, rejects_payments) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET rejects_payments = EXCLUDED.rejects_payments, updated_at = now()
	`, account.Hex(), reject)
	return err
}

type ledgerTx struct {
	tx        pgx.Tx
	forUpdate bool
}

func (t *ledgerTx) State(ctx context.Context) (*ledger.State, error) {
	q := `
		SELECT goal::text, owner, escrow, deployed_at, total_collected::text, goal_achieved
		FROM ledger_state WHERE id = 1`
	if t.forUpdate {
		q += ` FOR UPDATE`
	}

	var (
		goal, total   string
		owner, escrow string
		st            ledger.State
	)
	err := t.tx.QueryRow(ctx, q).Scan(&goal, &owner, &escrow, &st.DeployedAt, &total, &st.GoalAchieved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotDeployed
	}
	if err != nil {
		return nil, err
	}

	if st.Goal, err = parseNumeric(goal); err != nil {
		return nil, err
	}
	if st.TotalCollected, err = parseNumeric(total); err != nil {
		return nil, err
	}
	st.Owner = common.HexToAddress(owner)
	st.Escrow = common.HexToAddress(escrow)
	return &st, nil
}

func (t *ledgerTx) PutState(ctx context.Context, s *ledger.State) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_state (id, goal, owner, escrow, deployed_at, total_collected, goal_achieved)
		VALUES (1, $1::numeric, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (id) DO UPDATE SET
			total_collected = EXCLUDED.total_collected,
			goal_achieved = EXCLUDED.goal_achieved,
			updated_at = now()
	`, s.Goal.String(), s.Owner.Hex(), s.Escrow.Hex(), s.DeployedAt, s.TotalCollected.String(), s.GoalAchieved)
	return err
}

func (t *ledgerTx) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.amount(ctx, `SELECT amount::text FROM token_balances WHERE address = $1`, account)
}

func (t *ledgerTx) PutBalance(ctx context.Context, account common.Address, amount *big.Int) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO token_balances (address, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
	`, account.Hex(), amount.String())
	return err
}

func (t *ledgerTx) Balances(ctx context.Context) (map[common.Address]*big.Int, error) {
	rows, err := t.tx.Query(ctx, `SELECT address, amount::text FROM token_balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[common.Address]*big.Int)
	for rows.Next() {
		var addr, amount string
		if err := rows.Scan(&addr, &amount); err != nil {
			return nil, err
		}
		v, err := parseNumeric(amount)
		if err != nil {
			return nil, err
		}
		out[common.HexToAddress(addr)] = v
	}
	return out, rows.Err()
}

func (t *ledgerTx) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.amount(ctx, `SELECT balance::text FROM custody_accounts WHERE address = $1`, account)
}

func (t *ledgerTx) Deposit(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ledger.ErrInvalidAmount
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO custody_accounts (address, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET
			balance = custody_accounts.balance + EXCLUDED.balance,
			updated_at = now()
	`, account.Hex(), amount.String())
	return err
}

func (t *ledgerTx) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ledger.ErrInvalidAmount
	}

	var rejects bool
	err := t.tx.QueryRow(ctx, `
		SELECT rejects_payments FROM custody_accounts WHERE address = $1
	`, to.Hex()).Scan(&rejects)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if rejects {
		return ledger.ErrTransferRejected
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE custody_accounts SET balance = balance - $2::numeric, updated_at = now()
		WHERE address = $1 AND balance >= $2::numeric
	`, from.Hex(), amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 && amount.Sign() > 0 {
		return ledger.ErrInsufficientFunds
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO custody_accounts (address, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET
			balance = custody_accounts.balance + EXCLUDED.balance,
			updated_at = now()
	`, to.Hex(), amount.String())
	return err
}

func (t *ledgerTx) AppendEvents(ctx context.Context, events []ledger.Event) ([]ledger.Event, error) {
	var last int64
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&last); err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	out := make([]ledger.Event, 0, len(events))
	for _, e := range events {
		last++
		e.Seq = last
		batch.Queue(`
			INSERT INTO ledger_events (seq, id, type, account, amount, occurred_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
		`, e.Seq, e.ID, e.Type, e.Account.Hex(), amountString(e.Amount), e.OccurredAt)
		out = append(out, e)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *ledgerTx) Events(ctx context.Context, afterSeq int64, limit int) ([]ledger.Event, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := t.tx.Query(ctx, `
		SELECT seq, id, type, account, amount::text, occurred_at
		FROM ledger_events WHERE seq > $1
		ORDER BY seq LIMIT $2
	`, afterSeq, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			e       ledger.Event
			account string
			amount  string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &account, &amount, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Account = common.HexToAddress(account)
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *ledgerTx) amount(ctx context.Context, query string, account common.Address) (*big.Int, error) {
	var s string
	err := t.tx.QueryRow(ctx, query, account.Hex()).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseNumeric(s)
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad numeric value %q", s)
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
