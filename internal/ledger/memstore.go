package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var errReadOnly = errors.New("write in read-only transaction")

// MemoryStore is an in-process Store. Update works on a copy of the data
// and swaps it in on success, which gives the same all-or-nothing behaviour
// as a database transaction.
type MemoryStore struct {
	mu        sync.RWMutex
	data      *memData
	rejecting map[common.Address]bool
}

type memData struct {
	state    *State
	balances map[common.Address]*big.Int
	native   map[common.Address]*big.Int
	events   []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			balances: make(map[common.Address]*big.Int),
			native:   make(map[common.Address]*big.Int),
		},
		rejecting: make(map[common.Address]bool),
	}
}

func (s *MemoryStore) SetRejectPayments(_ context.Context, account common.Address, reject bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reject {
		s.rejecting[account] = true
	} else {
		delete(s.rejecting, account)
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memTx{data: work, rejecting: s.rejecting}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{data: s.data, rejecting: s.rejecting, readOnly: true})
}

func (d *memData) clone() *memData {
	c := &memData{
		balances: make(map[common.Address]*big.Int, len(d.balances)),
		native:   make(map[common.Address]*big.Int, len(d.native)),
		events:   append([]Event(nil), d.events...),
	}
	if d.state != nil {
		c.state = d.state.Clone()
	}
	for k, v := range d.balances {
		c.balances[k] = clone(v)
	}
	for k, v := range d.native {
		c.native[k] = clone(v)
	}
	return c
}

type memTx struct {
	data      *memData
	rejecting map[common.Address]bool
	readOnly  bool
}

func (t *memTx) State(ctx context.Context) (*State, error) {
	if t.data.state == nil {
		return nil, ErrNotDeployed
	}
	return t.data.state.Clone(), nil
}

func (t *memTx) PutState(ctx context.Context, s *State) error {
	if t.readOnly {
		return errReadOnly
	}
	t.data.state = s.Clone()
	return nil
}

func (t *memTx) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return clone(t.data.balances[account]), nil
}

func (t *memTx) PutBalance(ctx context.Context, account common.Address, amount *big.Int) error {
	if t.readOnly {
		return errReadOnly
	}
	if amount.Sign() < 0 {
		return ErrUnderflow
	}
	t.data.balances[account] = clone(amount)
	return nil
}

func (t *memTx) Balances(ctx context.Context) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(t.data.balances))
	for k, v := range t.data.balances {
		out[k] = clone(v)
	}
	return out, nil
}

func (t *memTx) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return clone(t.data.native[account]), nil
}

func (t *memTx) Deposit(ctx context.Context, account common.Address, amount *big.Int) error {
	if t.readOnly {
		return errReadOnly
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	v, err := add(clone(t.data.native[account]), amount)
	if err != nil {
		return err
	}
	t.data.native[account] = v
	return nil
}

func (t *memTx) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if t.readOnly {
		return errReadOnly
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if t.rejecting[to] {
		return ErrTransferRejected
	}
	fromBal, err := sub(clone(t.data.native[from]), amount)
	if err != nil {
		return ErrInsufficientFunds
	}
	toBal, err := add(clone(t.data.native[to]), amount)
	if err != nil {
		return err
	}
	t.data.native[from] = fromBal
	t.data.native[to] = toBal
	return nil
}

func (t *memTx) AppendEvents(ctx context.Context, events []Event) ([]Event, error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	var seq int64
	if n := len(t.data.events); n > 0 {
		seq = t.data.events[n-1].Seq
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		seq++
		e.Seq = seq
		t.data.events = append(t.data.events, e)
		out = append(out, e)
	}
	return out, nil
}

func (t *memTx) Events(ctx context.Context, afterSeq int64, limit int) ([]Event, error) {
	var out []Event
	for _, e := range t.data.events {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
