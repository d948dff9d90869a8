package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the macro-state of the ledger.
type Status string

const (
	StatusFundraising Status = "fundraising"
	StatusAchieved    Status = "achieved"
)

// State is the persisted ledger header. Per-account token balances and
// custody balances live next to it in the store.
type State struct {
	Goal           *big.Int
	Owner          common.Address
	Escrow         common.Address // custody account holding collected funds
	DeployedAt     time.Time
	TotalCollected *big.Int
	GoalAchieved   bool // sticky
}

func (s *State) Status() Status {
	if s.GoalAchieved {
		return StatusAchieved
	}
	return StatusFundraising
}

func (s *State) Clone() *State {
	c := *s
	c.Goal = clone(s.Goal)
	c.TotalCollected = clone(s.TotalCollected)
	return &c
}

// TokenInfo describes the receipt token.
type TokenInfo struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

var DefaultTokenInfo = TokenInfo{
	Name:     "Fundraised Token",
	Symbol:   "FRT",
	Decimals: Decimals,
}

// Snapshot is a consistent read of the whole ledger header.
type Snapshot struct {
	Goal            *big.Int
	Owner           common.Address
	Escrow          common.Address
	DeployedAt      time.Time
	TotalCollected  *big.Int
	EscrowBalance   *big.Int
	Status          Status
	ProgressPercent int64
	TimeLockOpensAt time.Time
	TimeLockOpen    bool
}

// Progress returns collected*100/goal with integer division.
func Progress(goal, collected *big.Int) int64 {
	if goal == nil || goal.Sign() == 0 || collected == nil {
		return 0
	}
	p := new(big.Int).Mul(collected, big.NewInt(100))
	return p.Div(p, goal).Int64()
}
