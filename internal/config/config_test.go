package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/ledger"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TIME_LOCK_SECONDS", "")
	t.Setenv("TIME_LOCK_POLICY", "")
	t.Setenv("FUNDRAISING_GOAL", "")

	cfg := Load()
	if cfg.TimeLock != 365*24*time.Hour {
		t.Errorf("expected 365 days time-lock, got %v", cfg.TimeLock)
	}
	if cfg.TimeLockPolicy != ledger.PolicyRefund {
		t.Errorf("expected refund policy, got %s", cfg.TimeLockPolicy)
	}
	goal, err := cfg.Goal()
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	if goal.Cmp(ledger.MustParseEther("1")) != 0 {
		t.Errorf("expected 1 ether goal, got %s", goal)
	}
}

func TestDeployParams(t *testing.T) {
	t.Setenv("FUNDRAISING_GOAL", "2.5")
	t.Setenv("OWNER_ADDRESS", "0x52908400098527886E0F7030069857D2E4169EE7")
	t.Setenv("ESCROW_ADDRESS", "")

	p, err := Load().DeployParams()
	if err != nil {
		t.Fatalf("deploy params: %v", err)
	}
	if p.Goal.String() != "2500000000000000000" {
		t.Errorf("unexpected goal %s", p.Goal)
	}
	if p.Owner != common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7") {
		t.Errorf("unexpected owner %s", p.Owner.Hex())
	}
	if p.Escrow != (common.Address{}) {
		t.Errorf("expected derived escrow, got %s", p.Escrow.Hex())
	}
}

func TestDeployParamsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		goal  string
		owner string
	}{
		{"zero goal", "0", "0x52908400098527886E0F7030069857D2E4169EE7"},
		{"bad goal", "lots", "0x52908400098527886E0F7030069857D2E4169EE7"},
		{"missing owner", "1", ""},
		{"bad owner", "1", "0xnope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FUNDRAISING_GOAL", tt.goal)
			t.Setenv("OWNER_ADDRESS", tt.owner)
			if _, err := Load().DeployParams(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := &Config{Storage: "sqlite", TimeLockPolicy: "burn"}
	cfg.Validate(zap.NewNop())
	if cfg.Storage != StoragePostgres {
		t.Errorf("expected postgres fallback, got %s", cfg.Storage)
	}
	if cfg.TimeLockPolicy != ledger.PolicyRefund {
		t.Errorf("expected refund fallback, got %s", cfg.TimeLockPolicy)
	}
}

func TestAdminAddresses(t *testing.T) {
	t.Setenv("ADMIN_ADDRESSES", "0x52908400098527886E0F7030069857D2E4169EE7, bogus ,0x00000000000000000000000000000000000000a1")
	cfg := Load()
	if len(cfg.AdminAddresses) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(cfg.AdminAddresses))
	}
	if !cfg.IsAdmin(common.HexToAddress("0x00000000000000000000000000000000000000a1")) {
		t.Error("expected admin")
	}
	if cfg.IsAdmin(common.HexToAddress("0x00000000000000000000000000000000000000a2")) {
		t.Error("unexpected admin")
	}
}
