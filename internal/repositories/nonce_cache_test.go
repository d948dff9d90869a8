package repositories

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryNonceStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryNonceStore()
	s.now = func() time.Time { return now }

	const addr = "0x52908400098527886E0F7030069857D2E4169EE7"
	n, err := s.Create(ctx, addr, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(n.Nonce) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(n.Nonce))
	}

	if _, err := s.Consume(ctx, "0x00000000000000000000000000000000000000a1", n.Nonce); !errors.Is(err, ErrNonceNotFound) {
		t.Errorf("expected ErrNonceNotFound for foreign address, got %v", err)
	}
	got, err := s.Consume(ctx, addr, n.Nonce)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !got.Used {
		t.Error("expected used nonce")
	}
	if _, err := s.Consume(ctx, addr, n.Nonce); !errors.Is(err, ErrNonceNotFound) {
		t.Errorf("expected replay to fail, got %v", err)
	}

	expiring, err := s.Create(ctx, addr, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := s.Consume(ctx, addr, expiring.Nonce); !errors.Is(err, ErrNonceNotFound) {
		t.Errorf("expected expired nonce to fail, got %v", err)
	}
}
