package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fundraising-token/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore keeps login nonces in Redis with a TTL. Used when the
// ledger runs without Postgres.
type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func nonceKey(nonce string) string { return "auth:nonce:" + nonce }

func (s *RedisNonceStore) Create(ctx context.Context, address string, ttl time.Duration) (*models.AuthNonce, error) {
	now := time.Now()
	n := &models.AuthNonce{
		ID:        uuid.New(),
		Address:   address,
		Nonce:     generateNonce(16),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.client.Set(ctx, nonceKey(n.Nonce), address, ttl).Err(); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, address, nonce string) (*models.AuthNonce, error) {
	owner, err := s.client.GetDel(ctx, nonceKey(nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNonceNotFound
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(owner, address) {
		return nil, ErrNonceNotFound
	}
	return &models.AuthNonce{Address: owner, Nonce: nonce, Used: true}, nil
}

// MemoryNonceStore is the in-process variant for tests and single-node runs.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]*models.AuthNonce
	now    func() time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]*models.AuthNonce), now: time.Now}
}

func (s *MemoryNonceStore) Create(ctx context.Context, address string, ttl time.Duration) (*models.AuthNonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, n := range s.nonces {
		if !n.ExpiresAt.After(now) {
			delete(s.nonces, k)
		}
	}

	n := &models.AuthNonce{
		ID:        uuid.New(),
		Address:   address,
		Nonce:     generateNonce(16),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.nonces[n.Nonce] = n
	cp := *n
	return &cp, nil
}

func (s *MemoryNonceStore) Consume(ctx context.Context, address, nonce string) (*models.AuthNonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nonces[nonce]
	if !ok || !n.ExpiresAt.After(s.now()) || !strings.EqualFold(n.Address, address) {
		return nil, ErrNonceNotFound
	}
	delete(s.nonces, nonce)
	cp := *n
	cp.Used = true
	return &cp, nil
}
