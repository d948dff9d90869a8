package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/fundraising-token/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNonceNotFound = errors.New("nonce not found, expired or already used")

type NonceRepo struct {
	pool *pgxpool.Pool
}

func NewNonceRepo(pool *pgxpool.Pool) *NonceRepo {
	return &NonceRepo{pool: pool}
}

func (r *NonceRepo) Create(ctx context.Context, address string, ttl time.Duration) (*models.AuthNonce, error) {
	n := &models.AuthNonce{
		Address: address,
		Nonce:   generateNonce(16),
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO auth_nonces (address, nonce, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		RETURNING id, created_at, expires_at
	`, address, n.Nonce, ttl.String()).Scan(&n.ID, &n.CreatedAt, &n.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Consume marks the nonce used. It succeeds once, and only for the address
// it was issued to.
func (r *NonceRepo) Consume(ctx context.Context, address, nonce string) (*models.AuthNonce, error) {
	var n models.AuthNonce
	err := r.pool.QueryRow(ctx, `
		UPDATE auth_nonces
		SET used = true
		WHERE nonce = $1 AND address = $2 AND used = false AND expires_at > now()
		RETURNING id, address, nonce, created_at, expires_at, used
	`, nonce, address).Scan(&n.ID, &n.Address, &n.Nonce, &n.CreatedAt, &n.ExpiresAt, &n.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNonceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteExpired removes nonces past their expiry; the worker calls it.
func (r *NonceRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_nonces WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
