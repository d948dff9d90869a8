package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware counts requests per path and client in a fixed Redis
// window. Mounted after AuthMiddleware it keys by caller address, otherwise
// by IP. A nil client disables limiting.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || limit <= 0 {
			return c.Next()
		}

		key := rateLimitKey(c)

		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}

		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error:     "rate limit exceeded",
				Code:      "rate_limit",
				RequestID: GetRequestID(c),
			})
		}

		return c.Next()
	}
}

func rateLimitKey(c *fiber.Ctx) string {
	if addr := GetAddress(c); addr != (common.Address{}) {
		return fmt.Sprintf("rl:%s:%s", c.Path(), addr.Hex())
	}
	return fmt.Sprintf("rl:%s:ip:%s", c.Path(), c.IP())
}
