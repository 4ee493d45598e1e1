package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/busgraph/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimit limits requests per client IP, per second and per day.
// Counters live in redis; when redis is unavailable requests pass through.
func RateLimit(rdb *redis.Client, limits config.RateLimitConfig) fiber.Handler {
	return rateLimit(rdb, limits, time.Now)
}

func rateLimit(rdb *redis.Client, limits config.RateLimitConfig, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		t := now()

		if limits.PerSecond > 0 {
			key := fmt.Sprintf("rl:ip:%s:second:%d", ip, t.Unix())
			count, err := incr(c, rdb, key, 2*time.Second)
			if err == nil && count > int64(limits.PerSecond) {
				c.Set("X-RateLimit-Limit-Second", strconv.Itoa(limits.PerSecond))
				c.Set("X-RateLimit-Remaining-Second", "0")
				c.Set("Retry-After", "1")

				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":       "rate_limit_exceeded",
					"message":     "Too many requests per second",
					"limit_type":  "per_second",
					"limit":       limits.PerSecond,
					"retry_after": 1,
				})
			}
		}

		if limits.PerDay > 0 {
			key := fmt.Sprintf("rl:ip:%s:day:%s", ip, t.Format("2006-01-02"))
			// 25 hours to handle timezone differences
			count, err := incr(c, rdb, key, 25*time.Hour)
			if err == nil {
				if count > int64(limits.PerDay) {
					tomorrow := t.AddDate(0, 0, 1)
					midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
					retryAfter := int64(midnight.Sub(t).Seconds())

					c.Set("X-RateLimit-Limit-Day", strconv.Itoa(limits.PerDay))
					c.Set("X-RateLimit-Remaining-Day", "0")
					c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

					return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
						"error":       "daily_quota_exceeded",
						"message":     "Daily quota exceeded",
						"limit_type":  "per_day",
						"limit":       limits.PerDay,
						"used":        count,
						"retry_after": retryAfter,
						"reset_at":    midnight.Format(time.RFC3339),
					})
				}
				c.Set("X-RateLimit-Remaining-Day", strconv.FormatInt(int64(limits.PerDay)-count, 10))
			}
		}

		return c.Next()
	}
}

// incr bumps a counter and sets its expiry. Errors are logged and returned
// so the caller can let the request through.
func incr(c *fiber.Ctx, rdb *redis.Client, key string, ttl time.Duration) (int64, error) {
	ctx := c.UserContext()
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Rate limiter unavailable, allowing request")
		return 0, err
	}
	if count == 1 {
		rdb.Expire(ctx, key, ttl)
	}
	return count, nil
}
