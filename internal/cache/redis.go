package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/passbi/busgraph/internal/config"
	"github.com/redis/go-redis/v9"
)

// FavoritesKey is the redis set holding favorite stop ids
const FavoritesKey = "favorites"

// NewClient creates a redis client and checks the connection
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	// Managed redis offerings require TLS
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Favorites persists the user's favorite stops so they survive restarts
type Favorites struct {
	rdb *redis.Client
}

// NewFavorites wraps a redis client
func NewFavorites(rdb *redis.Client) *Favorites {
	return &Favorites{rdb: rdb}
}

// Load returns every favorite stop id
func (f *Favorites) Load(ctx context.Context) ([]string, error) {
	ids, err := f.rdb.SMembers(ctx, FavoritesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	return ids, nil
}

// Set adds or removes a stop id
func (f *Favorites) Set(ctx context.Context, stopID string, favorite bool) error {
	var err error
	if favorite {
		err = f.rdb.SAdd(ctx, FavoritesKey, stopID).Err()
	} else {
		err = f.rdb.SRem(ctx, FavoritesKey, stopID).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to update favorite %s: %w", stopID, err)
	}
	return nil
}

// HealthCheck performs a health check on the Redis connection
func (f *Favorites) HealthCheck(ctx context.Context) error {
	if err := f.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}
