package cmd

import (
	"fmt"

	"github.com/dukex/parley/pkg/breaker"
	"github.com/redis/go-redis/v9"
)

// NewBreakerStore shares breaker state through Redis when redisURL is set and keeps it in
// process otherwise.
func NewBreakerStore(redisURL string) (breaker.Store, func() error, error) {
	if redisURL == "" {
		return breaker.NewMemoryStore(), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	return breaker.NewRedisStore(client), client.Close, nil
}
