package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrStoreDisabled is returned by writes when no persistence backend is
// configured.
var ErrStoreDisabled = errors.New("schedule: config store disabled")

// Provider is the read-only view of schedule configuration consumed by the
// scheduling core.
type Provider interface {
	Get(ctx context.Context, businessID string) (*Config, error)
}

// Store provides persistence for business schedule configurations.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new schedule config store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(businessID string) string {
	return fmt.Sprintf("schedule:config:%s", businessID)
}

// Get retrieves schedule config, returning the default if not found.
func (s *Store) Get(ctx context.Context, businessID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(businessID)).Bytes()
	if err == redis.Nil {
		return DefaultConfig(businessID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("schedule: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Set validates and saves schedule config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("schedule: marshal config: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(cfg.BusinessID), data, 0).Err(); err != nil {
		return fmt.Errorf("schedule: set config: %w", err)
	}
	return nil
}
