// Package tokenstore persists the session token pair.
//
// A Store is a small key/value surface; the session only ever uses the two
// fixed keys AccessTokenKey and RefreshTokenKey. Backends:
//
//	MemoryStore   - process memory, for tests and embedding
//	ProfileStore  - a profile in the mall config file (default for the CLI)
//	RedisStore    - shared across processes and hosts
package tokenstore

import (
	"context"
	"fmt"

	"github.com/shoppingmall/mall/internal/config"
)

const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Store persists string values by key. Get returns "" for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Open builds the Store selected by cfg for the given profile.
func Open(ctx context.Context, cfg *config.Config, profile string) (Store, error) {
	switch cfg.TokenStore.Backend {
	case "", config.StoreFile:
		return NewProfileStore(cfg, profile), nil
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreRedis:
		if cfg.TokenStore.RedisURL == "" {
			return nil, fmt.Errorf("token store %q requires redis_url", config.StoreRedis)
		}
		return DialRedis(ctx, cfg.TokenStore.RedisURL, cfg.TokenStore.KeyPrefix+":"+profile)
	default:
		return nil, fmt.Errorf("unknown token store backend %q", cfg.TokenStore.Backend)
	}
}
