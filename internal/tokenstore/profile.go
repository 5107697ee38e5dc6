package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/shoppingmall/mall/internal/config"
)

// ProfileStore keeps tokens in a named profile of the config file.
// Every write saves the file.
type ProfileStore struct {
	cfg     *config.Config
	profile string
}

func NewProfileStore(cfg *config.Config, profile string) *ProfileStore {
	return &ProfileStore{cfg: cfg, profile: profile}
}

func (s *ProfileStore) Get(_ context.Context, key string) (string, error) {
	p, err := s.cfg.GetProfile(s.profile)
	if err != nil {
		if errors.Is(err, config.ErrProfileNotFound) {
			return "", nil
		}
		return "", err
	}

	switch key {
	case AccessTokenKey:
		return p.AccessToken, nil
	case RefreshTokenKey:
		return p.RefreshToken, nil
	default:
		return "", fmt.Errorf("profile store: unsupported key %q", key)
	}
}

func (s *ProfileStore) Set(_ context.Context, values map[string]string) error {
	for k := range values {
		if k != AccessTokenKey && k != RefreshTokenKey {
			return fmt.Errorf("profile store: unsupported key %q", k)
		}
	}

	return s.cfg.UpdateProfile(s.profile, func(p *config.Profile) {
		if v, ok := values[AccessTokenKey]; ok {
			p.AccessToken = v
		}
		if v, ok := values[RefreshTokenKey]; ok {
			p.RefreshToken = v
		}
	})
}

func (s *ProfileStore) Delete(_ context.Context, keys ...string) error {
	if _, err := s.cfg.GetProfile(s.profile); errors.Is(err, config.ErrProfileNotFound) {
		return nil
	}

	return s.cfg.UpdateProfile(s.profile, func(p *config.Profile) {
		for _, k := range keys {
			switch k {
			case AccessTokenKey:
				p.AccessToken = ""
			case RefreshTokenKey:
				p.RefreshToken = ""
			}
		}
	})
}
