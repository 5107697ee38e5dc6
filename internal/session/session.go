// Package session owns the client-side authentication state of the storefront:
// the persisted access/refresh token pair, the cached user, and the
// authenticated-request primitive that refreshes an expired access token once
// and retries.
//
// A Session is an explicit value; several sessions (one per profile, or one
// per simulated user in tests) can coexist in a process. It is safe for
// concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/internal/logging"
	"github.com/shoppingmall/mall/internal/tokenstore"
)

var (
	// ErrNotAuthenticated is returned by helpers that need a stored access token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionEnded means the refresh token was rejected and the session was cleared.
	ErrSessionEnded = errors.New("session expired, please log in again")
)

// HTTPError is a non-2xx response that is not handled by the session.
type HTTPError = client.HTTPError

// User is the authenticated account.
type User = client.User

// Session holds one account's tokens and cached user.
type Session struct {
	client    *client.Client
	store     tokenstore.Store
	logger    *logging.Logger
	navigator Navigator
	metrics   *Metrics

	mu   sync.RWMutex
	user *User
	// gen advances every time the session is cleared. Writes that started
	// under an older generation are dropped.
	gen uint64

	// writeMu serializes token writes that must not interleave with clear.
	writeMu   sync.Mutex
	refreshes singleflight.Group
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Sessions log nothing by default.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithNavigator sets the receiver of landing/login navigation signals.
func WithNavigator(n Navigator) Option {
	return func(s *Session) {
		s.navigator = n
	}
}

// WithMetrics sets the counters the session reports to.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// New returns a session that persists tokens in store and talks to the
// backend through c.
func New(c *client.Client, store tokenstore.Store, opts ...Option) *Session {
	s := &Session{
		client:    c,
		store:     store,
		logger:    logging.Discard(),
		navigator: nopNavigator{},
		metrics:   NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAuthenticated reports whether an access token is stored. It does not
// check the token with the backend.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	token, err := s.store.Get(ctx, tokenstore.AccessTokenKey)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read access token", logging.Error(err))
		return false
	}
	return token != ""
}

// Tokens returns the stored pair; empty fields mean absent.
func (s *Session) Tokens(ctx context.Context) (client.TokenPair, error) {
	access, err := s.store.Get(ctx, tokenstore.AccessTokenKey)
	if err != nil {
		return client.TokenPair{}, fmt.Errorf("read access token: %w", err)
	}
	refresh, err := s.store.Get(ctx, tokenstore.RefreshTokenKey)
	if err != nil {
		return client.TokenPair{}, fmt.Errorf("read refresh token: %w", err)
	}
	return client.TokenPair{Access: access, Refresh: refresh}, nil
}

// CachedUser returns the user cached by the last login, register or
// successful CurrentUser. It performs no I/O.
func (s *Session) CachedUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// cacheUser caches u unless the session was cleared after gen was read.
func (s *Session) cacheUser(gen uint64, u *User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.user = u
	return true
}

// signIn replaces the whole token pair and the cached user. A pair without a
// refresh token removes the stored one.
func (s *Session) signIn(ctx context.Context, pair client.TokenPair, u *User) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storeTokens(ctx, pair); err != nil {
		return err
	}
	if pair.Refresh == "" {
		if err := s.store.Delete(ctx, tokenstore.RefreshTokenKey); err != nil {
			return fmt.Errorf("store tokens: %w", err)
		}
	}

	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return nil
}

// commitRefresh stores a refreshed pair. It reports false, storing nothing,
// when the session was cleared since gen or the refresh token used is no
// longer the stored one.
func (s *Session) commitRefresh(ctx context.Context, gen uint64, used string, pair client.TokenPair) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.generation() != gen {
		return false, nil
	}
	current, err := s.store.Get(ctx, tokenstore.RefreshTokenKey)
	if err != nil {
		return false, fmt.Errorf("read refresh token: %w", err)
	}
	if current != used {
		return false, nil
	}
	return true, s.storeTokens(ctx, pair)
}

// storeTokens writes the access token and, when set, the refresh token.
func (s *Session) storeTokens(ctx context.Context, pair client.TokenPair) error {
	values := map[string]string{tokenstore.AccessTokenKey: pair.Access}
	if pair.Refresh != "" {
		values[tokenstore.RefreshTokenKey] = pair.Refresh
	}
	if err := s.store.Set(ctx, values); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	return nil
}

// clear removes both tokens and the cached user and starts a new generation.
func (s *Session) clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.gen++
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Delete(ctx, tokenstore.AccessTokenKey, tokenstore.RefreshTokenKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
