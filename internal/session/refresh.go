package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/internal/logging"
	"github.com/shoppingmall/mall/internal/tokenstore"
)

var (
	// errRefreshRejected means no new access token could be obtained: the
	// refresh token is missing, was refused, or the refresh call failed. It
	// ends the session.
	errRefreshRejected = errors.New("refresh token rejected")
	// errRefreshDiscarded means the session was cleared or signed in again
	// while the refresh was in flight, so its tokens were not stored.
	errRefreshDiscarded = errors.New("session changed during refresh")
)

// refresh returns a fresh access token after staleAccess was answered with
// 401. Concurrent callers share one in-flight refresh. A caller whose stale
// token has already been replaced gets the current token without a new
// refresh.
func (s *Session) refresh(ctx context.Context, staleAccess string) (string, error) {
	v, err, shared := s.refreshes.Do(tokenstore.RefreshTokenKey, func() (any, error) {
		// One caller's cancellation must not fail the others sharing this call.
		ctx := context.WithoutCancel(ctx)

		current, err := s.store.Get(ctx, tokenstore.AccessTokenKey)
		if err != nil {
			return "", fmt.Errorf("read access token: %w", err)
		}
		if current != "" && current != staleAccess {
			s.metrics.Refreshes.WithLabelValues(refreshSkipped).Inc()
			return current, nil
		}
		return s.doRefresh(ctx)
	})
	if shared {
		s.logger.DebugContext(ctx, "joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) doRefresh(ctx context.Context) (string, error) {
	gen := s.generation()

	refreshToken, err := s.store.Get(ctx, tokenstore.RefreshTokenKey)
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(refreshError).Inc()
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refreshToken == "" {
		s.metrics.Refreshes.WithLabelValues(refreshMissing).Inc()
		return "", fmt.Errorf("no refresh token stored: %w", errRefreshRejected)
	}

	resp, err := s.client.Refresh(ctx, refreshToken)
	if err != nil && s.generation() != gen {
		s.metrics.Refreshes.WithLabelValues(refreshDiscarded).Inc()
		return "", errRefreshDiscarded
	}
	if err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) {
			s.metrics.Refreshes.WithLabelValues(refreshRejected).Inc()
			return "", fmt.Errorf("%w: status %d", errRefreshRejected, httpErr.StatusCode)
		}
		s.metrics.Refreshes.WithLabelValues(refreshError).Inc()
		s.logger.WarnContext(ctx, "token refresh failed", logging.Error(err))
		return "", fmt.Errorf("%w: %w", errRefreshRejected, err)
	}

	// The refresh token is kept unless the backend rotated it.
	stored, err := s.commitRefresh(ctx, gen, refreshToken, client.TokenPair{Access: resp.Access, Refresh: resp.Refresh})
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(refreshError).Inc()
		return "", err
	}
	if !stored {
		s.metrics.Refreshes.WithLabelValues(refreshDiscarded).Inc()
		s.logger.DebugContext(ctx, "session changed during refresh, dropping new token")
		return "", errRefreshDiscarded
	}

	s.metrics.Refreshes.WithLabelValues(refreshSuccess).Inc()
	s.logger.DebugContext(ctx, "access token refreshed")
	return resp.Access, nil
}
