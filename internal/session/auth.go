package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/internal/logging"
	"github.com/shoppingmall/mall/internal/tokenstore"
)

// AuthResult is the outcome of Login or Register. On failure Errors holds the
// backend's field errors (or a "general" message) and no tokens are stored.
type AuthResult struct {
	Success bool
	User    *User
	Message string
	Errors  FieldErrors
}

// Login authenticates with email and password. Backend rejections and
// transport failures are reported in the result; the error return is only
// set when the token pair could not be persisted.
func (s *Session) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx = logging.WithRequestID(ctx, logging.GetRequestID(ctx))

	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.metrics.Auth.WithLabelValues("login", authError).Inc()
		s.logger.ErrorContext(ctx, "login request failed", logging.Email(email), logging.Error(err))
		return &AuthResult{Errors: FieldErrors{GeneralField: "login failed: " + err.Error()}}, nil
	}

	return s.completeAuth(ctx, "login", resp)
}

// Register creates an account and signs in with the returned tokens. It has
// the same contract as Login.
func (s *Session) Register(ctx context.Context, req client.RegisterRequest) (*AuthResult, error) {
	ctx = logging.WithRequestID(ctx, logging.GetRequestID(ctx))

	resp, err := s.client.Register(ctx, req)
	if err != nil {
		s.metrics.Auth.WithLabelValues("register", authError).Inc()
		s.logger.ErrorContext(ctx, "register request failed", logging.Email(req.Email), logging.Error(err))
		return &AuthResult{Errors: FieldErrors{GeneralField: "registration failed: " + err.Error()}}, nil
	}

	return s.completeAuth(ctx, "register", resp)
}

func (s *Session) completeAuth(ctx context.Context, operation string, resp *client.Response) (*AuthResult, error) {
	if !resp.OK() {
		s.metrics.Auth.WithLabelValues(operation, authRejected).Inc()
		s.logger.InfoContext(ctx, operation+" rejected", logging.Status(resp.StatusCode))

		if len(resp.Body) == 0 || !json.Valid(resp.Body) {
			return &AuthResult{Errors: FieldErrors{
				GeneralField: (&HTTPError{StatusCode: resp.StatusCode}).Error(),
			}}, nil
		}
		return &AuthResult{Errors: ParseFieldErrors(resp.Body)}, nil
	}

	var auth client.AuthResponse
	if err := json.Unmarshal(resp.Body, &auth); err != nil || auth.Tokens.Access == "" {
		s.metrics.Auth.WithLabelValues(operation, authError).Inc()
		return &AuthResult{Errors: FieldErrors{GeneralField: operation + " failed: response did not include tokens"}}, nil
	}

	if err := s.signIn(ctx, auth.Tokens, auth.User); err != nil {
		s.metrics.Auth.WithLabelValues(operation, authError).Inc()
		return nil, err
	}

	s.metrics.Auth.WithLabelValues(operation, authSuccess).Inc()
	attrs := []any{}
	if auth.User != nil {
		attrs = append(attrs, logging.UserID(auth.User.ID), logging.Email(auth.User.Email))
	}
	s.logger.InfoContext(ctx, operation+" succeeded", attrs...)

	return &AuthResult{
		Success: true,
		User:    auth.User,
		Message: auth.Message,
	}, nil
}

// Logout tells the backend to revoke the refresh token (best effort, errors
// are only logged), then clears the tokens and the cached user and sends the
// navigator to DestinationLanding. Calling it again is harmless.
func (s *Session) Logout(ctx context.Context) error {
	ctx = logging.WithRequestID(ctx, logging.GetRequestID(ctx))

	pair, err := s.Tokens(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read tokens before logout", logging.Error(err))
	}

	if pair.Refresh != "" {
		if err := s.client.Logout(ctx, pair.Access, pair.Refresh); err != nil {
			s.logger.WarnContext(ctx, "logout request failed", logging.Error(err))
		}
	}

	clearErr := s.clear(ctx)
	if clearErr != nil {
		s.metrics.Auth.WithLabelValues("logout", authError).Inc()
	} else {
		s.metrics.Auth.WithLabelValues("logout", authSuccess).Inc()
		s.logger.InfoContext(ctx, "logged out")
	}

	s.navigator.Navigate(ctx, DestinationLanding)
	return clearErr
}

// FetchUser requests the user-info endpoint and caches the user on success.
// If the session is cleared while the request is in flight the answer is
// dropped and ErrNotAuthenticated is returned.
func (s *Session) FetchUser(ctx context.Context) (*User, error) {
	gen := s.generation()
	if !s.IsAuthenticated(ctx) {
		return nil, ErrNotAuthenticated
	}

	res, err := s.Do(ctx, http.MethodGet, client.PathUserInfo, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	user, err := client.DecodeUser(res.Body)
	if err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}

	if !s.cacheUser(gen, user) {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

// CurrentUser returns the authenticated user, or nil when not authenticated
// or when the lookup fails. A failed lookup does not clear the tokens.
func (s *Session) CurrentUser(ctx context.Context) *User {
	user, err := s.FetchUser(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			s.logger.WarnContext(ctx, "failed to get user info", logging.Error(err))
		}
		return nil
	}
	return user
}

// AccessTokenInfo decodes the stored access token's claims.
func (s *Session) AccessTokenInfo(ctx context.Context) (*TokenInfo, error) {
	token, err := s.store.Get(ctx, tokenstore.AccessTokenKey)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return InspectToken(token)
}
