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

// Do sends an authenticated request to endpoint (relative to the API base URL).
//
//   - 2xx returns OutcomeOK.
//   - 400 returns OutcomeValidation with the parsed error body.
//   - 401 with a stored access token refreshes the token once and resends the
//     request; the second answer is returned as-is. If the refresh fails for
//     any reason (no refresh token, refused, network failure) the session is
//     cleared, the navigator is sent to DestinationLogin and
//     OutcomeSessionEnded is returned. A refresh overtaken by Logout also
//     returns OutcomeSessionEnded, without a second navigation.
//   - Any other status (including 401 without a token) is an *HTTPError.
//
// Transport failures of the request itself are returned as errors.
func (s *Session) Do(ctx context.Context, method, endpoint string, body any) (*Result, error) {
	if logging.GetRequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, "")
	}

	access, err := s.store.Get(ctx, tokenstore.AccessTokenKey)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}

	resp, err := s.client.Do(ctx, method, endpoint, body, access, nil)
	if err != nil {
		return s.finish(ctx, method, endpoint, nil, err)
	}

	var result *Result
	switch {
	case resp.OK():
		result, err = okResult(resp)
	case resp.StatusCode == http.StatusBadRequest:
		result, err = validationResult(resp)
	case resp.StatusCode == http.StatusUnauthorized && access != "":
		result, err = s.refreshAndRetry(ctx, method, endpoint, body, access)
	default:
		err = &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return s.finish(ctx, method, endpoint, result, err)
}

func (s *Session) refreshAndRetry(ctx context.Context, method, endpoint string, body any, staleAccess string) (*Result, error) {
	newAccess, err := s.refresh(ctx, staleAccess)
	if errors.Is(err, errRefreshDiscarded) {
		return &Result{
			Outcome:    OutcomeSessionEnded,
			StatusCode: http.StatusUnauthorized,
		}, nil
	}
	if err != nil {
		if !errors.Is(err, errRefreshRejected) {
			return nil, err
		}

		s.logger.WarnContext(ctx, "session expired, clearing tokens",
			logging.Method(method), logging.Path(endpoint), logging.Error(err))
		if err := s.clear(ctx); err != nil {
			return nil, err
		}
		s.navigator.Navigate(ctx, DestinationLogin)
		return &Result{
			Outcome:    OutcomeSessionEnded,
			StatusCode: http.StatusUnauthorized,
		}, nil
	}

	resp, err := s.client.Do(ctx, method, endpoint, body, newAccess, nil)
	if err != nil {
		return nil, err
	}

	result, err := retriedResult(resp)
	if err != nil {
		return nil, err
	}
	result.Refreshed = true
	return result, nil
}

func (s *Session) finish(ctx context.Context, method, endpoint string, result *Result, err error) (*Result, error) {
	if err != nil {
		label := requestTransportError
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			label = requestHTTPError
		}
		s.metrics.Requests.WithLabelValues(label).Inc()
		s.logger.DebugContext(ctx, "authenticated request failed",
			logging.Method(method), logging.Path(endpoint), logging.Error(err))
		return nil, err
	}

	s.metrics.Requests.WithLabelValues(result.Outcome.String()).Inc()
	s.logger.DebugContext(ctx, "authenticated request",
		logging.Method(method),
		logging.Path(endpoint),
		logging.Status(result.StatusCode),
		logging.Outcome(result.Outcome.String()),
	)
	return result, nil
}

func okResult(resp *client.Response) (*Result, error) {
	if len(resp.Body) > 0 && !json.Valid(resp.Body) {
		return nil, fmt.Errorf("decode response (status %d): invalid JSON", resp.StatusCode)
	}
	return &Result{
		Outcome:    OutcomeOK,
		StatusCode: resp.StatusCode,
		Body:       nonEmpty(resp.Body),
	}, nil
}

// validationResult treats a 400 with a JSON body as a structured answer. A
// 400 without one is an ordinary HTTP error.
func validationResult(resp *client.Response) (*Result, error) {
	if len(resp.Body) == 0 || !json.Valid(resp.Body) {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return &Result{
		Outcome:    OutcomeValidation,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Fields:     ParseFieldErrors(resp.Body),
	}, nil
}

// retriedResult returns the answer to the retried request verbatim; a second
// 401 is not refreshed again.
func retriedResult(resp *client.Response) (*Result, error) {
	switch {
	case resp.OK():
		return okResult(resp)
	case resp.StatusCode == http.StatusBadRequest:
		return validationResult(resp)
	}

	if len(resp.Body) > 0 && !json.Valid(resp.Body) {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return &Result{
		Outcome:    OutcomeRejected,
		StatusCode: resp.StatusCode,
		Body:       nonEmpty(resp.Body),
	}, nil
}

func nonEmpty(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// Get is Do with GET and no body.
func (s *Session) Get(ctx context.Context, endpoint string) (*Result, error) {
	return s.Do(ctx, http.MethodGet, endpoint, nil)
}

// Post is Do with POST.
func (s *Session) Post(ctx context.Context, endpoint string, body any) (*Result, error) {
	return s.Do(ctx, http.MethodPost, endpoint, body)
}
