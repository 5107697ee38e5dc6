package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Outcome tags the result of an authenticated request.
type Outcome int

const (
	// OutcomeOK is a 2xx answer; Body holds the payload.
	OutcomeOK Outcome = iota
	// OutcomeValidation is an HTTP 400 answer; Fields holds the parsed error body.
	OutcomeValidation
	// OutcomeSessionEnded means the access token expired and could not be
	// refreshed. The session has been cleared.
	OutcomeSessionEnded
	// OutcomeRejected is a non-2xx, non-400 answer to the retried request,
	// returned verbatim.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeValidation:
		return "validation"
	case OutcomeSessionEnded:
		return "session_ended"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       json.RawMessage
	Fields     FieldErrors
	// Refreshed is set when the access token was refreshed during the call.
	Refreshed bool
}

// Decode unmarshals the body into v. It fails when the session ended or the
// body is empty.
func (r *Result) Decode(v any) error {
	if r.Outcome == OutcomeSessionEnded {
		return ErrSessionEnded
	}
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body (status %d)", r.StatusCode)
	}
	return json.Unmarshal(r.Body, v)
}

// Err converts a non-OK result into an error: *ValidationError,
// ErrSessionEnded or *HTTPError.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeValidation:
		return &ValidationError{Fields: r.Fields}
	case OutcomeSessionEnded:
		return ErrSessionEnded
	default:
		return &HTTPError{StatusCode: r.StatusCode, Body: r.Body}
	}
}

// FieldErrors maps a field name (or "general"/"non_field_errors") to a
// human-readable message.
type FieldErrors map[string]string

const GeneralField = "general"

// ParseFieldErrors flattens a backend error body. List values are joined with
// a space; nested objects become "key: message". A body that is not a JSON
// object ends up under GeneralField.
func ParseFieldErrors(body []byte) FieldErrors {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = "request failed"
		}
		return FieldErrors{GeneralField: msg}
	}

	out := make(FieldErrors, len(raw))
	for k, v := range raw {
		out[k] = flattenMessage(v)
	}
	return out
}

func flattenMessage(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if m := flattenMessage(item); m != "" {
				parts = append(parts, m)
			}
		}
		return strings.Join(parts, " ")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+flattenMessage(obj[k]))
		}
		return strings.Join(parts, "; ")
	}

	return strings.TrimSpace(string(v))
}

// Keys returns the field names in sorted order.
func (f FieldErrors) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f FieldErrors) String() string {
	parts := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// ValidationError wraps field errors from an HTTP 400 answer.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Fields.String()
}
