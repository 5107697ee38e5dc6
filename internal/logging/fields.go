package logging

import "log/slog"

// Common field names for consistent logging across the client.
const (
	FieldUserID    = "user_id"
	FieldEmail     = "email"
	FieldProfile   = "profile"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldRequestID = "request_id"
	FieldOutcome   = "outcome"
)

// UserID returns a slog attribute for the user ID.
func UserID(id int64) slog.Attr {
	return slog.Int64(FieldUserID, id)
}

// Email returns a slog attribute for an account email.
func Email(email string) slog.Attr {
	return slog.String(FieldEmail, email)
}

// Profile returns a slog attribute for the CLI profile name.
func Profile(name string) slog.Attr {
	return slog.String(FieldProfile, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// RequestID returns a slog attribute for a request ID.
func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

// Outcome returns a slog attribute for a request outcome.
func Outcome(outcome string) slog.Attr {
	return slog.String(FieldOutcome, outcome)
}
