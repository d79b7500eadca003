package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// Error implements repositories.RepositoryError for BigQuery backed repositories.
type Error struct {
	op          string
	err         error
	status      int
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the table or row does not exist.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the resource already exists.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the warehouse could not serve the request.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// StatusCode returns the HTTP status reported by the BigQuery API, if any.
func (e *Error) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.status
}

// WrapError maps BigQuery API and row insertion failures onto repository semantics.
// Context cancellations are passed through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if op != "" && repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}

	wrapped := &Error{op: op, err: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		wrapped.status = apiErr.Code
		switch {
		case apiErr.Code == http.StatusNotFound:
			wrapped.notFound = true
		case apiErr.Code == http.StatusConflict:
			wrapped.conflict = true
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusUnauthorized,
			apiErr.Code == http.StatusForbidden, apiErr.Code >= http.StatusInternalServerError:
			wrapped.unavailable = true
		}
		return wrapped
	}

	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		wrapped.status = http.StatusBadRequest
		return wrapped
	}

	// Transport failures without an API status are treated as outages.
	wrapped.unavailable = true
	return wrapped
}

// NotFound builds a not-found repository error for op.
func NotFound(op, what string) error {
	return &Error{op: op, err: fmt.Errorf("%s not found", what), status: http.StatusNotFound, notFound: true}
}
