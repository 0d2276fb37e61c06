package social

import (
	"errors"
	"fmt"
)

var (
	// ErrExpiredToken signals that no usable access token exists and a refresh
	// attempt did not produce one. Requires a fresh login.
	ErrExpiredToken = errors.New("social: token expired and could not be refreshed")
	// ErrWrongToken signals that the token resolves to a different account
	// than the configured one. The stored tokens are purged as a side effect.
	ErrWrongToken = errors.New("social: token belongs to a different account")
	// ErrValidation indicates caller input that fails the publish schema.
	ErrValidation = errors.New("social: invalid request")
	// ErrNonceMismatch indicates the callback state does not match a stored,
	// unexpired nonce.
	ErrNonceMismatch = errors.New("social: state does not match a known nonce")
	// ErrMissingPostID indicates the provider accepted the post but the id
	// header was absent. Should never happen.
	ErrMissingPostID = errors.New("social: provider returned no post id")
)

// ShareError reports a failed publish or upload stage with provider context.
type ShareError struct {
	Network Network
	Stage   string
	Status  int
	Body    string
	Err     error
}

func (e *ShareError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Network, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: status=%d body=%s", e.Network, e.Stage, e.Status, e.Body)
}

func (e *ShareError) Unwrap() error { return e.Err }

// NewShareError builds a ShareError from a provider response.
func NewShareError(network Network, stage string, status int, body string) *ShareError {
	return &ShareError{Network: network, Stage: stage, Status: status, Body: body}
}

// WrapShareError builds a ShareError around a transport-level failure.
func WrapShareError(network Network, stage string, err error) *ShareError {
	return &ShareError{Network: network, Stage: stage, Err: err}
}
