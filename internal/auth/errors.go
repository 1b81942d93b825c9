package auth

import (
	"errors"
	"fmt"
)

var (
	errEmptyToken = errors.New("refusing to persist an empty token")
	errNoExpiry   = errors.New("refusing to persist a token without an expiry")
)

// CredentialMismatchError means the supplied app key does not belong to the
// requested trading mode. Fatal: authenticating with it could issue real
// trades against a paper account or vice versa.
type CredentialMismatchError struct {
	Mode   string
	Reason string
}

func (e *CredentialMismatchError) Error() string {
	return fmt.Sprintf("credential mismatch for %s mode: %s", e.Mode, e.Reason)
}

// TokenRequestError is a non-retryable (or retry-exhausted) failure of the
// token endpoint.
type TokenRequestError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token request failed: %v", e.Err)
	}
	return fmt.Sprintf("token request rejected with status %d: %s", e.StatusCode, e.Body)
}

func (e *TokenRequestError) Unwrap() error { return e.Err }

// TokenFileError is a failure to persist the token file, including the
// precondition check that rejects empty tokens before touching disk.
type TokenFileError struct {
	Op   string
	Path string
	Err  error
}

func (e *TokenFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token file %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("token file %s %s", e.Op, e.Path)
}

func (e *TokenFileError) Unwrap() error { return e.Err }
