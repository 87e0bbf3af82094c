package session

import "errors"

var (
	// ErrMissingKeys marks an encrypted call attempted without a stored
	// session. Usage error, not a transport failure.
	ErrMissingKeys = errors.New("missing encryption keys")
	// ErrHandshake marks any post-login handshake step failure. The
	// credential set has already been cleared when it is returned.
	ErrHandshake = errors.New("handshake failed")
	ErrLoginInProgress      = errors.New("login already in progress")
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
	ErrNotAuthenticated     = errors.New("session is not authenticated")
	ErrLoginThrottled       = errors.New("too many login attempts")
)
