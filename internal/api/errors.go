package api

import "errors"

var (
	// ErrNetwork marks connectivity failures: host unreachable, DNS,
	// timeouts. The session is left untouched.
	ErrNetwork = errors.New("server unreachable")
	// ErrAuthentication marks rejected credentials or an expired bearer
	// token on an authenticated call.
	ErrAuthentication = errors.New("authentication failed")
)
