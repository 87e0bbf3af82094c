package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wolman/go-client/internal/platform/metrics"
	"wolman/go-client/pkg/models"
)

// State is the observable position of the session state machine.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "logged_out"
	}
}

// AuthSession composes controller, store and monitor into the session
// state consumed by callers. All state mutation happens under one mutex:
// a timer-triggered clear and a user-triggered logout can never interleave
// into a half-cleared credential set.
type AuthSession struct {
	mu              sync.Mutex
	state           State
	bearerExpiry    time.Time
	serverKeyExpiry time.Time
	loading         bool

	ctrl     *Controller
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	monitorStop context.CancelFunc
}

type SessionOption func(*AuthSession)

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *AuthSession) { s.now = now }
}

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *AuthSession) { s.logger = logger }
}

func NewAuthSession(ctrl *Controller, monitorInterval time.Duration, opts ...SessionOption) *AuthSession {
	s := &AuthSession{
		state:    StateLoggedOut,
		ctrl:     ctrl,
		interval: monitorInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login runs the full handshake. Only valid from LoggedOut: a second
// login while one is in flight is rejected, never interleaved.
func (s *AuthSession) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	switch s.state {
	case StateAuthenticating:
		s.mu.Unlock()
		return ErrLoginInProgress
	case StateAuthenticated:
		s.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	s.state = StateAuthenticating
	s.loading = true
	s.mu.Unlock()
	metrics.SessionTransitions.WithLabelValues(StateAuthenticating.String()).Inc()

	creds, err := s.ctrl.PerformHandshake(ctx, username, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		// Handshake cleanup already ran; the machine converges to a
		// known state either way.
		s.state = StateLoggedOut
		metrics.SessionTransitions.WithLabelValues(StateLoggedOut.String()).Inc()
		return err
	}
	s.becomeAuthenticatedLocked(creds)
	s.logger.Info("session authenticated",
		"username", username,
		"bearer_expiry", creds.BearerExpiry,
		"server_key_expiry", creds.ServerKeyExpiry)
	return nil
}

// Resume restores a persisted session after restart, if one survives.
func (s *AuthSession) Resume(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state != StateLoggedOut {
		authenticated := s.state == StateAuthenticated
		s.mu.Unlock()
		return authenticated, nil
	}
	s.state = StateAuthenticating
	s.loading = true
	s.mu.Unlock()

	creds, ok, err := s.ctrl.Resume(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil || !ok {
		s.state = StateLoggedOut
		return false, err
	}
	s.becomeAuthenticatedLocked(creds)
	s.logger.Info("session resumed", "bearer_expiry", creds.BearerExpiry)
	return true, nil
}

// Logout is idempotent: safe from any state, always ends LoggedOut with
// an empty credential set.
func (s *AuthSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutLocked()
}

func (s *AuthSession) logoutLocked() {
	s.stopMonitorLocked()
	s.ctrl.ClearCredentials()
	if s.state != StateLoggedOut {
		metrics.SessionTransitions.WithLabelValues(StateLoggedOut.String()).Inc()
	}
	s.state = StateLoggedOut
	s.bearerExpiry = time.Time{}
	s.serverKeyExpiry = time.Time{}
}

// RefreshServerKey re-fetches the server public key on demand.
func (s *AuthSession) RefreshServerKey(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	expiry, err := s.ctrl.RefreshServerKey(ctx)
	if err != nil {
		return err
	}
	s.serverKeyExpiry = expiry
	return nil
}

func (s *AuthSession) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := models.SessionSnapshot{
		IsAuthenticated: s.state == StateAuthenticated,
		IsLoading:       s.loading,
	}
	if !s.bearerExpiry.IsZero() {
		expiry := s.bearerExpiry
		snap.BearerTokenExpiry = &expiry
	}
	if !s.serverKeyExpiry.IsZero() {
		expiry := s.serverKeyExpiry
		snap.ServerKeyExpiry = &expiry
	}
	return snap
}

func (s *AuthSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AuthSession) becomeAuthenticatedLocked(creds Credentials) {
	s.state = StateAuthenticated
	s.bearerExpiry = creds.BearerExpiry
	s.serverKeyExpiry = creds.ServerKeyExpiry
	metrics.SessionTransitions.WithLabelValues(StateAuthenticated.String()).Inc()
	s.startMonitorLocked()
}

func (s *AuthSession) startMonitorLocked() {
	if s.monitorStop != nil || s.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.monitorStop = cancel
	mon := newExpiryMonitor(s, s.interval, s.now)
	go mon.Run(ctx)
}

// stopMonitorLocked cancels the monitor exactly when leaving
// Authenticated. A tick already in flight sees LoggedOut under the mutex
// and becomes a no-op; nothing keeps firing against a cleared session.
func (s *AuthSession) stopMonitorLocked() {
	if s.monitorStop != nil {
		s.monitorStop()
		s.monitorStop = nil
	}
}

// checkExpiry is the monitor's tick body. Bearer expiry forces a full
// logout: the token is the root of trust and its loss invalidates
// encrypted calls regardless of key validity. A stale server key alone
// is refreshed in place; a refresh failure stays Authenticated and is
// retried on the next tick.
func (s *AuthSession) checkExpiry(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return
	}
	if !s.bearerExpiry.After(now) {
		s.logger.Info("bearer token expired, forcing logout")
		metrics.ForcedLogouts.Inc()
		s.logoutLocked()
		return
	}
	if !s.serverKeyExpiry.After(now) {
		expiry, err := s.ctrl.RefreshServerKey(ctx)
		if err != nil {
			s.logger.Warn("server key refresh failed", "error", err)
			return
		}
		s.serverKeyExpiry = expiry
		s.logger.Info("server key refreshed", "server_key_expiry", expiry)
	}
}
