package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"wolman/go-client/internal/crypto"
	"wolman/go-client/internal/platform/metrics"
	"wolman/go-client/internal/platform/ratelimiter"
	"wolman/go-client/internal/securestore"
	"wolman/go-client/pkg/models"
)

// Transport is the network collaborator for the session layer. The real
// implementation is api.Client.
type Transport interface {
	Login(ctx context.Context, username, password string) (models.LoginResponse, error)
	FetchServerKey(ctx context.Context, token string) (models.ServerKeyResponse, error)
	RegisterClientKey(ctx context.Context, token, publicKeyPEM string) (models.RegisterKeyResponse, error)
	CallEnveloped(ctx context.Context, token, endpoint, method string, envelope []byte) ([]byte, error)
}

// Credentials summarizes the two expiring secrets established by a
// handshake.
type Credentials struct {
	BearerExpiry    time.Time
	ServerKeyExpiry time.Time
}

// Controller drives the handshake protocol and the enveloped request
// path. It is state-free: all session material lives in the store.
type Controller struct {
	store     *securestore.Store
	engine    crypto.Engine
	transport Transport
	limiter   *ratelimiter.MapLimiter
	logger    *slog.Logger
	now       func() time.Time
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

func WithLoginLimiter(l *ratelimiter.MapLimiter) ControllerOption {
	return func(c *Controller) { c.limiter = l }
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

func NewController(store *securestore.Store, engine crypto.Engine, transport Transport, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:     store,
		engine:    engine,
		transport: transport,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PerformHandshake establishes a fresh client identity:
//
//  1. exchange credentials for a bearer token
//  2. fetch and store the server's public key
//  3. generate and store a client key pair
//  4. register the public half with the server
//
// A failure in step 1 leaves the store untouched. A failure in steps 2-4
// clears the whole credential set before returning: a bearer token must
// never persist without a matching registered key, and vice versa.
func (c *Controller) PerformHandshake(ctx context.Context, username, password string) (Credentials, error) {
	if !c.limiter.Allow(username, c.now()) {
		return Credentials{}, ErrLoginThrottled
	}

	login, err := c.transport.Login(ctx, username, password)
	if err != nil {
		return Credentials{}, err
	}
	// An unreadable expiry is a step-1-class failure: nothing has been
	// stored yet, so it surfaces as-is instead of as a handshake error.
	bearerExpiry, err := ParseBearerExpiry(login.AccessToken)
	if err != nil {
		return Credentials{}, err
	}

	creds, err := c.completeHandshake(ctx, login.AccessToken, bearerExpiry)
	if err != nil {
		c.store.ClearAll()
		return Credentials{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return creds, nil
}

func (c *Controller) completeHandshake(ctx context.Context, token string, bearerExpiry time.Time) (Credentials, error) {
	if err := c.store.Put(securestore.SlotBearerToken, token); err != nil {
		return Credentials{}, err
	}

	serverKey, err := c.transport.FetchServerKey(ctx, token)
	if err != nil {
		return Credentials{}, err
	}
	serverKeyExpiry, err := parseExpiresAt(serverKey.ExpiresAt)
	if err != nil {
		return Credentials{}, err
	}
	if err := c.store.Put(securestore.SlotServerPublicKey, serverKey.PublicKey); err != nil {
		return Credentials{}, err
	}

	pair, err := c.engine.GenerateKeyPair()
	if err != nil {
		return Credentials{}, err
	}
	if err := c.store.Put(securestore.SlotPrivateKey, pair.PrivateKey); err != nil {
		return Credentials{}, err
	}

	if _, err := c.transport.RegisterClientKey(ctx, token, pair.PublicKey); err != nil {
		return Credentials{}, err
	}

	return Credentials{BearerExpiry: bearerExpiry, ServerKeyExpiry: serverKeyExpiry}, nil
}

// Resume revives a persisted session after a restart: the public key is
// re-derived from the stored private half and re-registered, and the
// server key record is refreshed. Returns false when no complete
// credential set survives.
func (c *Controller) Resume(ctx context.Context) (Credentials, bool, error) {
	if !c.store.HasCompleteSession() {
		return Credentials{}, false, nil
	}
	token, err := c.store.Get(securestore.SlotBearerToken)
	if err != nil || token == "" {
		return Credentials{}, false, err
	}
	bearerExpiry, err := ParseBearerExpiry(token)
	if err != nil {
		// Undecodable token: the set is useless as a whole.
		c.store.ClearAll()
		return Credentials{}, false, nil
	}
	privateKey, err := c.store.Get(securestore.SlotPrivateKey)
	if err != nil || privateKey == "" {
		return Credentials{}, false, err
	}
	publicKey, err := crypto.PublicKeyFromPrivate(privateKey)
	if err != nil {
		c.store.ClearAll()
		return Credentials{}, false, nil
	}

	if _, err := c.transport.RegisterClientKey(ctx, token, publicKey); err != nil {
		return Credentials{}, false, err
	}
	serverKeyExpiry, err := c.RefreshServerKey(ctx)
	if err != nil {
		return Credentials{}, false, err
	}
	return Credentials{BearerExpiry: bearerExpiry, ServerKeyExpiry: serverKeyExpiry}, true, nil
}

// RefreshServerKey re-runs handshake step 2 only. The server key is
// refreshable without re-authenticating; the bearer token stays the root
// of trust.
func (c *Controller) RefreshServerKey(ctx context.Context) (time.Time, error) {
	token, err := c.store.Get(securestore.SlotBearerToken)
	if err != nil {
		return time.Time{}, err
	}
	if token == "" {
		return time.Time{}, ErrMissingKeys
	}
	if err := c.store.Clear(securestore.SlotServerPublicKey); err != nil {
		return time.Time{}, err
	}
	serverKey, err := c.transport.FetchServerKey(ctx, token)
	if err != nil {
		metrics.ServerKeyRefreshes.WithLabelValues("error").Inc()
		return time.Time{}, err
	}
	expiry, err := parseExpiresAt(serverKey.ExpiresAt)
	if err != nil {
		metrics.ServerKeyRefreshes.WithLabelValues("error").Inc()
		return time.Time{}, err
	}
	if err := c.store.Put(securestore.SlotServerPublicKey, serverKey.PublicKey); err != nil {
		return time.Time{}, err
	}
	metrics.ServerKeyRefreshes.WithLabelValues("ok").Inc()
	return expiry, nil
}

// CallEncrypted routes one logical request through the envelope protocol.
// It knows nothing about which operation it carries.
func (c *Controller) CallEncrypted(ctx context.Context, endpoint string, payload any, method string) (json.RawMessage, error) {
	privateKey, err := c.store.Get(securestore.SlotPrivateKey)
	if err != nil {
		return nil, err
	}
	token, err := c.store.Get(securestore.SlotBearerToken)
	if err != nil {
		return nil, err
	}
	if privateKey == "" || token == "" {
		return nil, ErrMissingKeys
	}

	var body []byte
	if payload != nil {
		serverKey, err := c.store.Get(securestore.SlotServerPublicKey)
		if err != nil {
			return nil, err
		}
		if serverKey == "" {
			return nil, ErrMissingKeys
		}
		env, err := c.engine.EncryptForRecipient(payload, serverKey)
		if err != nil {
			metrics.EncryptedCalls.WithLabelValues("encrypt_error").Inc()
			return nil, err
		}
		if body, err = env.Marshal(); err != nil {
			return nil, err
		}
	}

	respBody, err := c.transport.CallEnveloped(ctx, token, endpoint, method, body)
	if err != nil {
		metrics.EncryptedCalls.WithLabelValues("transport_error").Inc()
		return nil, err
	}
	env, err := crypto.ParseEnvelope(respBody)
	if err != nil {
		metrics.EncryptedCalls.WithLabelValues("decrypt_error").Inc()
		return nil, err
	}
	result, err := c.engine.DecryptFromSender(env, privateKey)
	if err != nil {
		metrics.EncryptedCalls.WithLabelValues("decrypt_error").Inc()
		// A stale or foreign key pair produces exactly this signature.
		// The store's own read path decides on clearing, not this one.
		c.logger.Warn("encrypted response could not be decrypted, key material may be stale",
			"endpoint", endpoint, "error", err)
		return nil, err
	}
	metrics.EncryptedCalls.WithLabelValues("ok").Inc()
	return result, nil
}

// ClearCredentials wipes the session credential set. Gated named keys
// are untouched.
func (c *Controller) ClearCredentials() {
	c.store.ClearAll()
}

// HasStoredSession reports whether a complete credential set is persisted.
func (c *Controller) HasStoredSession() bool {
	return c.store.HasCompleteSession()
}

func parseExpiresAt(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiresAt %q: %w", value, err)
	}
	return t, nil
}

// callJSON wraps CallEncrypted and decodes the decrypted payload.
func callJSON[T any](ctx context.Context, c *Controller, endpoint string, payload any, method string) (T, error) {
	var out T
	raw, err := c.CallEncrypted(ctx, endpoint, payload, method)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return out, nil
}

// ScanDevices asks the server for the devices visible on its network.
func (c *Controller) ScanDevices(ctx context.Context) ([]models.Device, error) {
	return callJSON[[]models.Device](ctx, c, "/commands/scan-devices", nil, http.MethodGet)
}

// Wake sends a wake-on-LAN signal to a MAC address.
func (c *Controller) Wake(ctx context.Context, mac string) (models.WakeResponse, error) {
	return callJSON[models.WakeResponse](ctx, c, "/commands/wake-on-lan", models.WakeRequest{MACAddress: mac}, http.MethodPost)
}

func (c *Controller) Ping(ctx context.Context, hostname string) (models.PingResponse, error) {
	endpoint := "/commands/ping?hostname=" + url.QueryEscape(hostname)
	return callJSON[models.PingResponse](ctx, c, endpoint, nil, http.MethodGet)
}

func (c *Controller) DeviceUp(ctx context.Context, hostname string) (models.DeviceStatus, error) {
	endpoint := "/commands/up?hostname=" + url.QueryEscape(hostname)
	return callJSON[models.DeviceStatus](ctx, c, endpoint, nil, http.MethodGet)
}

func (c *Controller) CheckHTTPS(ctx context.Context, hostname string) (models.UpResult, error) {
	endpoint := "/commands/checkHttpsAvailability?hostname=" + url.QueryEscape(hostname)
	return callJSON[models.UpResult](ctx, c, endpoint, nil, http.MethodGet)
}

func (c *Controller) ShellCommand(ctx context.Context, req models.ShellCommandRequest) (models.ShellCommandResponse, error) {
	return callJSON[models.ShellCommandResponse](ctx, c, "/commands/shell", req, http.MethodPost)
}

// MyKey returns the server's record of the registered client key.
func (c *Controller) MyKey(ctx context.Context) (models.RegisterKeyResponse, error) {
	return callJSON[models.RegisterKeyResponse](ctx, c, "/keys/my-key", nil, http.MethodGet)
}
