package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wolman/go-client/internal/crypto"
	"wolman/go-client/pkg/models"
)

// fakeTransport plays the server side of the protocol in-memory: it
// issues tokens, hands out its real public key and answers enveloped
// calls by decrypting with its private key and encrypting responses to
// the registered client key.
type fakeTransport struct {
	t      *testing.T
	engine crypto.Engine

	mu              sync.Mutex
	serverPair      crypto.KeyPair
	clientPublicKey string
	issuedToken     string
	tokenTTL        time.Duration
	tokenWithoutExp bool
	serverKeyTTL    time.Duration

	loginErr    error
	fetchErr    error
	registerErr error

	loginCalls    int
	fetchCalls    int
	registerCalls int

	loginStarted chan struct{}
	loginRelease chan struct{}

	lastRequestPayload json.RawMessage
}

func newFakeTransport(t *testing.T) *fakeTransport {
	t.Helper()
	engine := crypto.NewHybridEngine()
	pair, err := engine.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate server pair: %v", err)
	}
	return &fakeTransport{
		t:            t,
		engine:       engine,
		serverPair:   pair,
		tokenTTL:     time.Hour,
		serverKeyTTL: 24 * time.Hour,
	}
}

func (f *fakeTransport) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	if f.loginStarted != nil {
		f.loginStarted <- struct{}{}
		<-f.loginRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return models.LoginResponse{}, f.loginErr
	}
	if username != "alice" || password != "secret" {
		return models.LoginResponse{}, fmt.Errorf("%w: bad credentials", errAuthForTest)
	}
	claims := jwt.MapClaims{"sub": username}
	if !f.tokenWithoutExp {
		claims["exp"] = time.Now().Add(f.tokenTTL).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-secret"))
	if err != nil {
		return models.LoginResponse{}, err
	}
	f.issuedToken = token
	return models.LoginResponse{AccessToken: token}, nil
}

func (f *fakeTransport) FetchServerKey(ctx context.Context, token string) (models.ServerKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return models.ServerKeyResponse{}, f.fetchErr
	}
	if token != f.issuedToken {
		return models.ServerKeyResponse{}, errAuthForTest
	}
	return models.ServerKeyResponse{
		PublicKey: f.serverPair.PublicKey,
		ExpiresAt: time.Now().Add(f.serverKeyTTL).UTC().Format(time.RFC3339),
	}, nil
}

func (f *fakeTransport) RegisterClientKey(ctx context.Context, token, publicKeyPEM string) (models.RegisterKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerErr != nil {
		return models.RegisterKeyResponse{}, f.registerErr
	}
	if token != f.issuedToken {
		return models.RegisterKeyResponse{}, errAuthForTest
	}
	f.clientPublicKey = publicKeyPEM
	return models.RegisterKeyResponse{ID: 1, IsActive: true, PublicKeyPem: publicKeyPEM}, nil
}

func (f *fakeTransport) CallEnveloped(ctx context.Context, token, endpoint, method string, envelope []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != f.issuedToken {
		return nil, errAuthForTest
	}
	if f.clientPublicKey == "" {
		return nil, fmt.Errorf("no client key registered")
	}
	f.lastRequestPayload = nil
	if len(envelope) > 0 {
		env, err := crypto.ParseEnvelope(envelope)
		if err != nil {
			return nil, err
		}
		payload, err := f.engine.DecryptFromSender(env, f.serverPair.PrivateKey)
		if err != nil {
			return nil, err
		}
		f.lastRequestPayload = payload
	}

	response, err := f.respond(endpoint, method)
	if err != nil {
		return nil, err
	}
	out, err := f.engine.EncryptForRecipient(response, f.clientPublicKey)
	if err != nil {
		return nil, err
	}
	return out.Marshal()
}

func (f *fakeTransport) respond(endpoint, method string) (any, error) {
	path := endpoint
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	switch path {
	case "/commands/scan-devices":
		if method != http.MethodGet {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return []models.Device{
			{Name: "gandalf", MAC: "00:11:22:33:44:55", IP: "10.0.0.2"},
			{Name: "nas", MAC: "66:77:88:99:aa:bb", IP: "10.0.0.3"},
		}, nil
	case "/commands/wake-on-lan":
		var req models.WakeRequest
		if err := json.Unmarshal(f.lastRequestPayload, &req); err != nil {
			return nil, err
		}
		return models.WakeResponse{
			Success:   true,
			Target:    &models.WakeTarget{MACAddress: req.MACAddress},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, nil
	case "/commands/ping":
		return models.PingResponse{Host: "gandalf.lan", Alive: true}, nil
	case "/commands/shell":
		var req models.ShellCommandRequest
		if err := json.Unmarshal(f.lastRequestPayload, &req); err != nil {
			return nil, err
		}
		return models.ShellCommandResponse{Success: true, Command: req.Command}, nil
	case "/keys/my-key":
		return models.RegisterKeyResponse{ID: 1, IsActive: true, PublicKeyPem: f.clientPublicKey}, nil
	default:
		return nil, fmt.Errorf("unexpected endpoint %s", endpoint)
	}
}

var errAuthForTest = fmt.Errorf("authentication rejected")
