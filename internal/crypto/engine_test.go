package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

var (
	testKeysOnce sync.Once
	testKeyA     KeyPair
	testKeyB     KeyPair
)

func testKeys(t *testing.T) (KeyPair, KeyPair) {
	t.Helper()
	testKeysOnce.Do(func() {
		e := NewHybridEngine()
		var err error
		if testKeyA, err = e.GenerateKeyPair(); err != nil {
			t.Fatalf("generate key pair A: %v", err)
		}
		if testKeyB, err = e.GenerateKeyPair(); err != nil {
			t.Fatalf("generate key pair B: %v", err)
		}
	})
	if testKeyA.PrivateKey == "" || testKeyB.PrivateKey == "" {
		t.Fatal("test key pairs unavailable")
	}
	return testKeyA, testKeyB
}

func TestGenerateKeyPairProducesPEM(t *testing.T) {
	pair, _ := testKeys(t)
	if !bytes.Contains([]byte(pair.PublicKey), []byte("BEGIN PUBLIC KEY")) {
		t.Fatalf("public key is not PEM: %q", pair.PublicKey[:30])
	}
	if !bytes.Contains([]byte(pair.PrivateKey), []byte("BEGIN PRIVATE KEY")) {
		t.Fatal("private key is not PKCS#8 PEM")
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	pair, _ := testKeys(t)
	e := NewHybridEngine()
	secret := []byte("0123456789abcdef0123456789abcdef")
	blob, err := e.Wrap(secret, pair.PublicKey)
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	got, err := e.Unwrap(blob, pair.PrivateKey)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("round trip mismatch: got %x want %x", got, secret)
	}
}

func TestWrapRejectsOversizedSecret(t *testing.T) {
	pair, _ := testKeys(t)
	e := NewHybridEngine()
	if _, err := e.Wrap(make([]byte, 4096), pair.PublicKey); !errors.Is(err, ErrSecretTooLarge) {
		t.Fatalf("expected ErrSecretTooLarge, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pair, _ := testKeys(t)
	e := NewHybridEngine()
	payload := map[string]any{
		"host":    "gandalf.lan",
		"port":    float64(22),
		"command": "uptime",
	}
	env, err := e.EncryptForRecipient(payload, pair.PublicKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	raw, err := e.DecryptFromSender(env, pair.PrivateKey)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decrypted payload is not JSON: %v", err)
	}
	if got["host"] != payload["host"] || got["port"] != payload["port"] || got["command"] != payload["command"] {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestEncryptFreshKeyMaterialPerCall(t *testing.T) {
	pair, _ := testKeys(t)
	e := NewHybridEngine()
	first, err := e.EncryptForRecipient("ping", pair.PublicKey)
	if err != nil {
		t.Fatalf("first encrypt failed: %v", err)
	}
	second, err := e.EncryptForRecipient("ping", pair.PublicKey)
	if err != nil {
		t.Fatalf("second encrypt failed: %v", err)
	}
	if first.Key == second.Key {
		t.Fatal("symmetric key reused across calls")
	}
	if first.IV == second.IV {
		t.Fatal("IV reused across calls")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	pairA, pairB := testKeys(t)
	e := NewHybridEngine()
	env, err := e.EncryptForRecipient([]string{"a", "b"}, pairA.PublicKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	_, err = e.DecryptFromSender(env, pairB.PrivateKey)
	if !errors.Is(err, ErrUnwrap) && !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected unwrap/decrypt failure, got %v", err)
	}
}

func TestDecryptTamperedDataFails(t *testing.T) {
	pair, _ := testKeys(t)
	e := NewHybridEngine()
	env, err := e.EncryptForRecipient(map[string]string{"k": "v"}, pair.PublicKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	env.Data = "AAAA" + env.Data[4:]
	if _, err := e.DecryptFromSender(env, pair.PrivateKey); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecryptRejectsIncompleteEnvelope(t *testing.T) {
	pair, _ := testKeys(t)
	e := NewHybridEngine()
	_, err := e.DecryptFromSender(&Envelope{Data: "x"}, pair.PrivateKey)
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"data":"ZA==","key":"aw==","iv":"aXY="}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if env.Data != "ZA==" || env.Key != "aw==" || env.IV != "aXY=" {
		t.Fatalf("unexpected envelope: %#v", env)
	}
	if _, err := ParseEnvelope([]byte(`{"data":""}`)); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
	if _, err := ParseEnvelope([]byte(`not json`)); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope for malformed body, got %v", err)
	}
}

func TestPublicKeyFromPrivate(t *testing.T) {
	pair, _ := testKeys(t)
	pub, err := PublicKeyFromPrivate(pair.PrivateKey)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	if pub != pair.PublicKey {
		t.Fatal("derived public key does not match generated public key")
	}
}
