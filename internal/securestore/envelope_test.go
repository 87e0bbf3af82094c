package securestore

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	data, err := sealValue("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := openValue("pass", data)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestOpenWrongSecretFails(t *testing.T) {
	data, err := sealValue("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := openValue("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestOpenTamperedFailsDeterministically(t *testing.T) {
	data, err := sealValue("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	data[len(data)-2] ^= 0xFF
	_, err = openValue("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected corruption error, got %v", err)
	}
	if !isCorruption(err) {
		t.Fatalf("expected error to classify as corruption: %v", err)
	}
}

func TestOpenRejectsMalformedFieldSizes(t *testing.T) {
	good, err := sealValue("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(good[len(filePrefix):], &env); err != nil {
		t.Fatalf("decode sealed envelope: %v", err)
	}

	cases := map[string]func(e *envelope){
		"short nonce":      func(e *envelope) { e.Nonce = e.Nonce[:3] },
		"empty nonce":      func(e *envelope) { e.Nonce = nil },
		"oversized nonce":  func(e *envelope) { e.Nonce = append(e.Nonce, 0) },
		"short salt":       func(e *envelope) { e.Salt = e.Salt[:4] },
		"empty ciphertext": func(e *envelope) { e.Ciphertext = nil },
	}
	for name, mutate := range cases {
		broken := env
		mutate(&broken)
		raw, err := json.Marshal(broken)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		_, err = openValue("pass", append([]byte(filePrefix), raw...))
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
		if !isCorruption(err) {
			t.Fatalf("%s: expected corruption classification", name)
		}
	}
}

func TestOpenRejectsForeignPrefix(t *testing.T) {
	if _, err := openValue("pass", []byte("not an envelope")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
