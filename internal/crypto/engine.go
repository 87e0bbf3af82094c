package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrKeyGeneration     = errors.New("key pair generation failed")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrUnwrap            = errors.New("key unwrap failed")
	ErrDecrypt           = errors.New("payload decryption failed")
	ErrSecretTooLarge    = errors.New("secret exceeds wrap capacity")
)

const (
	rsaKeyBits  = 2048
	aesKeySize  = 32
	aesBlockIVs = aes.BlockSize
)

// KeyPair holds a freshly generated RSA key pair as PEM text.
// The private half must only ever reach the secure store.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// Engine provides the hybrid-encryption primitives for the enveloped
// protocol. Implementations are stateless; each encrypt call draws a
// fresh symmetric key and IV.
type Engine interface {
	GenerateKeyPair() (KeyPair, error)
	Wrap(secret []byte, recipientPublicKey string) (string, error)
	Unwrap(blob string, ownerPrivateKey string) ([]byte, error)
	EncryptForRecipient(payload any, recipientPublicKey string) (*Envelope, error)
	DecryptFromSender(env *Envelope, ownerPrivateKey string) (json.RawMessage, error)
}

// HybridEngine wraps AES-256-CBC payloads under RSA-OAEP-SHA256 keys.
type HybridEngine struct{}

func NewHybridEngine() *HybridEngine {
	return &HybridEngine{}
}

func (e *HybridEngine) GenerateKeyPair() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return KeyPair{
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// Wrap RSA-encrypts a small secret for the recipient. The wire contract
// feeds the base64 text of the secret through OAEP, not the raw bytes;
// Unwrap reverses both layers. Changing either side alone silently
// corrupts round-trips.
func (e *HybridEngine) Wrap(secret []byte, recipientPublicKey string) (string, error) {
	pub, err := parsePublicKey(recipientPublicKey)
	if err != nil {
		return "", err
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(secret))
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, encoded, nil)
	if err != nil {
		if errors.Is(err, rsa.ErrMessageTooLong) {
			return "", ErrSecretTooLarge
		}
		return "", fmt.Errorf("wrap: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (e *HybridEngine) Unwrap(blob string, ownerPrivateKey string) ([]byte, error) {
	priv, err := parsePrivateKey(ownerPrivateKey)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrUnwrap)
	}
	encoded, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		// OAEP padding failure: ciphertext was wrapped for a different key.
		return nil, ErrUnwrap
	}
	secret, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: bad inner encoding", ErrUnwrap)
	}
	return secret, nil
}

func (e *HybridEngine) EncryptForRecipient(payload any, recipientPublicKey string) (*Envelope, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	iv := make([]byte, aesBlockIVs)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	wrappedKey, err := e.Wrap(key, recipientPublicKey)
	if err != nil {
		return nil, err
	}
	wrappedIV, err := e.Wrap(iv, recipientPublicKey)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Data: base64.StdEncoding.EncodeToString(ciphertext),
		Key:  wrappedKey,
		IV:   wrappedIV,
	}, nil
}

func (e *HybridEngine) DecryptFromSender(env *Envelope, ownerPrivateKey string) (json.RawMessage, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	key, err := e.Unwrap(env.Key, ownerPrivateKey)
	if err != nil {
		return nil, err
	}
	iv, err := e.Unwrap(env.IV, ownerPrivateKey)
	if err != nil {
		return nil, err
	}
	if len(key) != aesKeySize || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: unexpected key material size", ErrDecrypt)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 data", ErrDecrypt)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad ciphertext length", ErrDecrypt)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	plaintext, err = unpadPKCS7(plaintext, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 || !json.Valid(plaintext) {
		// Garbage output means the envelope was decrypted with foreign
		// key material. Never returned as data.
		return nil, fmt.Errorf("%w: output is not valid JSON", ErrDecrypt)
	}
	return json.RawMessage(plaintext), nil
}

func parsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

func parsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, ErrInvalidPrivateKey
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidPrivateKey
	}
	return priv, nil
}

// PublicKeyFromPrivate re-derives the PEM public half from a stored
// private key, used when resuming a persisted session.
func PublicKeyFromPrivate(privatePEM string) (string, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})), nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return data[:len(data)-n], nil
}
