package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire structure carried by every encrypted endpoint.
// data is the AES ciphertext of the JSON payload; key and iv are the
// symmetric key and IV wrapped under the recipient's RSA public key.
// All three fields are base64.
type Envelope struct {
	Data string `json:"data"`
	Key  string `json:"key"`
	IV   string `json:"iv"`
}

var ErrInvalidEnvelope = errors.New("invalid encrypted envelope")

func (e *Envelope) Validate() error {
	if e == nil || e.Data == "" || e.Key == "" || e.IV == "" {
		return ErrInvalidEnvelope
	}
	return nil
}

// ParseEnvelope decodes a response body into an Envelope.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}
