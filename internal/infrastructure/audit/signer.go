package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/txauth/internal/domain/models"
)

// Signer computes an HMAC-SHA256 over the JSON form of an event so that
// downstream consumers can detect tampering.
type Signer struct {
	key []byte
}

// NewSigner returns nil for an empty key; a nil Signer signs nothing.
func NewSigner(key string) *Signer {
	if key == "" {
		return nil
	}
	return &Signer{key: []byte(key)}
}

// Encode serializes event and returns the payload with its base64 signature.
// The signature is empty when s is nil.
func (s *Signer) Encode(event *models.AuditEvent) (payload []byte, signature string, err error) {
	payload, err = json.Marshal(event)
	if err != nil {
		return nil, "", err
	}
	if s == nil {
		return payload, "", nil
	}
	return payload, s.sign(payload), nil
}

// Verify reports whether signature matches payload.
func (s *Signer) Verify(payload []byte, signature string) bool {
	if s == nil {
		return signature == ""
	}
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}

func (s *Signer) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
