// Package signature provides HMAC-SHA256 signing for tracking tokens.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signature version prefix. Bump when the signing scheme changes so old
// tokens can be rejected cleanly.
const signatureVersion = "v1"

// Signer creates HMAC-SHA256 signatures over token payloads.
type Signer struct {
	key []byte
}

// NewSigner creates a new signer with the given secret key.
func NewSigner(secret string) *Signer {
	return &Signer{
		key: []byte(secret),
	}
}

// Sign creates a signature for the given payload.
// Format: v1=<hmac-sha256(payload, secret)>
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s=%s", signatureVersion, sig)
}

// Verify verifies a signature against the given payload in constant time.
func (s *Signer) Verify(sig string, payload []byte) bool {
	expected := s.Sign(payload)
	return hmac.Equal([]byte(sig), []byte(expected))
}
