// Package signature signs and verifies HMAC-SHA256 payload signatures in the
// "sha256=<hex>" header form used by webhook providers.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix precedes the hex digest in signature headers.
const Prefix = "sha256="

// Signer holds the shared secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) digest(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign returns the header value for payload.
func (s *Signer) Sign(payload []byte) string {
	return Prefix + hex.EncodeToString(s.digest(payload))
}

// Verify checks header against payload in constant time. A missing prefix,
// malformed hex or an empty secret never verifies.
func (s *Signer) Verify(payload []byte, header string) bool {
	if len(s.secret) == 0 {
		return false
	}

	received, ok := strings.CutPrefix(header, Prefix)
	if !ok {
		return false
	}

	decoded, err := hex.DecodeString(received)
	if err != nil {
		return false
	}

	return hmac.Equal(s.digest(payload), decoded)
}
