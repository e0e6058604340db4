package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
)

// SignaturePrefix precedes the hex digest in the signature header.
const SignaturePrefix = "sha256="

// Sign returns the signature header value for body under secret.
func Sign(body []byte, secret string) string {
	return SignaturePrefix + hex.EncodeToString(computeMAC(body, []byte(secret)))
}

func computeMAC(body, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return h.Sum(nil)
}

// Verifier checks HMAC-SHA256 signatures against a shared secret. The
// secret can be replaced while requests are in flight.
type Verifier struct {
	mu     sync.RWMutex
	secret []byte
}

// NewVerifier creates a verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// SetSecret replaces the shared secret.
func (v *Verifier) SetSecret(secret string) {
	v.mu.Lock()
	v.secret = []byte(secret)
	v.mu.Unlock()
}

// Verify checks signature against the exact body bytes. It returns
// ErrMissingSignature when signature is empty and ErrSignatureMismatch when
// it is malformed or does not match.
func (v *Verifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	actualHex, ok := strings.CutPrefix(signature, SignaturePrefix)
	if !ok {
		return ErrSignatureMismatch
	}

	actualMAC, err := hex.DecodeString(actualHex)
	if err != nil {
		return ErrSignatureMismatch
	}

	v.mu.RLock()
	expectedMAC := computeMAC(body, v.secret)
	v.mu.RUnlock()

	// Constant-time comparison
	if !hmac.Equal(expectedMAC, actualMAC) {
		return ErrSignatureMismatch
	}
	return nil
}

// ExtractSignature reads the signature header, matching the name
// case-insensitively even for header maps that were not canonicalized.
func ExtractSignature(header http.Header, name string) string {
	if sig := header.Get(name); sig != "" {
		return sig
	}

	for k, v := range header {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}

	return ""
}
