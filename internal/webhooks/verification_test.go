package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
)

const testSecret = "test-webhook-secret-12345"

func TestSign(t *testing.T) {
	body := []byte(`{"data":{"uid":"u1"}}`)

	h := hmac.New(sha256.New, []byte(testSecret))
	h.Write(body)
	expected := "sha256=" + hex.EncodeToString(h.Sum(nil))

	if got := Sign(body, testSecret); got != expected {
		t.Errorf("Sign() = %s, want %s", got, expected)
	}
}

func TestVerifier_Verify(t *testing.T) {
	body := []byte(`{"data":{"uid":"u1","email":"a@b.com"}}`)
	valid := Sign(body, testSecret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		wantErr   error
	}{
		{
			name:      "valid signature",
			body:      body,
			signature: valid,
		},
		{
			name:      "missing signature",
			body:      body,
			signature: "",
			wantErr:   ErrMissingSignature,
		},
		{
			name:      "wrong secret",
			body:      body,
			signature: Sign(body, "some-other-secret"),
			wantErr:   ErrSignatureMismatch,
		},
		{
			name:      "not hex",
			body:      body,
			signature: "sha256=invalid-signature",
			wantErr:   ErrSignatureMismatch,
		},
		{
			name:      "missing prefix",
			body:      body,
			signature: strings.TrimPrefix(valid, "sha256="),
			wantErr:   ErrSignatureMismatch,
		},
		{
			name:      "reserialized body",
			body:      []byte(`{"data": {"uid": "u1", "email": "a@b.com"}}`),
			signature: valid,
			wantErr:   ErrSignatureMismatch,
		},
		{
			name:      "empty body",
			body:      []byte{},
			signature: Sign(nil, testSecret),
		},
	}

	v := NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.body, tt.signature)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifier_RoundTripAcrossSecrets(t *testing.T) {
	bodies := [][]byte{
		nil,
		[]byte("x"),
		[]byte(`{"data":{"uid":"test-user-123"}}`),
		[]byte(strings.Repeat("a", 4096)),
	}
	secrets := []string{"a", testSecret, strings.Repeat("s", 200)}

	for _, body := range bodies {
		for _, secret := range secrets {
			v := NewVerifier(secret)
			if err := v.Verify(body, Sign(body, secret)); err != nil {
				t.Errorf("Verify(sign) failed for secret len %d body len %d: %v", len(secret), len(body), err)
			}
			if err := v.Verify(body, Sign(body, secret+"x")); !errors.Is(err, ErrSignatureMismatch) {
				t.Errorf("expected mismatch for different secret, got %v", err)
			}
		}
	}
}

func TestVerifier_SetSecret(t *testing.T) {
	body := []byte(`{"data":{"uid":"u1"}}`)
	v := NewVerifier("old-secret-value-1")

	if err := v.Verify(body, Sign(body, "old-secret-value-1")); err != nil {
		t.Fatalf("expected old secret to verify: %v", err)
	}

	v.SetSecret("new-secret-value-2")

	if err := v.Verify(body, Sign(body, "old-secret-value-1")); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected old secret to be rejected, got %v", err)
	}
	if err := v.Verify(body, Sign(body, "new-secret-value-2")); err != nil {
		t.Errorf("expected new secret to verify: %v", err)
	}
}

func TestVerifier_ConcurrentRotation(t *testing.T) {
	body := []byte(`{"data":{"uid":"u1"}}`)
	v := NewVerifier(testSecret)
	sig := Sign(body, testSecret)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = v.Verify(body, sig)
		}()
		go func() {
			defer wg.Done()
			v.SetSecret(testSecret)
		}()
	}
	wg.Wait()

	if err := v.Verify(body, sig); err != nil {
		t.Errorf("expected signature to verify after rotation: %v", err)
	}
}

func TestExtractSignature(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{
			name:   "canonical",
			header: http.Header{"X-Firebase-Signature": {"sha256=abc"}},
			want:   "sha256=abc",
		},
		{
			name:   "lowercase key",
			header: http.Header{"x-firebase-signature": {"sha256=def"}},
			want:   "sha256=def",
		},
		{
			name:   "upper case key",
			header: http.Header{"X-FIREBASE-SIGNATURE": {"sha256=ghi"}},
			want:   "sha256=ghi",
		},
		{
			name:   "absent",
			header: http.Header{"Content-Type": {"application/json"}},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSignature(tt.header, "X-Firebase-Signature"); got != tt.want {
				t.Errorf("ExtractSignature() = %q, want %q", got, tt.want)
			}
		})
	}
}
