package server

import (
	"net/http/httptest"
	"testing"
)

func TestClientKeyResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		keyHeader  string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "peer address without proxies",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from untrusted peer is ignored",
			remoteAddr: "203.0.113.7:51234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from trusted proxy",
			trusted:    []string{"10.0.*"},
			remoteAddr: "10.0.0.5:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "skips trusted hops in forwarded chain",
			trusted:    []string{"10.0.*"},
			remoteAddr: "10.0.0.5:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1, 192.0.2.9, 10.0.0.4"},
			want:       "192.0.2.9",
		},
		{
			name:       "real ip from trusted proxy",
			trusted:    []string{"127.0.0.1"},
			remoteAddr: "127.0.0.1:9000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			want:       "198.51.100.2",
		},
		{
			name:       "key header wins",
			keyHeader:  "X-Api-Key",
			remoteAddr: "203.0.113.7:51234",
			headers:    map[string]string{"X-Api-Key": "tenant-a"},
			want:       "key:tenant-a",
		},
		{
			name:       "missing key header falls back to ip",
			keyHeader:  "X-Api-Key",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, err := NewClientKeyResolver(tt.keyHeader, tt.trusted)
			if err != nil {
				t.Fatalf("NewClientKeyResolver() error = %v", err)
			}

			req := httptest.NewRequest("POST", "/webhooks/firebase/user-created", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := resolver.Resolve(req); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientKeyResolver_InvalidPattern(t *testing.T) {
	if _, err := NewClientKeyResolver("", []string{"[unterminated"}); err == nil {
		t.Error("expected error for malformed pattern")
	}
}
