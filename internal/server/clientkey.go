package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
)

// ClientKeyResolver derives the rate limit identity of a request. A
// configured key header (such as an API key) wins when present; otherwise
// the client IP is used. Forwarding headers are only honored when the
// direct peer matches one of the trusted proxy patterns.
type ClientKeyResolver struct {
	keyHeader string
	trusted   []glob.Glob
}

// NewClientKeyResolver compiles the trusted proxy patterns.
func NewClientKeyResolver(keyHeader string, trustedProxies []string) (*ClientKeyResolver, error) {
	r := &ClientKeyResolver{keyHeader: keyHeader}
	for _, pattern := range trustedProxies {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling trusted proxy pattern %q: %w", pattern, err)
		}
		r.trusted = append(r.trusted, g)
	}
	return r, nil
}

// Resolve returns the client key for r.
func (c *ClientKeyResolver) Resolve(r *http.Request) string {
	if c.keyHeader != "" {
		if key := strings.TrimSpace(r.Header.Get(c.keyHeader)); key != "" {
			return "key:" + key
		}
	}
	return c.clientIP(r)
}

func (c *ClientKeyResolver) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !c.isTrusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// Walk right to left past our own proxies to the first untrusted hop.
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !c.isTrusted(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return peer
}

func (c *ClientKeyResolver) isTrusted(addr string) bool {
	for _, g := range c.trusted {
		if g.Match(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
