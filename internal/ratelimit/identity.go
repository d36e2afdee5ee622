// Package ratelimit throttles request identities with redis-backed sliding
// windows. Separate identity kinds never share a bucket.
package ratelimit

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AnonCookieName carries the opaque id of an unauthenticated client. The
// middleware issues it on the first anonymous request.
const AnonCookieName = "opsplane_anon"

type IdentityKind string

const (
	IdentityKindIP   IdentityKind = "ip"
	IdentityKindUser IdentityKind = "user"
	IdentityKindAnon IdentityKind = "anon"
)

// Identity is what a rate-limit bucket is keyed on.
type Identity struct {
	Kind  IdentityKind
	Value string
}

func (i Identity) BucketKey(window string) string {
	return fmt.Sprintf("rl:%s:%s:%s", window, i.Kind, i.Value)
}

// Resolver picks the identity of a request. Proxy headers are only trusted
// when the direct peer is inside one of the configured proxy ranges,
// otherwise a client could spoof its way into someone else's bucket.
type Resolver struct {
	trustedProxies []netip.Prefix
}

func NewResolver(trustedProxyCIDRs []string) (*Resolver, error) {
	prefixes := make([]netip.Prefix, 0, len(trustedProxyCIDRs))
	for _, cidr := range trustedProxyCIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("parsing trusted proxy CIDR %q: %w", cidr, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return &Resolver{trustedProxies: prefixes}, nil
}

// Resolve returns the request identity and, when the fallback is a fresh
// anonymous id, the cookie the middleware must set.
//
// Priority: forwarded client IP (trusted proxy only), then the authenticated
// user, then the anonymous session cookie.
func (r *Resolver) Resolve(req *http.Request, userID string) (Identity, *http.Cookie) {
	if ip := r.forwardedClientIP(req); ip != "" {
		return Identity{Kind: IdentityKindIP, Value: ip}, nil
	}

	if userID != "" {
		return Identity{Kind: IdentityKindUser, Value: userID}, nil
	}

	if cookie, err := req.Cookie(AnonCookieName); err == nil && cookie.Value != "" {
		return Identity{Kind: IdentityKindAnon, Value: cookie.Value}, nil
	}

	anonID := newAnonID()
	cookie := &http.Cookie{
		Name:     AnonCookieName,
		Value:    anonID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
	return Identity{Kind: IdentityKindAnon, Value: anonID}, cookie
}

// forwardedClientIP returns the originating client IP from proxy headers, but
// only when the direct peer is a trusted proxy.
func (r *Resolver) forwardedClientIP(req *http.Request) string {
	if len(r.trustedProxies) == 0 {
		return ""
	}

	peerHost, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		peerHost = req.RemoteAddr
	}
	peer, err := netip.ParseAddr(peerHost)
	if err != nil {
		return ""
	}
	trusted := false
	for _, prefix := range r.trustedProxies {
		if prefix.Contains(peer) {
			trusted = true
			break
		}
	}
	if !trusted {
		return ""
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if addr, parseErr := netip.ParseAddr(first); parseErr == nil {
			return addr.String()
		}
	}
	if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
		if addr, parseErr := netip.ParseAddr(realIP); parseErr == nil {
			return addr.String()
		}
	}
	return ""
}

func newAnonID() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failing means the process is in much deeper trouble
		// than rate limiting.
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}
