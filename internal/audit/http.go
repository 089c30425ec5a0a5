package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ProxyPolicy resolves the address recorded on audit entries. Forwarding
// headers are believed only when the direct peer is a trusted proxy;
// otherwise the peer address is used.
type ProxyPolicy struct {
	trusted []netip.Prefix
}

// NewProxyPolicy parses trusted proxy addresses and CIDRs. An empty list
// trusts no proxy.
func NewProxyPolicy(entries []string) (ProxyPolicy, error) {
	var p ProxyPolicy
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return ProxyPolicy{}, fmt.Errorf("audit: trusted proxy %q: %w", entry, err)
			}
			p.trusted = append(p.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return ProxyPolicy{}, fmt.Errorf("audit: trusted proxy %q: %w", entry, err)
		}
		p.trusted = append(p.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return p, nil
}

// Resolve returns the client address for r. Behind trusted proxies the
// X-Forwarded-For chain is walked from the right and the first untrusted
// hop wins.
func (p ProxyPolicy) Resolve(r *http.Request) string {
	if r == nil {
		return ""
	}
	peer := peerHost(r.RemoteAddr)
	if !p.isTrusted(peer) {
		return peer
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			client = hop
			if !p.isTrusted(hop) {
				break
			}
		}
		return client
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if _, err := netip.ParseAddr(realIP); err == nil {
			return realIP
		}
	}
	return peer
}

// Wrap resolves the client address once per request for ClientIP.
func (p ProxyPolicy) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey{}, p.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the address resolved by ProxyPolicy.Wrap, or the direct
// peer when the request did not pass through it.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return peerHost(r.RemoteAddr)
}

func (p ProxyPolicy) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
