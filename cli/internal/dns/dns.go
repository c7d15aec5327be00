// Package dns resolves server host names, falling back to public resolvers
// when the system resolver fails (captive or broken local DNS).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicServers are queried if a local lookup fails.
var PublicServers = []string{
	"1.1.1.1",        // Cloudflare
	"1.0.0.1",        // Cloudflare
	"8.8.8.8",        // Google
	"8.8.4.4",        // Google
	"9.9.9.9",        // Quad9
	"208.67.222.222", // Cisco OpenDNS
}

// Resolver looks a host up locally first and then races Fallback servers.
type Resolver struct {
	Fallback     []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration

	// lookup is replaced in tests.
	lookup func(ctx context.Context, host, server string) ([]string, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		Fallback:     PublicServers,
		LocalTimeout: time.Second,
		RaceTimeout:  2 * time.Second,
		lookup:       lookupVia,
	}
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ips, err := r.lookup(localCtx, host, "")
	cancel()
	if err == nil && len(ips) > 0 {
		return preferIPv4(ips), nil
	}

	if len(r.Fallback) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	return r.race(ctx, host)
}

// DialContext resolves the host part of addr with Lookup and dials it.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ips []string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	results := make(chan result, len(r.Fallback))
	for _, server := range r.Fallback {
		server := server
		go func() {
			ips, err := r.lookup(ctx, host, server)
			results <- result{ips: ips, err: err}
		}()
	}

	for range r.Fallback {
		select {
		case res := <-results:
			if res.err == nil && len(res.ips) > 0 {
				return preferIPv4(res.ips), nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS race timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public DNS servers failed", host, len(r.Fallback))
}

// lookupVia queries server, or the system resolver when server is empty.
func lookupVia(ctx context.Context, host, server string) ([]string, error) {
	res := &net.Resolver{}
	if server != "" {
		res = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
			},
		}
	}

	ips, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, errors.New("no IP addresses found")
	}
	return ips, nil
}

func preferIPv4(ips []string) string {
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip
		}
	}
	return ips[0]
}
