package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var ErrEmptyHost = errors.New("empty host")

// CanonicalHost returns a host name in the form used for dialing and comparison:
// - Trimmed of surrounding whitespace
// - IDNA lookup-mapped and converted to its ASCII (punycode) form, which also lowercases
// - No trailing dot
// IP literals are returned unchanged apart from trimming.
func CanonicalHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	for strings.HasSuffix(host, ".") {
		host = strings.TrimSuffix(host, ".")
	}
	if host == "" {
		return "", ErrEmptyHost
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	return ascii, nil
}

// HostPort extracts the canonical host and port of an http(s) URL, filling in
// the scheme's default port when none is given.
func HostPort(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host, err := CanonicalHost(u.Hostname())
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	return net.JoinHostPort(host, port), nil
}
