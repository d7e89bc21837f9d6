package geolocation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Origin identifies the execution context an acquisition is requested from
type Origin struct {
	Scheme string
	Host   string
}

// ParseOrigin parses an origin such as "https://farm.example.org"
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Origin{}, fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Origin{}, fmt.Errorf("invalid origin %q: scheme and host are required", raw)
	}
	return Origin{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Hostname())}, nil
}

// IsSecure reports whether geolocation may be requested from this origin:
// a secure protocol or a loopback host.
func (o Origin) IsSecure() bool {
	if o.Scheme == "https" || o.Scheme == "wss" {
		return true
	}
	return isLoopback(o.Host)
}

func (o Origin) String() string {
	if o.Scheme == "" && o.Host == "" {
		return "unknown origin"
	}
	return o.Scheme + "://" + o.Host
}

func isLoopback(host string) bool {
	host = strings.Trim(host, "[]")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
