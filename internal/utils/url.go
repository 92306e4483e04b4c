package utils

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateRelayURL checks that rawURL is a ws or wss URL with a host
func ValidateRelayURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("relay URL is empty")
	}

	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("relay URL %q must use ws or wss", rawURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("relay URL %q has no host", rawURL)
	}
	return nil
}

// RelayURL turns a listen address or a full URL into the relay endpoint.
// A bare ":7878" listens on every interface but is dialled on loopback.
func RelayURL(addr, path string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	host, port, err := net.SplitHostPort(addr)
	if err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return "ws://" + addr + path
}
