// Package netutil provides network utility helpers used across Enclave.
package netutil

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"time"
)

var (
	// envNameRegex enforces DNS-label-safe environment names.
	envNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,62}$`)

	// domainRegex provides a basic domain name sanity check.
	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
)

// IsValidEnvironmentName returns true if name is a DNS-label-safe
// environment name. Environment names end up in container and network names,
// so the same character set applies.
func IsValidEnvironmentName(name string) bool {
	return envNameRegex.MatchString(name)
}

// IsValidDomain returns true if domain passes basic format validation.
func IsValidDomain(domain string) bool {
	return domainRegex.MatchString(domain)
}

// IsValidPort returns true if port is in the user-space range (1024–65535).
func IsValidPort(port int) bool {
	return port >= 1024 && port <= 65535
}

// ProbeTCP dials host:port and returns nil if successful within the timeout.
func ProbeTCP(ctx context.Context, host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp probe to %s failed: %w", addr, err)
	}
	conn.Close()
	return nil
}
