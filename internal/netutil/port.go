// Package netutil picks the address the dashboard API listens on.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/samber/lo"
)

// ErrNoAddr is returned when neither the preferred address nor any candidate is free.
var ErrNoAddr = errors.New("netutil: no available dashboard bind address")

// ParseCandidates splits a comma-separated address list, dropping blanks and duplicates.
func ParseCandidates(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Compact(parts))
}

// Listen binds the preferred address, or the first free candidate when
// autoFallback is set. The returned listener is already bound.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("netutil: preferred bind address in use: %s: %w", preferred, err)
		}
	}
	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}
	return nil, ErrNoAddr
}

// SelectBindAddr reports which address Listen would bind, releasing it again.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	ln, err := Listen(preferred, candidates, autoFallback)
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		return "", err
	}
	return addr, nil
}
