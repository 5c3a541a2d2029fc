// Package netutil chooses the listen address for chartmark_server.
package netutil

import (
	"fmt"
	"net"
	"strings"
)

// Binding is the address chosen for the server and how it was reached.
type Binding struct {
	Addr string
	// Fallback is set when Addr is a candidate rather than the preferred address.
	Fallback bool
	// Busy lists the addresses that could not be bound, in the order tried.
	Busy []string
}

// SelectBindAddr returns preferred when it can be bound. Otherwise, with
// autoFallback, it walks candidates in order, skipping blanks and repeats.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (Binding, error) {
	var b Binding
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		if err := tryListen(preferred); err == nil {
			b.Addr = preferred
			return b, nil
		}
		b.Busy = append(b.Busy, preferred)
		if !autoFallback {
			return b, fmt.Errorf("bind address %s in use and fallback disabled", preferred)
		}
	}

	seen := map[string]bool{preferred: true}
	for _, addr := range candidates {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		if err := tryListen(addr); err != nil {
			b.Busy = append(b.Busy, addr)
			continue
		}
		b.Addr = addr
		b.Fallback = preferred != ""
		return b, nil
	}
	return b, fmt.Errorf("no free bind address (tried %s)", strings.Join(b.Busy, ", "))
}

// tryListen binds addr briefly and reports why it could not.
func tryListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
