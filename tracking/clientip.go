package tracking

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the client key used when no address can be resolved.
const UnknownClient = "unknown"

// ClientIP resolves the client key of a request: the first X-Forwarded-For
// entry, else X-Real-IP, else the peer address without its port.
func ClientIP(header http.Header, remoteAddr string) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(header.Get("X-Real-IP")); real != "" {
		return real
	}
	if remoteAddr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}
