package utils

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used to key per-client limits. Forwarding
// headers are honored only when the gateway sits behind a trusted proxy, and
// then only the right-most X-Forwarded-For hop is used: it is the one the
// trusted proxy appended, while earlier entries are supplied by the client.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			last := xff[len(xff)-1]
			if i := strings.LastIndexByte(last, ','); i >= 0 {
				last = last[i+1:]
			}
			if ip := strings.TrimSpace(last); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
