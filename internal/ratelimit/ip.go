package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// Reverse-proxy headers are checked in order before falling back to the raw
// peer address. X-Forwarded-For may hold "client, proxy1, proxy2"; the
// leftmost entry is the original client.
var ipHeaderCandidates = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
}

func ClientIP(r *http.Request) string {
	for _, header := range ipHeaderCandidates {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" || strings.EqualFold(value, "unknown") {
			continue
		}

		ip := strings.TrimSpace(strings.Split(value, ",")[0])
		if isValidIP(ip) {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}

func isValidIP(ip string) bool {
	return ip != "" && !strings.EqualFold(ip, "unknown") && len(ip) <= 45
}
