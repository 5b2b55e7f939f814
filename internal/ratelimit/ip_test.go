package ratelimit

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIPForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1, 10.0.0.2")
	r.RemoteAddr = "10.0.0.2:4321"

	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("ClientIP = %q, want leftmost forwarded entry", got)
	}
}

func TestClientIPHeaderPrecedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.7")
	r.Header.Set("CF-Connecting-IP", "192.0.2.1")
	r.RemoteAddr = "10.0.0.2:4321"

	if got := ClientIP(r); got != "198.51.100.7" {
		t.Fatalf("ClientIP = %q, want X-Real-IP before CF-Connecting-IP", got)
	}
}

func TestClientIPSkipsUnknownHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "unknown")
	r.Header.Set("X-Real-IP", "198.51.100.7")

	if got := ClientIP(r); got != "198.51.100.7" {
		t.Fatalf("ClientIP = %q, want fallthrough past unknown", got)
	}
}

func TestClientIPSkipsOversizedHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", strings.Repeat("a", 60))
	r.RemoteAddr = "192.0.2.4:9999"

	if got := ClientIP(r); got != "192.0.2.4" {
		t.Fatalf("ClientIP = %q, want remote addr host", got)
	}
}

func TestClientIPRemoteAddrFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.4:9999"

	if got := ClientIP(r); got != "192.0.2.4" {
		t.Fatalf("ClientIP = %q, want host without port", got)
	}
}

func TestClientIPNoInformation(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""

	if got := ClientIP(r); got != "unknown" {
		t.Fatalf("ClientIP = %q, want unknown", got)
	}
}
