package utils

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "ipv6 remote addr", remote: "[::1]:5555", want: "::1"},
		{name: "headers ignored without trust", remote: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": "1.2.3.4"}, want: "10.0.0.1"},
		{name: "cloudflare first", remote: "10.0.0.1:5555", trustProxy: true, headers: map[string]string{"CF-Connecting-IP": "5.6.7.8", "X-Forwarded-For": "1.2.3.4"}, want: "5.6.7.8"},
		{name: "left-most forwarded", remote: "10.0.0.1:5555", trustProxy: true, headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.2"}, want: "1.2.3.4"},
		{name: "real ip", remote: "10.0.0.1:5555", trustProxy: true, headers: map[string]string{"X-Real-IP": "9.9.9.9"}, want: "9.9.9.9"},
		{name: "trusted but no headers", remote: "10.0.0.1:5555", trustProxy: true, want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.168.1.10 ", "", "not-an-ip", "fd00::/8"})
	if m.IsEmpty() {
		t.Fatal("matcher should not be empty")
	}

	allowed := []string{"10.1.2.3", "192.168.1.10", "::ffff:10.0.0.1", "fd00::1"}
	for _, ip := range allowed {
		if !m.Allow(ip) {
			t.Errorf("Allow(%q) = false, want true", ip)
		}
	}

	denied := []string{"11.0.0.1", "192.168.1.11", "garbage", "", "fe80::1"}
	for _, ip := range denied {
		if m.Allow(ip) {
			t.Errorf("Allow(%q) = true, want false", ip)
		}
	}

	if !NewIPMatcher(nil).IsEmpty() {
		t.Error("nil list should yield an empty matcher")
	}
}
