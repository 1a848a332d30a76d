package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestParseProxies(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    int
		wantErr bool
	}{
		{name: "none"},
		{name: "addresses and ranges", entries: []string{"127.0.0.1", " 10.0.0.0/8 ", "::1", ""}, want: 3},
		{name: "hostname", entries: []string{"proxy.local"}, wantErr: true},
		{name: "bad range", entries: []string{"10.0.0.0/33"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxies, err := parseProxies(tt.entries)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, proxies, tt.want)
		})
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := parseProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies proxyList
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:   "no proxies",
			remote: "203.0.113.9:4000",
			want:   "203.0.113.9",
		},
		{
			name:    "headers ignored without trusted proxies",
			remote:  "203.0.113.9:4000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7", "X-Real-IP": "198.51.100.8"},
			want:    "203.0.113.9",
		},
		{
			name:    "headers ignored from an untrusted peer",
			proxies: trusted,
			remote:  "203.0.113.9:4000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7"},
			want:    "203.0.113.9",
		},
		{
			name:    "forwarded for from a trusted proxy",
			proxies: trusted,
			remote:  "192.0.2.1:4000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7"},
			want:    "198.51.100.7",
		},
		{
			name:    "spoofed leftmost entry is skipped",
			proxies: trusted,
			remote:  "192.0.2.1:4000",
			headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.7, 10.1.2.3"},
			want:    "198.51.100.7",
		},
		{
			name:    "chain of trusted hops",
			proxies: trusted,
			remote:  "10.0.0.2:4000",
			headers: map[string]string{"X-Forwarded-For": "10.9.9.9, 10.1.2.3"},
			want:    "10.9.9.9",
		},
		{
			name:    "real ip from a trusted proxy",
			proxies: trusted,
			remote:  "10.0.0.2:4000",
			headers: map[string]string{"X-Real-IP": " 198.51.100.8 "},
			want:    "198.51.100.8",
		},
		{
			name:    "ipv6 peer",
			proxies: trusted,
			remote:  "[2001:db8::1]:4000",
			want:    "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.proxies.clientIP(req))
		})
	}
}

func TestAuthRateLimitForwardedFor(t *testing.T) {
	tests := []struct {
		name     string
		proxies  []string
		wantCode int
	}{
		{name: "rotating header without trusted proxies", wantCode: http.StatusTooManyRequests},
		{name: "rotating header behind a trusted proxy", proxies: []string{"127.0.0.1", "::1"}, wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(o *Options) {
				o.AuthRateLimit = rate.Every(time.Hour)
				o.AuthRateBurst = 1
				o.TrustedProxies = tt.proxies
			})
			client := env.client(t)

			form := url.Values{"email": {"nobody@example.com"}, "password": {"secret1"}}
			var last int
			for i := range 3 {
				req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/login", strings.NewReader(form.Encode()))
				require.NoError(t, err)
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))

				resp, err := client.Do(req)
				require.NoError(t, err)
				readBody(t, resp)
				last = resp.StatusCode
			}
			assert.Equal(t, tt.wantCode, last)
		})
	}
}

func TestNewServerRejectsBadProxy(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := NewServer(Options{Media: &fakeMedia{}, Auth: env.dir, TrustedProxies: []string{"nope"}}, zerolog.Nop())
	assert.Error(t, err)
}
