// Package httpclient builds the HTTP client used for outbound fetches such
// as remote grid downloads.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const defaultUserAgent = "projd"

type settings struct {
	timeout   time.Duration
	userAgent string
	maxIdle   int
	transport http.RoundTripper
}

type Option func(*settings)

// WithTimeout bounds a whole request including the body read. Zero keeps
// the default.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

func WithMaxIdlePerHost(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxIdle = n
		}
	}
}

// WithTransport replaces the pooled transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.transport = rt }
}

// NewOutbound creates an outbound client. Requests without a User-Agent
// get the configured one.
func NewOutbound(opts ...Option) *http.Client {
	s := settings{timeout: 30 * time.Second, userAgent: defaultUserAgent, maxIdle: 16}
	for _, o := range opts {
		o(&s)
	}
	base := s.transport
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          s.maxIdle * 4,
			MaxIdleConnsPerHost:   s.maxIdle,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}
	return &http.Client{
		Transport: userAgent{next: base, ua: s.userAgent},
		Timeout:   s.timeout,
	}
}

type userAgent struct {
	next http.RoundTripper
	ua   string
}

func (u userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", u.ua)
	return u.next.RoundTrip(r)
}
