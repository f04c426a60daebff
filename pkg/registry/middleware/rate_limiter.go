package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit      = 0.1
	backOffFactor = 0.5
	recoverFactor = 1.5
)

// RateLimiters holds one token bucket per host a publish talks to,
// which is the registry and whatever token endpoint it redirects to.
// A 429 from a host halves its limit; Recover raises it again, never
// beyond RPS.
type RateLimiters struct {
	RPS    float64
	Burst  int
	Logger log.Logger

	mu      sync.Mutex
	perHost map[string]*rate.Limiter
}

// forHost must be called with mu held.
func (l *RateLimiters) forHost(host string, create bool) *rate.Limiter {
	if rl, ok := l.perHost[host]; ok || !create {
		return rl
	}
	if l.perHost == nil {
		l.perHost = map[string]*rate.Limiter{}
	}
	rl := rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
	l.perHost[host] = rl
	return rl
}

func (l *RateLimiters) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.forHost(host, true)
}

// scale multiplies the host's limit, keeping it within
// [minLimit, RPS]. Unknown hosts are created only when backing off.
func (l *RateLimiters) scale(host string, factor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl := l.forHost(host, factor < 1)
	if rl == nil {
		return
	}
	was := float64(rl.Limit())
	now := was * factor
	if now < minLimit {
		now = minLimit
	}
	if now > l.RPS {
		now = l.RPS
	}
	if now == was {
		return
	}
	rl.SetLimit(rate.Limit(now))
	if l.Logger != nil {
		l.Logger.Log("info", "adjusted registry rate limit", "host", host, "limit", strconv.FormatFloat(now, 'f', 2, 64))
	}
}

// BackOff halves the limit for the host.
func (l *RateLimiters) BackOff(host string) {
	l.scale(host, backOffFactor)
}

// Recover is called after a publish to the host went through, and
// moves its limit back towards RPS.
func (l *RateLimiters) Recover(host string) {
	l.scale(host, recoverFactor)
}

// Limit is the host's current limit in requests per second.
func (l *RateLimiters) Limit(host string) float64 {
	return float64(l.limiter(host).Limit())
}

// Transport makes each request wait for its host's limiter before
// it is sent with rt.
func (l *RateLimiters) Transport(rt http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		host := r.URL.Host
		// Wait gives up at once if the request's deadline would pass
		// before a token is available.
		if err := l.limiter(host).Wait(r.Context()); err != nil {
			return nil, errors.Wrap(err, "rate limited")
		}
		resp, err := rt.RoundTrip(r)
		if err == nil && resp.StatusCode == http.StatusTooManyRequests {
			l.BackOff(host)
		}
		return resp, err
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
