package admission

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/backkem/netauth/pkg/transport"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/logging"
	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultAttemptsPerMinute = 30
	DefaultBurst             = 10
	DefaultMaxTrackedPeers   = 4096
)

// DenyTextRateLimited is the refusal text for throttled peers.
const DenyTextRateLimited = "Too many connection attempts, please wait a moment."

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// AttemptsPerMinute is the sustained handshake rate per remote IP.
	// Default: DefaultAttemptsPerMinute
	AttemptsPerMinute float64

	// Burst is the number of attempts allowed at once.
	// Default: DefaultBurst
	Burst int

	// MaxTrackedPeers bounds the number of remembered IPs. The least
	// recently seen IP is forgotten first.
	// Default: DefaultMaxTrackedPeers
	MaxTrackedPeers int

	// ExemptLoopback skips limiting for loopback peers.
	ExemptLoopback bool

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// RateLimiter is an Approver that throttles handshakes per remote IP with a
// token bucket.
type RateLimiter struct {
	limit          rate.Limit
	burst          int
	exemptLoopback bool
	now            func() time.Time
	log            logging.LeveledLogger

	mu    sync.Mutex
	peers *lru.Cache[netip.Addr, *rate.Limiter]
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(config RateLimiterConfig) (*RateLimiter, error) {
	if config.AttemptsPerMinute <= 0 {
		config.AttemptsPerMinute = DefaultAttemptsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = DefaultBurst
	}
	if config.MaxTrackedPeers <= 0 {
		config.MaxTrackedPeers = DefaultMaxTrackedPeers
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	peers, err := lru.New[netip.Addr, *rate.Limiter](config.MaxTrackedPeers)
	if err != nil {
		return nil, err
	}

	r := &RateLimiter{
		limit:          rate.Limit(config.AttemptsPerMinute / 60),
		burst:          config.Burst,
		exemptLoopback: config.ExemptLoopback,
		now:            config.Now,
		peers:          peers,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("admission-ratelimit")
	}
	return r, nil
}

// Approve implements Approver.
func (r *RateLimiter) Approve(_ context.Context, req ApprovalRequest) (Approval, error) {
	ip := transport.AddrIP(req.RemoteAddr)
	if !ip.IsValid() || (r.exemptLoopback && ip.IsLoopback()) {
		return Approved, nil
	}

	r.mu.Lock()
	lim, ok := r.peers.Get(ip)
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.peers.Add(ip, lim)
	}
	allowed := lim.AllowN(r.now(), 1)
	r.mu.Unlock()

	if !allowed {
		if r.log != nil {
			r.log.Debugf("rate limited handshake from %s", ip)
		}
		return Denied(Deny(DenyTextRateLimited).With("ip", ip.String())), nil
	}
	return Approved, nil
}

// Tracked returns the number of remembered IPs.
func (r *RateLimiter) Tracked() int {
	return r.peers.Len()
}
