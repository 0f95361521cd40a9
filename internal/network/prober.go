package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/jask/offlinesync/internal/pubsub"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeAttempts = 2
	defaultProbeTimeout  = 3 * time.Second
)

// Prober is a Source that polls an HTTP health URL. A completed round trip
// means reachable; a status below 500 additionally means the server side is
// usable. Each round retries failed requests with exponential backoff before
// declaring the device offline, so a single dropped packet does not flap the
// state.
type Prober struct {
	url      string
	client   *http.Client
	interval time.Duration
	attempts uint
	logger   *zap.Logger

	mu      sync.Mutex
	current State
	seen    bool
	broker  pubsub.Broker[State]
}

var _ Source = (*Prober)(nil)

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the delay between probe rounds.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithAttempts sets how many requests one round may make.
func WithAttempts(n uint) ProberOption {
	return func(p *Prober) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a Prober for url. It reports Offline until the first round completes.
func NewProber(url string, opts ...ProberOption) *Prober {
	p := &Prober{
		url:      url,
		client:   &http.Client{Timeout: defaultProbeTimeout},
		interval: defaultProbeInterval,
		attempts: defaultProbeAttempts,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		state := p.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		p.observe(state)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe performs one round and returns the observation without publishing it.
func (p *Prober) Probe(ctx context.Context) State {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	state, err := backoff.Retry(ctx, func() (State, error) {
		return p.probeOnce(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.attempts))
	if err != nil {
		p.logger.Debug("probe failed", zap.String("url", p.url), zap.Error(err))
		return Offline
	}
	return state
}

func (p *Prober) probeOnce(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Offline, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Offline, backoff.Permanent(err)
		}
		return Offline, err
	}
	_ = resp.Body.Close()
	return State{Reachable: true, HasInternet: resp.StatusCode < http.StatusInternalServerError}, nil
}

// observe records s and publishes it when it differs from the previous round.
func (p *Prober) observe(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen && s == p.current {
		return
	}
	p.seen = true
	p.current = s
	p.logger.Info("connectivity changed",
		zap.Bool("reachable", s.Reachable),
		zap.Bool("has_internet", s.HasInternet))
	p.broker.Publish(s)
}

func (p *Prober) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Prober) Subscribe(fn func(State)) func() {
	return p.broker.Subscribe(fn)
}
