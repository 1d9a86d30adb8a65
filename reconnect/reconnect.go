// Package reconnect implements an exponential-backoff scheduler with
// jitter (spec section 4.E), grounded on
// other_examples/niradler-socketflow__socketflow.go's
// RetryConfig{MaxRetries, InitialDelay, MaxDelay, ExponentialBase} and
// DefaultRetryConfig, generalized with the additive jitter fraction and
// the maxAttempts=0-means-unbounded rule spec section 4.E adds on top.
package reconnect

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config mirrors config.ReconnectConfig's scheduling fields.
type Config struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int // 0 means unbounded
	Factor         float64
	JitterFraction float64
}

// ConnectFunc is the Facade's connect path — the controller always
// drives reconnection through this, never the adapter directly, so
// every subsystem re-initializes on success (spec section 4.E).
type ConnectFunc func(ctx context.Context) error

// Controller schedules reconnect attempts with exponential backoff.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	attempt int
	timer   *time.Timer
	connect ConnectFunc

	onReconnecting func(attempt int, delay time.Duration)
	onReconnected  func(attempts int, duration time.Duration)
	onFailed       func(attempts int, reason string)
}

// New creates a Controller bound to connect. Callbacks may be nil.
func New(cfg Config, connect ConnectFunc) *Controller {
	return &Controller{cfg: cfg, connect: connect}
}

// OnReconnecting sets the callback fired before each attempt.
func (c *Controller) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = fn
}

// OnReconnected sets the callback fired after a successful attempt.
func (c *Controller) OnReconnected(fn func(attempts int, duration time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnected = fn
}

// OnFailed sets the callback fired once maxAttempts is exhausted.
func (c *Controller) OnFailed(fn func(attempts int, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailed = fn
}

// Delay computes the delay for zero-indexed attempt n:
// min(maxDelay, baseDelay*factor^n) plus additive jitter uniformly drawn
// from [-j,+j] with j = cappedDelay*jitterFraction, clamped non-negative.
func (c *Config) Delay(n int) time.Duration {
	capped := float64(c.BaseDelay) * pow(c.Factor, n)
	if capped > float64(c.MaxDelay) {
		capped = float64(c.MaxDelay)
	}

	j := capped * c.JitterFraction
	jitter := (rand.Float64()*2 - 1) * j
	delay := capped + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Start schedules the first reconnect attempt. Idempotent-ish: calling
// Start while a timer is already pending replaces it.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleLocked(ctx)
}

// scheduleLocked arms a timer for the current attempt count. Must be
// called with mu held.
func (c *Controller) scheduleLocked(ctx context.Context) {
	if c.cfg.MaxAttempts > 0 && c.attempt >= c.cfg.MaxAttempts {
		reason := "max attempts exceeded"
		if c.onFailed != nil {
			go c.onFailed(c.attempt, reason)
		}
		return
	}

	delay := c.cfg.Delay(c.attempt)
	attemptForCallback := c.attempt

	if c.timer != nil {
		c.timer.Stop()
	}
	if c.onReconnecting != nil {
		go c.onReconnecting(attemptForCallback+1, delay)
	}

	start := time.Now()
	c.timer = time.AfterFunc(delay, func() {
		err := c.connect(ctx)
		c.mu.Lock()
		defer c.mu.Unlock()

		if err == nil {
			duration := time.Since(start)
			attempts := c.attempt + 1
			c.attempt = 0
			if c.onReconnected != nil {
				go c.onReconnected(attempts, duration)
			}
			return
		}

		c.attempt++
		c.scheduleLocked(ctx)
	})
}

// Cancel aborts any pending timer without resetting the attempt counter.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Reset zeroes the attempt counter.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt = 0
}

// Attempt returns the current attempt count.
func (c *Controller) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}
