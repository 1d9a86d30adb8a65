// Package heartbeat implements a periodic liveness probe and round-trip
// measurement (spec section 4.F), grounded on
// other_examples/BetaCatPro-ws-pro__types.go's
// Config{HeartbeatInterval, HeartbeatMsg} for the field names and
// other_examples/lightforgemedia-go-websocketmq__client.go's
// pingInterval/readTimeout ticker-plus-timeout pair for the scheduling
// shape (a *time.Ticker driving probes, a per-probe timeout timer
// watching for the reply).
package heartbeat

import (
	"sync"
	"time"
)

// SendFunc dispatches the probe payload via the runtime's normal send
// path.
type SendFunc func(message map[string]any) error

// Config mirrors config.HeartbeatConfig.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Message  map[string]any
	PongType string
}

// Stats is a bounded ring of round-trip samples with a derived mean,
// the same fixed-capacity-ring shape as the teacher's outboundBuffer.
type Stats struct {
	mu      sync.Mutex
	samples []time.Duration
	cursor  int
	filled  bool
	cap     int
}

func newStats(capacity int) *Stats {
	return &Stats{samples: make([]time.Duration, capacity), cap: capacity}
}

func (s *Stats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[s.cursor] = d
	s.cursor = (s.cursor + 1) % s.cap
	if s.cursor == 0 {
		s.filled = true
	}
}

// Mean returns the average of the recorded samples, or 0 if none.
func (s *Stats) Mean() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.cursor
	if s.filled {
		n = s.cap
	}
	if n == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += s.samples[i]
	}
	return total / time.Duration(n)
}

// Len reports the number of samples currently recorded, bounded by capacity.
func (s *Stats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled {
		return s.cap
	}
	return s.cursor
}

// maxLatencySamples bounds the ring, satisfying the testable property
// that latencySamples.length never exceeds it (spec section 8).
const maxLatencySamples = 100

// Controller drives the periodic probe/pong cycle.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	send     SendFunc
	stats    *Stats
	ticker   *time.Ticker
	pongTimer *time.Timer
	stopCh   chan struct{}
	sendTime time.Time

	onSample  func(rtt time.Duration)
	onTimeout func()
}

// New creates a Controller. onSample fires on every pong; onTimeout
// fires when a probe's pong never arrives within cfg.Timeout.
func New(cfg Config, send SendFunc, onSample func(time.Duration), onTimeout func()) *Controller {
	return &Controller{
		cfg:       cfg,
		send:      send,
		stats:     newStats(maxLatencySamples),
		onSample:  onSample,
		onTimeout: onTimeout,
	}
}

// Start begins the periodic probe cycle. A no-op if Enabled is false.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.Enabled || c.ticker != nil {
		return
	}

	c.ticker = time.NewTicker(c.cfg.Interval)
	c.stopCh = make(chan struct{})
	ticker, stop := c.ticker, c.stopCh

	go func() {
		for {
			select {
			case <-ticker.C:
				c.probe()
			case <-stop:
				return
			}
		}
	}()
}

// Stop suspends the controller, clearing every armed timer. Per spec
// section 4.F, a configuration update requires an explicit restart.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}

// probe records a send timestamp, dispatches the probe, and arms the
// pong timeout. At most one probe is ever in flight (spec section 5(e)):
// a tick that arrives while the previous probe's timer is still armed is
// skipped, so that timer runs to expiry even when Interval < Timeout.
func (c *Controller) probe() {
	c.mu.Lock()
	if c.pongTimer != nil {
		c.mu.Unlock()
		return
	}
	c.sendTime = time.Now()
	c.pongTimer = time.AfterFunc(c.cfg.Timeout, c.fireTimeout)
	c.mu.Unlock()

	if err := c.send(c.cfg.Message); err != nil {
		c.mu.Lock()
		if c.pongTimer != nil {
			c.pongTimer.Stop()
			c.pongTimer = nil
		}
		c.mu.Unlock()
	}
}

func (c *Controller) fireTimeout() {
	c.mu.Lock()
	c.pongTimer = nil
	c.mu.Unlock()
	if c.onTimeout != nil {
		c.onTimeout()
	}
}

// HandlePong is called by the caller with an inbound frame; if its
// "type" field equals the configured pongType, the pong timer is
// cleared and the round-trip sample recorded.
func (c *Controller) HandlePong(frame map[string]any) bool {
	t, _ := frame["type"].(string)
	if t != c.cfg.PongType {
		return false
	}

	c.mu.Lock()
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	sendTime := c.sendTime
	c.mu.Unlock()

	rtt := time.Since(sendTime)
	c.stats.record(rtt)
	if c.onSample != nil {
		c.onSample(rtt)
	}
	return true
}

// Stats returns the controller's round-trip sample ring.
func (c *Controller) Stats() *Stats {
	return c.stats
}
