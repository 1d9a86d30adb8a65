// Package monitor implements throughput, latency percentile, and
// quality-score tracking (spec section 4.O), grounded on
// other_examples/BetaCatPro-ws-pro__types.go's ConnectionStats
// (ActiveConnections/TotalMessages/DroppedMessages/ReconnectAttempts)
// generalized from four lifetime counters into windowed rate tracking
// plus a derived quality score, and on heartbeat.Stats's bounded-ring
// idiom for the latency sample window.
package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	maxErrorSamples   = 50
	maxLatencySamples = 200
)

// Config configures the rate window size. The quality-score deduction
// thresholds are fixed in qualityScore.
type Config struct {
	WindowSize time.Duration
}

// LatencySnapshot is the current/avg/min/max/p95/p99 view of recorded
// latency samples.
type LatencySnapshot struct {
	Current time.Duration
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// Snapshot is the full point-in-time metrics view exposed to
// consumers.
type Snapshot struct {
	SentTotal     uint64
	ReceivedTotal uint64
	SentRate      float64 // per second, over Config.WindowSize
	ReceivedRate  float64
	Latency       LatencySnapshot
	ErrorRate     float64 // errors / (sent + received)
	QueueUsage    float64 // 0..1
	Reconnects    int
	QualityScore  int // 0..100
}

type timestampedError struct {
	at      time.Time
	message string
}

// Monitor records send/receive/latency/error samples and derives a
// point-in-time Snapshot and a human-readable report on demand.
type Monitor struct {
	mu sync.Mutex
	cfg Config

	sentTotal     uint64
	receivedTotal uint64
	sentTimes     []time.Time
	receivedTimes []time.Time

	latencies     []time.Duration
	lastLatency   time.Duration

	errors []timestampedError

	reconnects int
	queueUsage float64

	log *zap.Logger
}

// New creates a Monitor. A nil logger is replaced with zap.NewNop().
func New(cfg Config, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = time.Minute
	}
	return &Monitor{cfg: cfg, log: log}
}

// RecordSent records an outbound message at the current time.
func (m *Monitor) RecordSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentTotal++
	m.sentTimes = append(m.sentTimes, time.Now())
	m.sentTimes = trimWindow(m.sentTimes, m.cfg.WindowSize)
}

// RecordReceived records an inbound message at the current time.
func (m *Monitor) RecordReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivedTotal++
	m.receivedTimes = append(m.receivedTimes, time.Now())
	m.receivedTimes = trimWindow(m.receivedTimes, m.cfg.WindowSize)
}

// RecordLatency records a round-trip sample, retaining only the most
// recent maxLatencySamples.
func (m *Monitor) RecordLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLatency = d
	m.latencies = append(m.latencies, d)
	if len(m.latencies) > maxLatencySamples {
		m.latencies = m.latencies[len(m.latencies)-maxLatencySamples:]
	}
}

// RecordError records an error message, retaining only the most recent
// maxErrorSamples.
func (m *Monitor) RecordError(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, timestampedError{at: time.Now(), message: message})
	if len(m.errors) > maxErrorSamples {
		m.errors = m.errors[len(m.errors)-maxErrorSamples:]
	}
}

// RecordReconnect increments the reconnect counter used in the quality
// score deduction.
func (m *Monitor) RecordReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
}

// SetQueueUsage records the current queue fill ratio (0..1), used in
// the quality score deduction.
func (m *Monitor) SetQueueUsage(ratio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueUsage = ratio
}

func trimWindow(times []time.Time, window time.Duration) []time.Time {
	cutoff := time.Now().Add(-window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}

// Snapshot computes the current point-in-time metrics view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sentTimes = trimWindow(m.sentTimes, m.cfg.WindowSize)
	m.receivedTimes = trimWindow(m.receivedTimes, m.cfg.WindowSize)

	windowSeconds := m.cfg.WindowSize.Seconds()
	sentRate := float64(len(m.sentTimes)) / windowSeconds
	receivedRate := float64(len(m.receivedTimes)) / windowSeconds

	errorRate := 0.0
	if total := m.sentTotal + m.receivedTotal; total > 0 {
		errorRate = float64(len(m.errors)) / float64(total)
	}

	latency := computeLatencySnapshot(m.latencies, m.lastLatency)

	snap := Snapshot{
		SentTotal:     m.sentTotal,
		ReceivedTotal: m.receivedTotal,
		SentRate:      sentRate,
		ReceivedRate:  receivedRate,
		Latency:       latency,
		ErrorRate:     errorRate,
		QueueUsage:    m.queueUsage,
		Reconnects:    m.reconnects,
	}
	snap.QualityScore = qualityScore(snap)
	return snap
}

func computeLatencySnapshot(samples []time.Duration, current time.Duration) LatencySnapshot {
	if len(samples) == 0 {
		return LatencySnapshot{}
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return LatencySnapshot{
		Current: current,
		Avg:     total / time.Duration(len(sorted)),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		P95:     percentile(sorted, 0.95),
		P99:     percentile(sorted, 0.99),
	}
}

// percentile assumes sorted is already ascending.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// qualityScore starts at 100 and deducts by thresholded bands for
// average latency, error rate, reconnect count, and queue usage; floor
// is 0, per spec section 4.O.
func qualityScore(s Snapshot) int {
	score := 100

	switch {
	case s.Latency.Avg > 2*time.Second:
		score -= 40
	case s.Latency.Avg > time.Second:
		score -= 25
	case s.Latency.Avg > 500*time.Millisecond:
		score -= 10
	}

	switch {
	case s.ErrorRate > 0.2:
		score -= 30
	case s.ErrorRate > 0.05:
		score -= 15
	case s.ErrorRate > 0.01:
		score -= 5
	}

	switch {
	case s.Reconnects > 10:
		score -= 20
	case s.Reconnects > 3:
		score -= 10
	case s.Reconnects > 0:
		score -= 5
	}

	switch {
	case s.QueueUsage > 0.9:
		score -= 15
	case s.QueueUsage > 0.7:
		score -= 8
	}

	if score < 0 {
		score = 0
	}
	return score
}

// GenerateReport renders a human-readable multi-line summary of the
// current snapshot, and also logs the quality score and counters as a
// structured info-level entry.
func (m *Monitor) GenerateReport() string {
	snap := m.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "connection quality: %d/100\n", snap.QualityScore)
	fmt.Fprintf(&b, "  sent: %d total, %.2f/s\n", snap.SentTotal, snap.SentRate)
	fmt.Fprintf(&b, "  received: %d total, %.2f/s\n", snap.ReceivedTotal, snap.ReceivedRate)
	fmt.Fprintf(&b, "  latency: current=%s avg=%s min=%s max=%s p95=%s p99=%s\n",
		snap.Latency.Current, snap.Latency.Avg, snap.Latency.Min, snap.Latency.Max, snap.Latency.P95, snap.Latency.P99)
	fmt.Fprintf(&b, "  error rate: %.2f%%\n", snap.ErrorRate*100)
	fmt.Fprintf(&b, "  queue usage: %.2f%%\n", snap.QueueUsage*100)
	fmt.Fprintf(&b, "  reconnects: %d\n", snap.Reconnects)

	report := b.String()
	m.log.Info("connection quality report",
		zap.Int("quality_score", snap.QualityScore),
		zap.Uint64("sent_total", snap.SentTotal),
		zap.Uint64("received_total", snap.ReceivedTotal),
		zap.Float64("error_rate", snap.ErrorRate),
		zap.Int("reconnects", snap.Reconnects),
	)
	return report
}
