// Package config assembles the runtime's configuration trees. Config is
// built once via functional options and treated as an immutable snapshot
// thereafter (spec section 3, "Config trees"); a Client.Reconfigure call
// replaces the snapshot wholesale rather than mutating fields in place.
//
// The functional-options shape is grounded on
// other_examples/lightforgemedia-go-websocketmq__client.go's
// clientConfig + `Option func(*Client)` pattern.
package config

import "time"

// AdapterKind selects the transport variant (spec section 4.C).
type AdapterKind int

const (
	AdapterNative AdapterKind = iota
	AdapterSocketIO
)

// AdapterConfig configures the transport adapter.
type AdapterConfig struct {
	Kind    AdapterKind
	Headers map[string][]string
}

// ReconnectConfig configures the exponential-backoff scheduler (component E).
type ReconnectConfig struct {
	Enabled           bool
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int // 0 means unbounded
	Factor            float64
	JitterFraction    float64 // fraction of the capped delay, e.g. 0.1 = +-10%
	ResendPendingRPCs bool    // not read by Client: pending RPCs are rejected on every connection loss; see DESIGN.md
}

// HeartbeatConfig configures the liveness prober (component F).
type HeartbeatConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Message  map[string]any
	PongType string
}

// Priority mirrors queue.Priority's three bands, in the same order and
// with the same values; queue methods take queue.Priority, so a value
// is passed as queue.Priority(p).
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// QueueConfig configures the priority outbox (component G).
type QueueConfig struct {
	Enabled       bool
	MaxSize       int
	MaxMessageLen int
	Persistent    bool
	StorageKey    string
}

// CompressionAlgorithm selects a stream compressor (component I).
type CompressionAlgorithm int

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionGzip
	CompressionDeflate
	CompressionFallback // Snappy, see DESIGN.md open question 3
)

// CompressionConfig configures the codec chain's compression stage.
type CompressionConfig struct {
	Enabled   bool
	Threshold int // bytes; compress only if the payload is at least this big
	Algorithm CompressionAlgorithm
}

// EncryptionAlgorithm selects an AEAD cipher (component I).
type EncryptionAlgorithm int

const (
	EncryptionNone EncryptionAlgorithm = iota
	EncryptionAES256GCM
)

// EncryptionConfig configures the codec chain's encryption stage.
type EncryptionConfig struct {
	Enabled   bool
	Algorithm EncryptionAlgorithm
	Key       []byte // 32 bytes for AES-256
	FixedIV   []byte // discouraged; nil means fresh random IV per message
}

// BatchConfig configures the coalescing send buffer (component M). A
// zero value for any trigger field disables that trigger; Enabled false
// (the default) means Client.AddToBatch sends immediately instead of
// buffering.
type BatchConfig struct {
	Enabled  bool
	MaxSize  int
	MaxBytes int
	MaxWait  time.Duration
}

// Config is the full, immutable configuration snapshot for one Client.
type Config struct {
	URL               string
	Protocols         []string
	ConnectionTimeout time.Duration
	Debug             bool

	Adapter     AdapterConfig
	Reconnect   ReconnectConfig
	Heartbeat   HeartbeatConfig
	Queue       QueueConfig
	Encryption  EncryptionConfig
	Compression CompressionConfig
	Batch       BatchConfig
}

// Option mutates a Config during construction.
type Option func(*Config)

// Default returns the baseline configuration described in spec section 6.
func Default(url string) Config {
	return Config{
		URL:               url,
		ConnectionTimeout: 10 * time.Second,
		Adapter:           AdapterConfig{Kind: AdapterNative},
		Reconnect: ReconnectConfig{
			Enabled:     true,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 0,
			Factor:      2.0,
			JitterFraction: 0.1,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  10 * time.Second,
			Message:  map[string]any{"type": "ping"},
			PongType: "pong",
		},
		Queue: QueueConfig{
			Enabled:       true,
			MaxSize:       1000,
			MaxMessageLen: 1 << 20, // 1 MiB
		},
		Batch: BatchConfig{
			Enabled: false,
		},
	}
}

// New builds a Config for url, applying opts in order over the defaults.
func New(url string, opts ...Option) Config {
	cfg := Default(url)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithProtocols(protocols ...string) Option {
	return func(c *Config) { c.Protocols = protocols }
}

func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionTimeout = d }
}

func WithDebug(debug bool) Option {
	return func(c *Config) { c.Debug = debug }
}

func WithAdapter(kind AdapterKind, headers map[string][]string) Option {
	return func(c *Config) { c.Adapter = AdapterConfig{Kind: kind, Headers: headers} }
}

func WithReconnect(rc ReconnectConfig) Option {
	return func(c *Config) { c.Reconnect = rc }
}

func WithHeartbeat(hc HeartbeatConfig) Option {
	return func(c *Config) { c.Heartbeat = hc }
}

func WithQueue(qc QueueConfig) Option {
	return func(c *Config) { c.Queue = qc }
}

func WithEncryption(ec EncryptionConfig) Option {
	return func(c *Config) { c.Encryption = ec }
}

func WithCompression(cc CompressionConfig) Option {
	return func(c *Config) { c.Compression = cc }
}

func WithBatch(bc BatchConfig) Option {
	return func(c *Config) { c.Batch = bc }
}
