package wsc

import (
	"time"

	"github.com/risa-org/wsc/queue"
)

// SendOptions configures a single Send call: whether it's queued at
// all when offline, whether it demands an ack, and what priority band
// it occupies in the outbound queue (spec section 4.P).
type SendOptions struct {
	Priority   queue.Priority
	Reliable   bool
	AckTimeout time.Duration
	AckRetries int
	OnAck      func(ackData any)
	OnTimeout  func(err error)
}
