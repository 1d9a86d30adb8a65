package wsc

import (
	"time"

	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/rpc"
)

// Request sends payload as an rpc_request envelope and returns the id
// and a channel that receives exactly one rpc.Result — either the
// matching rpc_response's data or a timeout/connection-loss error
// (spec section 4.K). timeout of zero uses the Client's configured
// rpcDefaultTimeout.
func (c *Client) Request(payload any, timeout time.Duration) (string, <-chan rpc.Result, error) {
	if c.isDestroyed() {
		return "", nil, errs.New(errs.KindState, "request", ErrDestroyed)
	}
	if !c.IsConnected() {
		return "", nil, errs.New(errs.KindState, "request", ErrNotConnected)
	}
	return c.rpcs.Request(payload, timeout)
}
