package wsc

import "errors"

// ErrDestroyed is wrapped by an errs.Error (KindState) returned from any
// operation invoked after Destroy, per spec section 4.P ("after destroy,
// all further operations fail fast with a State error").
var ErrDestroyed = errors.New("client has been destroyed")

// ErrNotConnected is wrapped by an errs.Error (KindState) returned from
// Send/SendBinary/Request when the client is not connected and queueing
// does not apply.
var ErrNotConnected = errors.New("client is not connected")
