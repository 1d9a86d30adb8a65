// Package middleware implements the onion-model send/receive interceptor
// pipeline (spec section 4.H). The composition style — wrap a terminal
// action in layers that each get pre- and post-work around a `next` call
// — is grounded on transport/sender/sender.go's collapsing of "assign
// seq, call adapter, record in buffer" into one Send call; here that
// three-step composition generalizes to an arbitrary number of
// caller-supplied layers instead of a fixed three. The chain is driven
// by index: runFrom(i) runs layer i and hands it a next that calls
// runFrom(i+1), and ShouldSkip is checked before each layer and before
// the terminal action. Each next call nests on the Go call stack, so
// stack depth grows with the number of layers.
package middleware

import (
	"time"
)

// Direction tags which chain a Context is travelling through.
type Direction int

const (
	DirectionSend Direction = iota
	DirectionReceive
)

// Context is threaded through every middleware in a chain.
type Context struct {
	Data       any
	Direction  Direction
	Type       string
	ID         string
	Timestamp  time.Time
	Meta       map[string]any
	ShouldSkip bool
}

// Next advances to the next middleware (or the terminal action).
type Next func(ctx *Context) error

// Middleware is one layer of the pipeline.
type Middleware func(ctx *Context, next Next) error

// Terminal is the action run after every middleware has called next: the
// codec+adapter send on the send chain, a no-op on the receive chain
// (per spec section 4.H).
type Terminal func(ctx *Context) error

// Chain is a single ordered list of middleware plus its terminal action.
type Chain struct {
	middlewares []Middleware
	terminal    Terminal
}

// NewChain creates a Chain whose terminal action is terminal.
func NewChain(terminal Terminal) *Chain {
	if terminal == nil {
		terminal = func(*Context) error { return nil }
	}
	return &Chain{terminal: terminal}
}

// Use appends a middleware to the chain's execution order.
func (c *Chain) Use(mw Middleware) {
	c.middlewares = append(c.middlewares, mw)
}

// Execute runs ctx through every middleware in registration order, then
// the terminal action, unless a middleware sets ctx.ShouldSkip — in
// which case no further middleware or the terminal action runs, and
// Execute returns nil (the call completes normally, per spec section
// 4.H). The pipeline runs serially per invocation by construction: each
// call to Execute owns its own index into the same middleware slice, so
// concurrent invocations never share mutable state.
func (c *Chain) Execute(ctx *Context) error {
	return c.runFrom(0, ctx)
}

func (c *Chain) runFrom(index int, ctx *Context) error {
	if ctx.ShouldSkip {
		return nil
	}
	if index >= len(c.middlewares) {
		return c.terminal(ctx)
	}

	mw := c.middlewares[index]
	return mw(ctx, func(ctx *Context) error {
		return c.runFrom(index+1, ctx)
	})
}

// Pipeline owns the two independent chains spec section 4.H describes:
// Send and Receive. Use registers the same middleware on both.
type Pipeline struct {
	Send    *Chain
	Receive *Chain
}

// NewPipeline creates a Pipeline with the given terminal actions.
func NewPipeline(sendTerminal, receiveTerminal Terminal) *Pipeline {
	return &Pipeline{
		Send:    NewChain(sendTerminal),
		Receive: NewChain(receiveTerminal),
	}
}

// Use registers mw on both the send and receive chains.
func (p *Pipeline) Use(mw Middleware) {
	p.Send.Use(mw)
	p.Receive.Use(mw)
}
