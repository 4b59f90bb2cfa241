// Package durable models the reachability of an optional durable backend
// (Redis, Postgres, brokers). Every code path that touches one checks its
// capability once per operation and falls back to its degraded behavior.
package durable

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

type State int32

const (
	Available State = iota
	Degraded
)

func (s State) String() string {
	if s == Available {
		return "available"
	}
	return "degraded"
}

// PingFunc checks a backend. A nil error means it is reachable.
type PingFunc func(ctx context.Context) error

type Capability struct {
	name  string
	state atomic.Int32
}

// New returns a capability in the Available state.
func New(name string) *Capability {
	return &Capability{name: name}
}

// Disabled returns a capability for a backend that is not configured. It
// stays Degraded until MarkAvailable is called.
func Disabled(name string) *Capability {
	c := &Capability{name: name}
	c.state.Store(int32(Degraded))
	return c
}

func (c *Capability) Name() string { return c.name }

func (c *Capability) State() State {
	if c == nil {
		return Degraded
	}
	return State(c.state.Load())
}

func (c *Capability) Available() bool {
	return c.State() == Available
}

// MarkDegraded records a failure. The transition is logged once.
func (c *Capability) MarkDegraded(err error) {
	if c == nil {
		return
	}
	if c.state.Swap(int32(Degraded)) == int32(Available) {
		slog.Warn("backend degraded", "backend", c.name, "error", err)
	}
}

func (c *Capability) MarkAvailable() {
	if c == nil {
		return
	}
	if c.state.Swap(int32(Available)) == int32(Degraded) {
		slog.Info("backend available", "backend", c.name)
	}
}

// Observe updates the state from the outcome of a backend call and returns
// err unchanged.
func (c *Capability) Observe(err error) error {
	if err != nil {
		c.MarkDegraded(err)
	} else {
		c.MarkAvailable()
	}
	return err
}

// Watch pings the backend every interval until ctx is done.
func (c *Capability) Watch(ctx context.Context, interval time.Duration, ping PingFunc) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		_ = c.Observe(ping(pctx))
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
