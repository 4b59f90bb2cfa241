package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const emitTimeout = 5 * time.Second

// Pipeline decouples event producers from slow sinks. Send never blocks;
// events are dropped when the buffer is full.
type Pipeline struct {
	sink   Sink
	ch     chan Event
	onDrop func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline starts the worker. A nil sink discards every event.
func NewPipeline(sink Sink, size int, onDrop func()) *Pipeline {
	p := &Pipeline{sink: sink, ch: make(chan Event, size), onDrop: onDrop}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Pipeline) Send(ev Event) bool {
	if p == nil || p.sink == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- ev:
		return true
	default:
		if p.onDrop != nil {
			p.onDrop()
		}
		slog.Warn("event dropped", "type", ev.Type, "entity_id", ev.EntityID)
		return false
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for ev := range p.ch {
		if p.sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		if err := p.sink.Emit(ctx, ev); err != nil {
			slog.Warn("event emit failed", "type", ev.Type, "entity_id", ev.EntityID, "error", err)
		}
		cancel()
	}
}

// Close drains buffered events and closes the sink. Sends after Close are
// discarded.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.wg.Wait()
	if p.sink != nil {
		return p.sink.Close()
	}
	return nil
}
