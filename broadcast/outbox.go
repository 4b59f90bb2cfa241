package broadcast

import (
	"sync"
	"sync/atomic"
)

// WriteFunc delivers one message to the remote end. A non-nil error closes
// the outbox.
type WriteFunc func(msg []byte) error

// Outbox is a bounded per-subscriber send queue drained by its own
// goroutine. When full, the oldest queued message is dropped.
type Outbox struct {
	id     string
	queue  chan []byte
	write  WriteFunc
	onDrop func()

	mu        sync.Mutex
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewOutbox starts the writer goroutine. onDrop may be nil.
func NewOutbox(id string, size int, write WriteFunc, onDrop func()) *Outbox {
	if size < 1 {
		size = 1
	}
	o := &Outbox{
		id:      id,
		queue:   make(chan []byte, size),
		write:   write,
		onDrop:  onDrop,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) ID() string { return o.id }

// Enqueue never blocks. It returns false once the outbox is closed.
func (o *Outbox) Enqueue(msg []byte) bool {
	if o.Closed() {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		select {
		case o.queue <- msg:
			return true
		default:
		}
		select {
		case <-o.queue:
			o.dropped.Add(1)
			if o.onDrop != nil {
				o.onDrop()
			}
		default:
		}
	}
}

func (o *Outbox) Dropped() uint64 { return o.dropped.Load() }

func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

func (o *Outbox) Done() <-chan struct{} { return o.done }

// Stopped is closed once the writer goroutine has returned. After that the
// write func is never called again.
func (o *Outbox) Stopped() <-chan struct{} { return o.stopped }

func (o *Outbox) Closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

func (o *Outbox) run() {
	defer close(o.stopped)
	for {
		select {
		case <-o.done:
			return
		case msg := <-o.queue:
			if o.Closed() {
				return
			}
			if err := o.write(msg); err != nil {
				o.Close()
				return
			}
		}
	}
}
