package native

import (
	"sync"
	"time"

	"github.com/smazurov/screencap/internal/engine"
)

// outbox carries engine messages to the controller. GStreamer calls the
// bus sync handler on streaming threads that outlive Close, so every
// sender registers with enter and the message channel is closed only
// after all registered senders have left.
type outbox struct {
	mu     sync.Mutex
	closed bool
	msgs   chan engine.Message
	quit   chan struct{}
	wg     sync.WaitGroup
}

func newOutbox(size int) *outbox {
	return &outbox{
		msgs: make(chan engine.Message, size),
		quit: make(chan struct{}),
	}
}

// enter registers a sender. It reports false once shutdown has begun.
func (o *outbox) enter() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

func (o *outbox) leave() {
	o.wg.Done()
}

// send must be called between enter and leave.
func (o *outbox) send(m engine.Message) {
	select {
	case o.msgs <- m:
	case <-o.quit:
	}
}

// shutdown refuses new senders and unblocks the registered ones.
func (o *outbox) shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.quit)
	}
}

// close shuts down, waits for the senders and closes the channel.
func (o *outbox) close() {
	o.shutdown()
	o.wg.Wait()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msgs != nil {
		close(o.msgs)
		o.msgs = nil
	}
}

// requestWindow asks the controller for a window handle for source and
// waits up to wait for the answer. Zero means none.
func (o *outbox) requestWindow(source string, wait time.Duration) uintptr {
	if !o.enter() {
		return 0
	}
	defer o.leave()

	reply := make(chan uintptr, 1)
	o.send(engine.Message{
		Kind:   engine.MessageWindowHandle,
		Source: source,
		Reply: func(h uintptr) {
			select {
			case reply <- h:
			default:
			}
		},
	})

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case h := <-reply:
		return h
	case <-timer.C:
		return 0
	case <-o.quit:
		return 0
	}
}
