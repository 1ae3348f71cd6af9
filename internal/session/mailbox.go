package session

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded FIFO feeding a supervisor's event loop. Posting
// never blocks, so connection callbacks and timers can always deliver.
type mailbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	ready  chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{
		q:     queue.New(),
		ready: make(chan struct{}, 1),
	}
}

// post enqueues ev. It returns false once the mailbox is closed.
func (m *mailbox) post(ev any) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.q.Add(ev)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// pop dequeues the oldest event.
func (m *mailbox) pop() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.q.Length() == 0 {
		return nil, false
	}
	return m.q.Remove(), true
}

// close rejects further posts and returns whatever was still queued.
func (m *mailbox) close() []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	rest := make([]any, 0, m.q.Length())
	for m.q.Length() > 0 {
		rest = append(rest, m.q.Remove())
	}
	return rest
}
