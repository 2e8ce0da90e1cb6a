package session

import "sync"

// EventKind says what changed in a session.
type EventKind int

// Session events.
const (
	SourceLoaded EventKind = iota
	SourceCleared
)

func (k EventKind) String() string {
	switch k {
	case SourceLoaded:
		return "source_loaded"
	case SourceCleared:
		return "source_cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to session listeners.
type Event struct {
	Kind   EventKind
	Source string
	Rows   int
}

// notifier broadcasts events to subscribed listeners.
type notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[chan Event]struct{})}
}

// subscribe returns a channel that receives events. The caller must call
// unsubscribe when done.
func (n *notifier) subscribe(buffer int) chan Event {
	ch := make(chan Event, max(buffer, 1))
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// unsubscribe removes a listener channel and closes it.
func (n *notifier) unsubscribe(ch chan Event) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// broadcast sends ev to every listener without blocking. A listener whose
// buffer is full misses the event.
func (n *notifier) broadcast(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners {
		close(ch)
		delete(n.listeners, ch)
	}
}
