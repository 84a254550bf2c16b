package store

import "sync"

// notifier implements the subscribe/unsubscribe half of the Store interface.
// Listeners are invoked synchronously; they are expected to be cheap (flip a
// flag, push to a channel) and must not call back into the store.
type notifier struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	nextToken int
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its token.
func (n *notifier) Subscribe(l Listener) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextToken++
	n.listeners[n.nextToken] = l
	return n.nextToken
}

// Unsubscribe removes a listener; unknown tokens are ignored.
func (n *notifier) Unsubscribe(token int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.listeners, token)
}

// notify delivers an event to all current listeners.
func (n *notifier) notify(ev Event) {
	n.mu.RLock()
	snapshot := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		snapshot = append(snapshot, l)
	}
	n.mu.RUnlock()

	for _, l := range snapshot {
		l(ev)
	}
}
