package progress

// Subscriber is one connected client's view of a session. It is detached only
// by its own Close (connection teardown) or by session eviction, never by
// another party, so there is no write-after-close race on the event channel.
type Subscriber struct {
	session *Session
	ch      chan Event
	closed  bool
}

// Events is the stream of connected/progress/complete events.
func (sub *Subscriber) Events() <-chan Event {
	return sub.ch
}

// Close detaches the subscriber from its session. Safe to call once per
// subscriber; the session and sibling subscribers are unaffected.
func (sub *Subscriber) Close() {
	s := sub.session
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.closeLocked()
}

func (sub *Subscriber) closeLocked() {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(sub.session.subs, sub)
	close(sub.ch)
}

// subscribe attaches a new subscriber and synchronously queues the connected
// event with a full snapshot, so a late joiner immediately sees the current
// per-file stages.
func (s *Session) subscribe() *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{session: s, ch: make(chan Event, subscriberBuffer)}
	s.subs[sub] = struct{}{}
	sub.ch <- Event{Type: "connected", Data: s.snapshotLocked()}
	return sub
}

// closeSubscribers drops every attached subscriber. Called by session
// cleanup on eviction.
func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.closeLocked()
	}
}

// SubscriberCount returns the number of currently attached subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
