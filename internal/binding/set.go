package binding

import (
	"sync"

	"cwc/internal/app"
)

// Set holds the live bindings for one server, keyed by service, and routes
// inbound ECM replies to whichever binding is both awaiting that sequence
// number and has ecm_reply_pending set — the reader-side matching rule.
type Set struct {
	mu       sync.Mutex
	bindings map[app.ServiceID]*Binding
}

// NewSet returns an empty binding set for one server.
func NewSet() *Set {
	return &Set{bindings: make(map[app.ServiceID]*Binding)}
}

// Add registers b under service, replacing and destroying any prior
// binding for the same service.
func (s *Set) Add(service app.ServiceID, b *Binding) {
	s.mu.Lock()
	prev := s.bindings[service]
	s.bindings[service] = b
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Destroy()
	}
}

// Remove drops and destroys the binding for service, if any.
func (s *Set) Remove(service app.ServiceID) {
	s.mu.Lock()
	b := s.bindings[service]
	delete(s.bindings, service)
	s.mu.Unlock()
	if b != nil {
		_ = b.Destroy()
	}
}

// Get returns the binding for service, if one exists.
func (s *Set) Get(service app.ServiceID) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[service]
	return b, ok
}

// Dispatch matches an inbound ECM reply (by seq) to its owning binding and
// applies it. Unmatched replies are silently discarded, mirroring the
// source protocol's "no ct found, ignore" behavior.
func (s *Set) Dispatch(seq uint16, body []byte) {
	s.mu.Lock()
	var target *Binding
	for _, b := range s.bindings {
		if pendingSeq, pending := b.PendingSeq(); pending && pendingSeq == seq {
			target = b
			break
		}
	}
	s.mu.Unlock()

	if target != nil {
		target.HandleECMReply(body)
	}
}

// Destroy tears down every binding in the set.
func (s *Set) Destroy() {
	s.mu.Lock()
	bindings := make([]*Binding, 0, len(s.bindings))
	for k, b := range s.bindings {
		bindings = append(bindings, b)
		delete(s.bindings, k)
	}
	s.mu.Unlock()
	for _, b := range bindings {
		_ = b.Destroy()
	}
}
