package deletion

import "sync"

// ConfirmationSlot routes host-confirmed outcomes to a single subscriber.
// Subscribing replaces any previous subscriber.
type ConfirmationSlot struct {
	mu  sync.Mutex
	gen uint64
	fn  func(Outcome)
}

func NewConfirmationSlot() *ConfirmationSlot {
	return &ConfirmationSlot{}
}

// Subscribe registers fn and returns a cancel func. Cancelling a
// registration that was already replaced does nothing.
func (s *ConfirmationSlot) Subscribe(fn func(Outcome)) func() {
	s.mu.Lock()
	s.gen++
	mine := s.gen
	s.fn = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == mine {
			s.fn = nil
		}
	}
}

// Deliver hands out to the current subscriber. It reports false when nobody
// is subscribed.
func (s *ConfirmationSlot) Deliver(out Outcome) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(out)
	return true
}
