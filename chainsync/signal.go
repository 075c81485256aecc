package chainsync

import "sync"

// TipSignal fires exactly once, the first time the follower observes that it
// has caught up with the node. Operators use it to gate downstream startup.
type TipSignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewTipSignal() *TipSignal {
	return &TipSignal{ch: make(chan struct{})}
}

// Signal marks the tip as reached. Idempotent.
func (s *TipSignal) Signal() {
	s.once.Do(func() { close(s.ch) })
}

// Done is closed once the tip has been reached.
func (s *TipSignal) Done() <-chan struct{} {
	return s.ch
}
