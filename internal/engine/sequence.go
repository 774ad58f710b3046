package engine

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers, starting at 1.
type Sequencer struct {
	last atomic.Uint64
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last number handed out, 0 if none.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
