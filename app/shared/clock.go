package shared

import "time"

// Clock abstracts wall-clock reads so elapsed-time math can be driven
// deterministically in tests. All timeout decisions in the duel engine go
// through a single Clock so both participants are measured against the same
// source.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock returns a Clock backed by time.Now.
func NewRealClock() Clock { return realClock{} }
