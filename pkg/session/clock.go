package session

import "time"

// Clock abstracts time so timeout detection can be tested
// deterministically. time.Time carries a monotonic reading, so
// Now().Sub comparisons are immune to wall-clock adjustment.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the real time package.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}
