package readiness

import "time"

// Clock abstracts time so the poller can be driven deterministically in tests
// with a virtual clock instead of real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall-clock implementation used outside tests.
func SystemClock() Clock { return realClock{} }
