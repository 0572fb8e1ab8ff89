package clock

import "time"

// Clock is the source of "now" for everything time-dependent in the engine
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns the wall clock
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}
