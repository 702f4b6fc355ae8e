package delivery

import "time"

// Clock abstracts time so retry-timing tests can be deterministic, per
// spec.md §9 ("a clock, for deterministic retry-timing tests").
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
