package domain

import "time"

// Clock supplies event timestamps. Injecting it keeps Process pure and lets
// tests pin time to a known instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns a Clock backed by time.Now in UTC.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// FixedClock returns a Clock that always reports the same instant.
func FixedClock(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
