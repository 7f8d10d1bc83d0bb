package types

import "time"

// Clock supplies the current instant to eligibility checks and audit columns
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the wall clock, in UTC
func NewSystemClock() Clock {
	return systemClock{}
}
