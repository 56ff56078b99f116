package services

import "time"

// Clock is the time source of a coordinator. Tests replace it to move
// through backoff windows without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}
