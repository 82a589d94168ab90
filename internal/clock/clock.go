// Package clock provides the injectable time source eviction logic is
// built on, so tests can drive the cache's idea of "now" deterministically.
package clock

import "time"

// Clock is anything that can report the current time.
type Clock interface {
	Now() time.Time
}

// System is the production Clock, backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock that always reports the same instant, useful for
// the simplest deterministic tests.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Func adapts a plain function to a Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }
