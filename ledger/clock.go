package ledger

import "time"

// Clock abstracts "now" so catch-up math is testable against a fixed
// reference point. Production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct{ At time.Time }

func (f FixedClock) Now() time.Time { return f.At }
