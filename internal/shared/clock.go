package shared

import "time"

// Clock supplies the current time. Services receive it explicitly so tests
// can pin timestamps.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
