// Package testutil collects small helpers shared across this module's test
// files: a timezone-pinned clock constructor.
package testutil

import "time"

// UTCTime builds a UTC time.Time from a unix timestamp, so expectations in
// table-driven tests do not depend on the machine's local timezone.
func UTCTime(sec int64) time.Time {
	return time.Unix(sec, 0).In(time.UTC)
}
