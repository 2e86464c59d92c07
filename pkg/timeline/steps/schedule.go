package steps

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// UTCCron returns a six-field cron expression (seconds first) firing daily
// at now+offset in UTC, together with that target instant
func UTCCron(now time.Time, offset time.Duration) (string, time.Time) {
	target := now.Add(offset).UTC()
	cron := fmt.Sprintf("%d %d %d * * *",
		target.Second(), target.Minute(), target.Hour())
	return cron, target
}

// RandomVersion returns a random semantic version string
func RandomVersion() string {
	return fmt.Sprintf("%d.%d.%d",
		rand.IntN(10), rand.IntN(100), rand.IntN(1000))
}
