package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// CountCheck reports unhealthy when count() exceeds threshold. what names
// the counted thing in the error.
func CountCheck(what string, count func() int, threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := count(); n > threshold {
			return errors.Errorf("%s count %d exceeds threshold %d", what, n, threshold)
		}
		return nil
	}
}

// GoroutineCountCheck reports unhealthy when the number of goroutines
// exceeds threshold. It catches goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return CountCheck("goroutine", runtime.NumGoroutine, threshold)
}

// GCMaxPauseCheck reports unhealthy when a recent stop-the-world GC pause
// exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}
