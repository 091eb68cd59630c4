package mutex

import (
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	acquiredTotal = metrics.NewCounter(`mutex_acquire_total{result="acquired"}`)
	timeoutTotal  = metrics.NewCounter(`mutex_acquire_total{result="timeout"}`)
	errorTotal    = metrics.NewCounter(`mutex_acquire_total{result="error"}`)

	releasedTotal        = metrics.NewCounter(`mutex_release_total{result="released"}`)
	releaseConflictTotal = metrics.NewCounter(`mutex_release_total{result="conflict"}`)

	extendedTotal        = metrics.NewCounter(`mutex_refresh_total{result="extended"}`)
	refreshConflictTotal = metrics.NewCounter(`mutex_refresh_total{result="conflict"}`)

	acquireWait = metrics.NewHistogram(`mutex_acquire_wait_seconds`)
)

// heldLocks counts locks tracked by all managers in the process.
var heldLocks atomic.Int64

var _ = metrics.NewGauge(`mutex_held_locks`, func() float64 {
	return float64(heldLocks.Load())
})

func observeAcquire(start time.Time, acquired bool, err error) {
	acquireWait.UpdateDuration(start)
	switch {
	case err != nil:
		errorTotal.Inc()
	case acquired:
		acquiredTotal.Inc()
	default:
		timeoutTotal.Inc()
	}
}

func observeRelease(released bool) {
	if released {
		releasedTotal.Inc()
		return
	}
	releaseConflictTotal.Inc()
}

func observeRefresh(extended bool) {
	if extended {
		extendedTotal.Inc()
		return
	}
	refreshConflictTotal.Inc()
}
