package poller

import "time"

// Handle cancels a pending scheduled fire. One handle kind covers every
// timer flavor so callers never have to track which primitive was used.
type Handle interface {
	Cancel()
}

// Scheduler runs fn once after d. idle marks the fire as deferrable
// low-priority work; a scheduler may delay it up to d but no further.
// Schedule must not invoke fn synchronously.
type Scheduler interface {
	Schedule(d time.Duration, idle bool, fn func()) Handle
}

// TimerScheduler backs both flavors with time.AfterFunc. The idle flag is
// kept in the contract so tests and alternative schedulers can observe the
// policy.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, idle bool, fn func()) Handle {
	return timerHandle{time.AfterFunc(d, fn)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Cancel() {
	h.timer.Stop()
}
