// Package async wraps background goroutines with panic recovery so a
// misbehaving side task (notifications, cache warmup) can never take down a
// research run.
package async

import (
	"runtime/debug"
	"sync"

	"deepresearch/internal/logging"
)

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger logging.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// GoWait runs fn like Go but tracks it on wg, letting callers flush pending
// side tasks before exit.
func GoWait(wg *sync.WaitGroup, logger logging.Logger, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger logging.Logger, name string) {
	if r := recover(); r != nil {
		logger = logging.OrNop(logger)
		if name == "" {
			logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
			return
		}
		logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
	}
}
