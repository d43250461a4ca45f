package sys

import (
	"runtime/debug"

	"github.com/petermattis/goid"

	"p3c/common/logger"
)

// GetGID returns the id of the calling goroutine. Used to tag greenlet
// activity and panic reports in the log.
func GetGID() uint64 {
	return uint64(goid.Get())
}

// CatchPanic recovers a panic in a background task and logs it with the
// goroutine id and stack. Intended for use as a deferred call.
func CatchPanic(name string) {
	if err := recover(); err != nil {
		logger.Errorf("panic in %s (gid %d): %v\n%s", name, GetGID(), err, string(debug.Stack()))
	}
}
