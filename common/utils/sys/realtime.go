package sys

import (
	"golang.org/x/sys/unix"

	"p3c/common/logger"
)

// SetupRealtime takes the best-effort steps toward sub-millisecond
// scheduling on a stock kernel: lock pages so step timing never waits
// on a page fault, and move the process onto the SCHED_FIFO realtime
// class. Both need elevated privileges; failures are logged and the
// process falls back to a niceness bump.
func SetupRealtime() {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		logger.Warnf("mlockall: %v (timing may jitter under memory pressure)", err)
	}
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: 30,
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		logger.Warnf("sched_setattr(SCHED_FIFO): %v (run as root or with CAP_SYS_NICE)", err)
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
			logger.Warnf("setpriority: %v", err)
		}
	}
}
