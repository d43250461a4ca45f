package greenlet

import (
	"p3c/common/logger"
	"p3c/common/utils/sys"
)

// Completion is a one-shot handoff between a greenlet and the event
// loop: the loop completes it, the greenlet waits on it.
type Completion struct {
	done   chan struct{}
	result error
}

func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) Complete(err error) {
	c.result = err
	close(c.done)
}

func (c *Completion) Wait() error {
	<-c.done
	return c.result
}

func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Greenlet runs a named routine on its own goroutine while the event
// loop keeps the machine serviced; the loop observes Done to learn when
// the routine has finished.
type Greenlet struct {
	Name string
	GId  uint64
	done chan error
}

func Spawn(name string, run func() error) *Greenlet {
	g := &Greenlet{Name: name, done: make(chan error, 1)}
	go func() {
		defer sys.CatchPanic(name)
		g.GId = sys.GetGID()
		logger.Debugf("greenlet %s started (gid %d)", g.Name, g.GId)
		g.done <- run()
	}()
	return g
}

// Done polls for completion without blocking.
func (g *Greenlet) Done() (error, bool) {
	select {
	case err := <-g.done:
		return err, true
	default:
		return nil, false
	}
}
