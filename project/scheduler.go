// Scheduler meters output events to hardware at their deadlines and
// hands spare time to the idle-cpu chain. Single-threaded cooperative:
// the event loop owns the thread, everything else runs from its idle
// callbacks. The final stretch before a deadline is busy-waited.
package project

import (
	"time"

	"p3c/common/logger"
	"p3c/common/utils/maths"
	"p3c/project/queue"
)

type IdleInterval int

const (
	// IdleShort is a brief gap before a nearby deadline; handlers must
	// return quickly and leave host I/O alone.
	IdleShort IdleInterval = iota
	// IdleWide is granted when the queue is drained or on the periodic
	// promotion tick; host I/O is tended here.
	IdleWide
)

type SchedulerInterface interface {
	// On_idle_cpu returns true while some handler still wants CPU.
	On_idle_cpu(interval IdleInterval) bool
	// Emit performs the hardware action of an event.
	Emit(evt OutputEvent)
}

// shortThreshold is the window before a deadline in which the loop stops
// handing out idle time and spins.
const shortThreshold = 100 * time.Microsecond

// widePromotionEvery promotes one in this many short idle grants to a
// wide one so host I/O is still tended while the queue stays busy.
const widePromotionEvery = 32

type schedItem struct {
	evt OutputEvent
}

func (i schedItem) When() time.Duration {
	return i.evt.Deadline
}

// PwmChannel is a periodic toggle pair on one pin, implemented as a
// self-rescheduling event.
type PwmChannel struct {
	Pin       int
	Duty      float64
	Period    time.Duration
	scheduled bool
}

type Scheduler struct {
	iface           SchedulerInterface
	queue           *queue.EventQueue
	pwm             map[int]*PwmChannel
	maxSleep        time.Duration
	defaultMaxSleep time.Duration
	start           time.Time
	exit            bool
	idleTick        int
}

func NewScheduler(iface SchedulerInterface, bufferSize int, maxSleep time.Duration) *Scheduler {
	return &Scheduler{
		iface:           iface,
		queue:           queue.NewEventQueue(bufferSize),
		pwm:             map[int]*PwmChannel{},
		maxSleep:        maxSleep,
		defaultMaxSleep: maxSleep,
		start:           time.Now(),
	}
}

// Now is the scheduler's monotonic clock; all deadlines live on it.
func (s *Scheduler) Now() time.Duration {
	return time.Since(s.start)
}

func (s *Scheduler) Is_room_in_buffer() bool {
	return s.queue.Is_room()
}

func (s *Scheduler) Buffer_len() int {
	return s.queue.Len()
}

// Queue inserts a scheduled event. Producers must have seen
// Is_room_in_buffer; exceeding the bound corrupts hardware timing, so it
// is fatal.
func (s *Scheduler) Queue(evt OutputEvent) {
	if !s.queue.Put(schedItem{evt}) {
		logger.Fatalf("scheduler: %v (bound %d)", ErrBufferFull, s.queue.Bound())
	}
}

func (s *Scheduler) Set_buffer_size(n int) {
	s.queue.Set_bound(n)
}

func (s *Scheduler) Set_max_sleep(d time.Duration) {
	s.maxSleep = d
}

func (s *Scheduler) Set_default_max_sleep() {
	s.maxSleep = s.defaultMaxSleep
}

func (s *Scheduler) Num_active_pwm() int {
	n := 0
	for _, ch := range s.pwm {
		if ch.scheduled || ch.Duty > 0 {
			n++
		}
	}
	return n
}

// Sched_pwm installs or retunes a periodic toggle pair on pin. Duty 0
// and 1 settle to a steady level; anything between self-reschedules.
func (s *Scheduler) Sched_pwm(pin int, duty float64, maxPeriod time.Duration) {
	ch, ok := s.pwm[pin]
	if !ok {
		ch = &PwmChannel{Pin: pin}
		s.pwm[pin] = ch
	}
	ch.Duty = maths.Clamp(duty, 0, 1)
	ch.Period = maxPeriod
	if !ch.scheduled {
		ch.scheduled = true
		// A channel installed while the buffer is narrowed (homing) still
		// needs its self-reschedule slot.
		if !s.queue.Is_room() {
			s.queue.Set_bound(s.queue.Bound() + 1)
		}
		s.Queue(PinLevelEvent(s.Now(), pin, ch.Duty > 0))
	}
}

// reschedPwm queues the follow-up transition after a pwm edge emitted at
// deadline. Steady duties stop rescheduling until the duty changes.
func (s *Scheduler) reschedPwm(evt OutputEvent) {
	ch, ok := s.pwm[evt.Pin]
	if !ok || !ch.scheduled {
		return
	}
	if ch.Duty <= 0 || ch.Duty >= 1 {
		steady := ch.Duty >= 1
		if evt.Level == steady {
			ch.scheduled = false
			return
		}
		s.Queue(PinLevelEvent(evt.Deadline, ch.Pin, steady))
		return
	}
	var dwell time.Duration
	if evt.Level {
		dwell = time.Duration(ch.Duty * float64(ch.Period))
	} else {
		dwell = time.Duration((1 - ch.Duty) * float64(ch.Period))
	}
	s.Queue(PinLevelEvent(evt.Deadline+dwell, ch.Pin, !evt.Level))
}

func (s *Scheduler) dispatch(evt OutputEvent) {
	s.iface.Emit(evt)
	if evt.Kind == EventPinLevel {
		s.reschedPwm(evt)
	}
}

func (s *Scheduler) Exit_event_loop() {
	s.exit = true
}

// onIdle grants idle time, periodically promoting short grants to wide.
func (s *Scheduler) onIdle(interval IdleInterval) bool {
	if interval == IdleShort {
		s.idleTick++
		if s.idleTick%widePromotionEvery == 0 {
			interval = IdleWide
		}
	}
	return s.iface.On_idle_cpu(interval)
}

// Event_loop runs until Exit_event_loop. Events emit in ascending
// deadline order; equal deadlines in insertion order.
func (s *Scheduler) Event_loop() {
	s.exit = false
	for !s.exit {
		item, ok := s.queue.Peek()
		if !ok {
			if !s.iface.On_idle_cpu(IdleWide) {
				time.Sleep(s.maxSleep)
			}
			continue
		}
		evt := item.(schedItem).evt
		if evt.Deadline > s.Now()+shortThreshold {
			s.waitNear(evt.Deadline)
			if s.exit {
				return
			}
			// The idle chain may have queued an earlier event.
			if head, ok := s.queue.Peek(); ok && head.When() < evt.Deadline {
				continue
			}
		}
		for s.Now() < evt.Deadline {
			// spin out the final stretch
		}
		s.queue.Pop()
		s.dispatch(evt)
	}
}

// waitNear hands out idle time, sleeping when nobody wants CPU, until
// the deadline is within the spin window.
func (s *Scheduler) waitNear(deadline time.Duration) {
	for !s.exit {
		remain := deadline - s.Now() - shortThreshold
		if remain <= 0 {
			return
		}
		if s.onIdle(IdleShort) {
			continue
		}
		sleep := remain
		if sleep > s.maxSleep {
			sleep = s.maxSleep
		}
		time.Sleep(sleep)
	}
}
