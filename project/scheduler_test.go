package project

import (
	"testing"
	"time"
)

// loopHarness drives the scheduler from tests: it records emits and can
// stop the loop from the idle chain.
type loopHarness struct {
	sched    *Scheduler
	emits    []OutputEvent
	onIdle   func(interval IdleInterval) bool
	emitHook func(evt OutputEvent)
}

func (h *loopHarness) On_idle_cpu(interval IdleInterval) bool {
	if h.onIdle != nil {
		return h.onIdle(interval)
	}
	if h.sched.Buffer_len() == 0 {
		h.sched.Exit_event_loop()
	}
	return false
}

func (h *loopHarness) Emit(evt OutputEvent) {
	h.emits = append(h.emits, evt)
	if h.emitHook != nil {
		h.emitHook(evt)
	}
}

func newHarness(buffer int) *loopHarness {
	h := &loopHarness{}
	h.sched = NewScheduler(h, buffer, 5*time.Millisecond)
	return h
}

func TestEventLoopEmitsInDeadlineOrder(t *testing.T) {
	h := newHarness(16)
	base := h.sched.Now()
	// queued out of order, plus a deadline tie on axes 1 and 2
	h.sched.Queue(StepEvent(base+8*time.Millisecond, 3, StepForward))
	h.sched.Queue(StepEvent(base+2*time.Millisecond, 0, StepForward))
	h.sched.Queue(StepEvent(base+5*time.Millisecond, 1, StepForward))
	h.sched.Queue(StepEvent(base+5*time.Millisecond, 2, StepBackward))
	h.sched.Event_loop()

	if len(h.emits) != 4 {
		t.Fatalf("emitted %d events, want 4", len(h.emits))
	}
	wantAxes := []int{0, 1, 2, 3}
	var last time.Duration
	for i, evt := range h.emits {
		if evt.Axis != wantAxes[i] {
			t.Fatalf("emit %d was axis %d, want %d", i, evt.Axis, wantAxes[i])
		}
		if evt.Deadline < last {
			t.Fatalf("emit order broke deadline order")
		}
		last = evt.Deadline
	}
}

func TestEventLoopHonorsDeadlines(t *testing.T) {
	h := newHarness(16)
	type stamped struct {
		deadline time.Duration
		at       time.Duration
	}
	var stamps []stamped
	sched := h.sched
	h.onIdle = func(interval IdleInterval) bool {
		if sched.Buffer_len() == 0 {
			sched.Exit_event_loop()
		}
		return false
	}
	base := sched.Now()
	for i := 1; i <= 4; i++ {
		sched.Queue(StepEvent(base+time.Duration(i)*10*time.Millisecond, 0, StepForward))
	}
	h.emitHook = func(evt OutputEvent) {
		stamps = append(stamps, stamped{evt.Deadline, sched.Now()})
	}
	sched.Event_loop()

	for _, st := range stamps {
		if st.at < st.deadline {
			t.Fatalf("event emitted %v before its deadline", st.deadline-st.at)
		}
		if st.at > st.deadline+20*time.Millisecond {
			t.Fatalf("event emitted %v late", st.at-st.deadline)
		}
	}
}

func TestBackPressure(t *testing.T) {
	h := newHarness(2)
	base := h.sched.Now() + time.Second
	h.sched.Queue(StepEvent(base, 0, StepForward))
	if !h.sched.Is_room_in_buffer() {
		t.Fatalf("one of two slots used; room expected")
	}
	h.sched.Queue(StepEvent(base, 0, StepForward))
	if h.sched.Is_room_in_buffer() {
		t.Fatalf("buffer full; no room expected")
	}
}

func TestPwmSelfReschedules(t *testing.T) {
	h := newHarness(16)
	sched := h.sched
	deadlineCount := 0
	h.onIdle = func(interval IdleInterval) bool {
		return false
	}
	h.emitHook = func(evt OutputEvent) {
		deadlineCount++
		if deadlineCount >= 7 {
			sched.Exit_event_loop()
		}
	}
	sched.Sched_pwm(20, 0.25, 10*time.Millisecond)
	sched.Event_loop()

	if len(h.emits) < 6 {
		t.Fatalf("pwm produced only %d edges", len(h.emits))
	}
	for i := 1; i < len(h.emits); i++ {
		prev, cur := h.emits[i-1], h.emits[i]
		if prev.Level == cur.Level {
			t.Fatalf("pwm did not alternate at edge %d", i)
		}
		gap := cur.Deadline - prev.Deadline
		var want time.Duration
		if prev.Level {
			want = 2500 * time.Microsecond
		} else {
			want = 7500 * time.Microsecond
		}
		if gap < want-time.Millisecond || gap > want+time.Millisecond {
			t.Fatalf("edge %d gap %v, want about %v", i, gap, want)
		}
	}
}

func TestPwmSteadyDutyStopsRescheduling(t *testing.T) {
	h := newHarness(16)
	sched := h.sched
	sched.Sched_pwm(20, 1.0, 10*time.Millisecond)
	h.onIdle = func(interval IdleInterval) bool {
		if sched.Buffer_len() == 0 {
			sched.Exit_event_loop()
		}
		return false
	}
	sched.Event_loop()
	if len(h.emits) != 1 || !h.emits[0].Level {
		t.Fatalf("full duty should settle to one high edge, got %v", h.emits)
	}
	if sched.Num_active_pwm() != 1 {
		t.Fatalf("channel should remain accounted as active")
	}
}
