// State maps G-code onto the motion pipeline and the IO drivers, tracks
// unit/position modes and the host zero reference, and owns the idle-cpu
// fan-out that keeps the planner, the host channels and the drivers
// serviced from the scheduler's spare time.
package project

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"p3c/common/config"
	"p3c/common/logger"
	"p3c/common/utils/maths"
	"p3c/project/greenlet"
)

type PositionMode int

const (
	PosAbsolute PositionMode = iota
	PosRelative
)

type LengthUnit int

const (
	UnitMm LengthUnit = iota
	UnitInch
)

const mmPerInch = 25.4

// homeRequest is one blocking motion request issued by the homing
// greenlet; the event loop starts it and completes done when the
// planner drains it.
type homeRequest struct {
	home bool
	dest Vector4
	vel  float64
	done *greenlet.Completion
}

type State struct {
	cfg       *config.MachineConfig
	backend   HardwareBackend
	scheduler *Scheduler
	planner   *MotionPlanner

	ioDrivers []IoDriver
	fan       *FanDriver
	hotend    *HeaterDriver
	bed       *HeaterDriver
	endstops  []*EndstopDriver

	positionMode    PositionMode
	extruderPosMode PositionMode
	unitMode        LengthUnit
	destMm          Vector4
	hostZero        Vector4
	feedRate        float64 // mm/s

	isHoming         bool
	isHomed          bool
	waitingForHotend bool
	doBufferMoves    bool
	shutdownAfter    bool
	lastPlannedTime  time.Duration

	comStack       []*Com
	jobs           []*PrintJob
	rootPersistent bool

	homeGreenlet *greenlet.Greenlet
	homeReqCh    chan homeRequest
	curHomeReq   *homeRequest
	homeStarted  bool
}

// NewState wires a machine from its configuration. rootCom is the host
// channel; persistentCom keeps it tended while M32 subprograms run.
func NewState(cfg *config.MachineConfig, backend HardwareBackend, rootCom *Com, persistentCom bool) (*State, error) {
	s := &State{
		cfg:             cfg,
		backend:         backend,
		positionMode:    PosAbsolute,
		extruderPosMode: PosAbsolute,
		unitMode:        UnitMm,
		feedRate:        cfg.DefaultFeedRate,
		doBufferMoves:   true,
		comStack:        []*Com{rootCom},
		rootPersistent:  persistentCom,
		homeReqCh:       make(chan homeRequest, 1),
	}
	s.scheduler = NewScheduler(s, cfg.Scheduler.BufferSize, cfg.MaxSleep())

	for _, a := range cfg.Axes {
		if a.EndstopPin == 0 {
			s.endstops = append(s.endstops, nil)
			continue
		}
		es := NewEndstopDriver(a.EndstopPin, backend)
		s.endstops = append(s.endstops, es)
		s.ioDrivers = append(s.ioDrivers, es)
	}
	coordMap, err := s.buildCoordMap()
	if err != nil {
		return nil, err
	}
	s.planner = NewMotionPlanner(coordMap, s.buildAccel())

	s.fan = NewFanDriver(cfg.FanPin)
	s.hotend = NewHeaterDriver("hotend", cfg.Hotend, 2.0, 120)
	s.bed = NewHeaterDriver("bed", cfg.Bed, 0.5, 300)
	s.ioDrivers = append(s.ioDrivers, s.fan, s.hotend, s.bed)
	return s, nil
}

func (s *State) buildAccel() AccelerationProfile {
	if s.cfg.AccelProfile == "none" {
		return NoAcceleration{}
	}
	return NewTrapezoidalAccel(s.cfg.MaxAccel)
}

func (s *State) buildCoordMap() (CoordMap, error) {
	checks := make([]func() bool, len(s.endstops))
	for i, es := range s.endstops {
		if es != nil {
			es := es
			checks[i] = es.Triggered
		}
	}
	var minMm, maxMm [3]float64
	if len(s.cfg.MinMm) == 3 {
		copy(minMm[:], s.cfg.MinMm)
		copy(maxMm[:], s.cfg.MaxMm)
	}
	switch s.cfg.Geometry {
	case "cartesian":
		return NewCartesianCoordMap(s.cfg.StepsPerMm, minMm, maxMm, checks, nil), nil
	case "corexy":
		return NewCorexyCoordMap(s.cfg.StepsPerMm, minMm, maxMm, checks, nil), nil
	case "linear_delta":
		return NewLinearDeltaCoordMap(s.cfg.DeltaRadius, s.cfg.RodLength, s.cfg.PrintRadius,
			maxMm[2], s.cfg.StepsPerMm, checks, nil), nil
	}
	return nil, fmt.Errorf("unknown geometry %q", s.cfg.Geometry)
}

func (s *State) Planner() *MotionPlanner {
	return s.planner
}

func (s *State) Scheduler() *Scheduler {
	return s.scheduler
}

// Run drives the event loop until M0, M112 or root EOF. Returns the
// process exit code.
func (s *State) Run() int {
	if err := s.backend.EnableSteppers(true); err != nil {
		logger.Errorf("enable steppers: %v", err)
	}
	s.scheduler.Event_loop()
	if err := s.backend.EnableSteppers(false); err != nil {
		logger.Errorf("disable steppers: %v", err)
	}
	return 0
}

// Emit performs a scheduled event on hardware. IO failures are logged,
// not fatal.
func (s *State) Emit(evt OutputEvent) {
	var err error
	switch evt.Kind {
	case EventStep:
		err = s.backend.Step(evt.Axis, evt.Direction)
	case EventPinLevel:
		err = s.backend.WritePin(evt.Pin, evt.Level)
	}
	if err != nil {
		logger.Errorf("%v: %v", ErrHardware, err)
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// On_idle_cpu is the scheduler's fan-out: blocking home requests, the
// planner pull under back-pressure, host channels on wide intervals, and
// every IO driver.
func (s *State) On_idle_cpu(interval IdleInterval) bool {
	needs := s.serviceHomeRequests()

	if s.scheduler.Is_room_in_buffer() {
		// While homing, the endstop must be consulted between steps, so
		// the next step is only planned after the previous deadline has
		// passed.
		if s.doBufferMoves || s.lastPlannedTime <= s.scheduler.Now() {
			evt := s.planner.Next_event()
			if !evt.IsNull() {
				s.scheduler.Queue(evt)
				s.lastPlannedTime = evt.Deadline
				if s.scheduler.Is_room_in_buffer() {
					needs = true
				}
			}
		}
	}

	if s.homeGreenlet != nil {
		if err, done := s.homeGreenlet.Done(); done {
			s.finishHoming(err)
		}
	}

	if s.shutdownAfter && !s.isHoming && s.planner.Ready_for_next_move() && s.lastPlannedTime <= s.scheduler.Now() {
		s.scheduler.Exit_event_loop()
		return false
	}

	if interval == IdleWide {
		s.tendComs()
	}

	for _, d := range s.ioDrivers {
		if d.On_idle_cpu(s.scheduler, interval) {
			needs = true
		}
	}
	return needs
}

// serviceHomeRequests starts and acknowledges the homing greenlet's
// blocking moves.
func (s *State) serviceHomeRequests() bool {
	if s.curHomeReq == nil {
		select {
		case r := <-s.homeReqCh:
			s.curHomeReq = &r
		default:
			return false
		}
	}
	r := s.curHomeReq
	if !s.homeStarted {
		if !s.planner.Ready_for_next_move() {
			return true
		}
		start := maxDuration(s.lastPlannedTime, s.scheduler.Now())
		var err error
		if r.home {
			err = s.planner.Home_endstops(start, s.cfg.HomeVelocity)
		} else {
			err = s.planner.Move_to(start, r.dest, r.vel, -s.cfg.MaxRetractRate, s.cfg.MaxExtrudeRate)
		}
		if err != nil {
			r.done.Complete(err)
			s.curHomeReq = nil
			return false
		}
		s.homeStarted = true
		// A home with no endstop steppers completes in place.
		if s.planner.Ready_for_next_move() {
			s.ackHomeRequest()
		}
		return true
	}
	if s.planner.Ready_for_next_move() {
		s.ackHomeRequest()
	}
	return false
}

func (s *State) ackHomeRequest() {
	s.curHomeReq.done.Complete(nil)
	s.curHomeReq = nil
	s.homeStarted = false
}

// tendComs services the persistent root channel and the top of the M32
// file stack, then pops drained subprograms.
func (s *State) tendComs() {
	if len(s.comStack) == 0 {
		return
	}
	if s.rootPersistent && len(s.comStack) > 1 {
		s.tendComChannel(s.comStack[0])
	}
	if len(s.comStack) > 0 {
		s.tendComChannel(s.comStack[len(s.comStack)-1])
	}
	for len(s.comStack) > 1 && s.comStack[len(s.comStack)-1].Is_at_eof() {
		s.popSubprogram()
	}
	if len(s.comStack) == 1 && s.comStack[0].Is_closed() {
		// host went away / file finished: flush moves and exit 0
		s.shutdownAfter = true
	}
}

func (s *State) popSubprogram() {
	top := s.comStack[len(s.comStack)-1]
	top.Close()
	s.comStack = s.comStack[:len(s.comStack)-1]
	if len(s.jobs) > 0 {
		job := s.jobs[len(s.jobs)-1]
		s.jobs = s.jobs[:len(s.jobs)-1]
		logger.Infof("finished %s", job.Describe())
	}
}

func (s *State) tendComChannel(com *Com) {
	if !com.Tend() {
		return
	}
	cmd := com.Get_command()
	if s.execute(cmd, com) {
		logger.Debugf("com %s: %s", com.Name(), cmd.Raw)
	}
}

func (s *State) setMoveBuffering(buffer bool) {
	s.doBufferMoves = buffer
	if buffer {
		s.scheduler.Set_default_max_sleep()
		s.scheduler.Set_buffer_size(s.cfg.Scheduler.BufferSize)
	} else {
		s.scheduler.Set_max_sleep(time.Millisecond)
		s.scheduler.Set_buffer_size(s.scheduler.Num_active_pwm() + 1)
	}
}

// coordToDest folds one host coordinate into the running destination:
// unit conversion, host-zero offset, and relative addressing.
func (s *State) coordToDest(cmd *Command, letter byte, cur, zero float64, mode PositionMode) float64 {
	if !cmd.Has(letter) {
		return cur
	}
	v := cmd.Get(letter, 0)
	if s.unitMode == UnitInch {
		v *= mmPerInch
	}
	if mode == PosRelative {
		return cur + v
	}
	return v + zero
}

func (s *State) commandDest(cmd *Command) Vector4 {
	return Vector4{
		X: s.coordToDest(cmd, 'X', s.destMm.X, s.hostZero.X, s.positionMode),
		Y: s.coordToDest(cmd, 'Y', s.destMm.Y, s.hostZero.Y, s.positionMode),
		Z: s.coordToDest(cmd, 'Z', s.destMm.Z, s.hostZero.Z, s.positionMode),
		E: s.coordToDest(cmd, 'E', s.destMm.E, s.hostZero.E, s.extruderPosMode),
	}
}

// feedToMmPerSec converts an F parameter (mm/min regardless of unit
// mode) and clamps it to the machine limit.
func (s *State) feedToMmPerSec(f float64) float64 {
	return maths.Clamp(f/60, 0.01, s.cfg.MaxVelocity)
}

func (s *State) isHotendReady() bool {
	if s.waitingForHotend {
		s.waitingForHotend = s.hotend.Current() < s.hotend.Target()
	}
	return !s.waitingForHotend
}

func (s *State) startTime() time.Duration {
	return maxDuration(s.lastPlannedTime, s.scheduler.Now())
}

func (s *State) queueMovement(dest Vector4) error {
	err := s.planner.Move_to(s.startTime(), dest, s.feedRate,
		-s.cfg.MaxRetractRate, s.cfg.MaxExtrudeRate)
	if err != nil {
		return err
	}
	s.destMm = dest
	return nil
}

func (s *State) queueArc(dest Vector4, center Vector3, cw bool) error {
	err := s.planner.Arc_to(s.startTime(), dest, center, s.feedRate,
		-s.cfg.MaxRetractRate, s.cfg.MaxExtrudeRate, cw)
	if err != nil {
		return err
	}
	s.destMm = dest
	return nil
}

// homeEndstops launches the geometry's home routine on a greenlet; the
// event loop keeps running and drives its blocking moves.
func (s *State) homeEndstops() {
	if s.isHoming {
		return
	}
	s.isHoming = true
	s.setMoveBuffering(false)
	iface := &stateCoordMapInterface{s}
	s.homeGreenlet = greenlet.Spawn("home", func() error {
		return s.planner.CoordMap().Execute_home_routine(iface)
	})
}

func (s *State) finishHoming(err error) {
	s.homeGreenlet = nil
	s.isHoming = false
	s.setMoveBuffering(true)
	if err != nil {
		logger.Errorf("homing failed: %v", err)
		return
	}
	s.isHomed = true
	s.destMm = s.planner.Cartesian_position()
	logger.Infof("homed; position %+v", s.destMm)
}

// stateCoordMapInterface adapts State for a home routine: its calls
// block the greenlet until the event loop has drained each request.
type stateCoordMapInterface struct {
	s *State
}

func (i *stateCoordMapInterface) Move_to(dest Vector4, velXyz float64) error {
	if velXyz <= 0 {
		velXyz = i.s.cfg.HomeVelocity
	}
	done := greenlet.NewCompletion()
	i.s.homeReqCh <- homeRequest{dest: dest, vel: velXyz, done: done}
	return done.Wait()
}

func (i *stateCoordMapInterface) Home_move() error {
	done := greenlet.NewCompletion()
	i.s.homeReqCh <- homeRequest{home: true, done: done}
	return done.Wait()
}

func (i *stateCoordMapInterface) Actual_cartesian_position() Vector4 {
	return i.s.planner.Cartesian_position()
}

// movementAllowed gates motion commands; a false return leaves the
// command pending so it retries next cycle.
func (s *State) movementAllowed() bool {
	return s.planner.Ready_for_next_move() && s.isHotendReady() && !s.isHoming && s.curHomeReq == nil
}

// execute runs one command and sends its single reply. Returning false
// defers the command without replying.
func (s *State) execute(cmd *Command, com *Com) bool {
	switch cmd.Opcode {
	case "G0", "G1":
		if !s.movementAllowed() {
			return false
		}
		if !s.isHomed && s.cfg.AutoHome {
			s.homeEndstops()
			return false
		}
		if cmd.Has('F') {
			s.feedRate = s.feedToMmPerSec(cmd.Get('F', 0))
		}
		if err := s.queueMovement(s.commandDest(cmd)); err != nil {
			com.Reply(ErrResponse(err.Error()))
			return true
		}
		com.Reply(ResponseOk)
	case "G2", "G3":
		if !s.movementAllowed() {
			return false
		}
		if !s.isHomed && s.cfg.AutoHome {
			s.homeEndstops()
			return false
		}
		if cmd.Has('F') {
			s.feedRate = s.feedToMmPerSec(cmd.Get('F', 0))
		}
		dest := s.commandDest(cmd)
		// I/J/K are offsets from the current position to the center.
		scale := 1.0
		if s.unitMode == UnitInch {
			scale = mmPerInch
		}
		center := Vector3{
			X: s.destMm.X + cmd.Get('I', 0)*scale,
			Y: s.destMm.Y + cmd.Get('J', 0)*scale,
			Z: s.destMm.Z + cmd.Get('K', 0)*scale,
		}
		if err := s.queueArc(dest, center, cmd.Opcode == "G2"); err != nil {
			com.Reply(ErrResponse(err.Error()))
			return true
		}
		com.Reply(ResponseOk)
	case "G20":
		s.unitMode = UnitInch
		com.Reply(ResponseOk)
	case "G21":
		s.unitMode = UnitMm
		com.Reply(ResponseOk)
	case "G28":
		if !s.movementAllowed() {
			return false
		}
		// Selector letters (G28 X) are accepted but all axes home.
		com.Reply(ResponseOk)
		s.homeEndstops()
	case "G90":
		s.positionMode = PosAbsolute
		s.extruderPosMode = PosAbsolute
		com.Reply(ResponseOk)
	case "G91":
		s.positionMode = PosRelative
		s.extruderPosMode = PosRelative
		com.Reply(ResponseOk)
	case "G92":
		s.setHostZero(cmd)
		com.Reply(ResponseOk)
	case "M0":
		s.shutdownAfter = true
		com.Reply(ResponseOk)
	case "M17":
		s.replyIo(com, s.backend.EnableSteppers(true))
	case "M18", "M84":
		s.replyIo(com, s.backend.EnableSteppers(false))
	case "M21", "M22", "M110":
		com.Reply(ResponseOk)
	case "M32":
		s.executeM32(cmd, com)
	case "M82":
		s.extruderPosMode = PosAbsolute
		com.Reply(ResponseOk)
	case "M83":
		s.extruderPosMode = PosRelative
		com.Reply(ResponseOk)
	case "M99":
		com.Reply(ResponseOk)
		if len(s.comStack) > 1 && com == s.comStack[len(s.comStack)-1] {
			s.popSubprogram()
		} else if len(s.comStack) == 1 {
			logger.Warnf("M99 outside a subprogram; exiting after moves")
			s.shutdownAfter = true
		}
	case "M104":
		if cmd.Has('S') {
			s.hotend.Set_target(s.scheduler, cmd.Get('S', 0))
		}
		com.Reply(ResponseOk)
	case "M105":
		com.Reply(OkResponse(
			[2]string{"T", formatTemp(s.hotend.Current())},
			[2]string{"B", formatTemp(s.bed.Current())},
		))
	case "M106":
		duty := cmd.Get('S', 1)
		if duty > 1 {
			duty /= 255
		}
		s.fan.Set_duty(s.scheduler, duty)
		com.Reply(ResponseOk)
	case "M107":
		s.fan.Set_duty(s.scheduler, 0)
		com.Reply(ResponseOk)
	case "M109":
		if cmd.Has('S') {
			s.hotend.Set_target(s.scheduler, cmd.Get('S', 0))
		}
		s.waitingForHotend = true
		com.Reply(ResponseOk)
	case "M111":
		logger.SetLevelBits(int(cmd.Get('S', 0)))
		com.Reply(ResponseOk)
	case "M112":
		com.Reply(ResponseOk)
		logger.Errorf("emergency stop")
		logger.Sync()
		os.Exit(1)
	case "M115":
		com.Reply(OkResponse(
			[2]string{"FIRMWARE_NAME", "p3c"},
			[2]string{"FIRMWARE_VERSION", FirmwareVersion},
		))
	case "M116":
		s.waitingForHotend = true
		com.Reply(ResponseOk)
	case "M117":
		logger.Infof("M117 message: %q", cmd.Text)
		com.Reply(ResponseOk)
	case "M140":
		if cmd.Has('S') {
			s.bed.Set_target(s.scheduler, cmd.Get('S', 0))
		}
		com.Reply(ResponseOk)
	default:
		if cmd.Opcode[0] == 'T' {
			com.Reply(ResponseOk)
			return true
		}
		com.Reply(ErrResponse(fmt.Sprintf("%v: %s", ErrUnknownOpcode, cmd.Opcode)))
	}
	return true
}

const FirmwareVersion = "0.4.0"

func formatTemp(t float64) string {
	return strconv.FormatFloat(math.Round(t*10)/10, 'f', -1, 64)
}

func (s *State) replyIo(com *Com, err error) {
	if err != nil {
		com.Reply(ErrResponse(err.Error()))
		return
	}
	com.Reply(ResponseOk)
}

func (s *State) executeM32(cmd *Command, com *Com) {
	name, err := cmd.File_arg()
	if err != nil {
		com.Reply(ErrResponse(err.Error()))
		return
	}
	path := filepath.Join(s.cfg.GcodeDir, name)
	sub, err := NewFileCom(path)
	if err != nil {
		com.Reply(ErrResponse(err.Error()))
		return
	}
	com.Reply(ResponseOk)
	job := NewPrintJob(path)
	s.jobs = append(s.jobs, job)
	s.comStack = append(s.comStack, sub)
	logger.Infof("started %s", job.Describe())
}

// setHostZero implements G92: the host declares the current position to
// be the given coordinates (default 0). Missing letters keep their
// existing reference, so repeating the command is a no-op.
func (s *State) setHostZero(cmd *Command) {
	if !cmd.Has_any_xyze() {
		s.hostZero = s.destMm
		return
	}
	scale := 1.0
	if s.unitMode == UnitInch {
		scale = mmPerInch
	}
	ref := s.destMm.Sub(s.hostZero)
	if cmd.Has('X') {
		ref.X = cmd.Get('X', 0) * scale
	}
	if cmd.Has('Y') {
		ref.Y = cmd.Get('Y', 0) * scale
	}
	if cmd.Has('Z') {
		ref.Z = cmd.Get('Z', 0) * scale
	}
	if cmd.Has('E') {
		ref.E = cmd.Get('E', 0) * scale
	}
	s.hostZero = s.destMm.Sub(ref)
}
