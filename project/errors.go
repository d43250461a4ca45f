package project

import "errors"

// Error taxonomy for command processing and the motion pipeline.
// Command errors are reported to the host and are non-fatal; pipeline
// invariant breaks go through logger.Fatalf at the point of detection.
var (
	ErrSyntax        = errors.New("malformed gcode")
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrOutOfBounds   = errors.New("destination outside machine envelope")
	ErrNotReady      = errors.New("motion planner busy")
	ErrBufferFull    = errors.New("scheduler buffer full")
	ErrHardware      = errors.New("hardware io failure")
)
