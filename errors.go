package plotgen

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is outside [1, 32].
	ErrInvalidK = errors.New("k must be between 1 and 32")

	// ErrInvalidTableCount is returned when fewer than two tables are requested.
	ErrInvalidTableCount = errors.New("table count must be at least 2")

	// ErrInvalidMemoryCeiling is returned when the memory ceiling is not positive
	// or too small for the sort stage.
	ErrInvalidMemoryCeiling = errors.New("invalid memory ceiling")

	// ErrInvalidRunName is returned when the run name cannot be used in a file name.
	ErrInvalidRunName = errors.New("invalid run name")

	// ErrClosed is returned when a closed Plotter is used.
	ErrClosed = errors.New("plotter is closed")
)

// Phase identifies a stage of the pipeline.
type Phase uint8

const (
	PhaseForward Phase = iota
	PhaseWrite
	PhaseSort
	PhaseBackward
	PhaseVerify
	PhasePublish
)

func (p Phase) String() string {
	switch p {
	case PhaseForward:
		return "forward"
	case PhaseWrite:
		return "write"
	case PhaseSort:
		return "sort"
	case PhaseBackward:
		return "backward"
	case PhaseVerify:
		return "verify"
	case PhasePublish:
		return "publish"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// PhaseError reports a fatal failure in one phase of a run.
//
// Table is -1 when the failure is not tied to a single table. The original
// error can be accessed via errors.Unwrap.
type PhaseError struct {
	Phase Phase
	Table int
	Path  string
	Err   error
}

func (e *PhaseError) Error() string {
	msg := e.Phase.String()
	if e.Table >= 0 {
		msg += fmt.Sprintf(" table %d", e.Table)
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error { return e.Err }

func phaseError(phase Phase, table int, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Table: table, Path: path, Err: err}
}
