// Package simerr defines the error taxonomy shared by the simulation core.
//
// Every fallible core operation returns an *Error carrying one Code. Codes are
// grouped into classes with distinct propagation policies; the message for a
// code is a static lookup. Errors raised by the graph sink are tagged with the
// persistence bit so callers can tell them apart from simulation failures.
package simerr

import (
	"errors"
	"fmt"
)

// Code identifies one failure kind. Simulation codes are small negative
// integers, which always have persistenceBit set; persistence codes have it
// cleared.
type Code int

const (
	ErrGeneric                      Code = -1
	ErrNoMemory                     Code = -2
	ErrBadState                     Code = -3
	ErrBadParamValue                Code = -4
	ErrOutOfBounds                  Code = -5
	ErrUnsortedDemographicEvents    Code = -6
	ErrPopulationOverflow           Code = -7
	ErrPopulationOutOfBounds        Code = -8
	ErrBadPopulationConfiguration   Code = -9
	ErrBadMigrationMatrix           Code = -10
	ErrBadMigrationMatrixIndex      Code = -11
	ErrDiagonalMigrationMatrixIndex Code = -12
	ErrInfiniteWaitingTime          Code = -13
	ErrAssertionFailed              Code = -14
	ErrSourceDestEqual              Code = -15
	ErrBadRecombinationMap          Code = -16
	ErrBadPopulationSize            Code = -17
	ErrBadSamples                   Code = -18
	ErrBadModel                     Code = -19
	ErrInsufficientSamples          Code = -20
	ErrBadStartTime                 Code = -25
	ErrBadDemographicEventTime      Code = -26
	ErrRecombMapTooCoarse           Code = -27
	ErrTimeTravel                   Code = -28
	ErrIntegrationFailed            Code = -29
	ErrBadSweepPosition             Code = -30
	ErrBadTimeDelta                 Code = -31
	ErrBadAlleleFrequency           Code = -32
	ErrBadTrajectoryStartEnd        Code = -33
	ErrBadSweepGenicSelectionAlpha  Code = -34
	ErrEventsDuringSweep            Code = -35
	ErrUnsupportedOperation         Code = -36
	ErrDTWFZeroPopulationSize       Code = -37
	ErrDTWFUnsupportedBottleneck    Code = -38
	ErrBadProportion                Code = -39
	ErrBadPedigreeNumSamples        Code = -40
	ErrBadPedigreeID                Code = -41
	ErrBadBetaModelAlpha            Code = -42
	ErrBadTruncationPoint           Code = -43
	ErrInsufficientIntervals        Code = -46
	ErrIntervalMapStartNonZero      Code = -47
	ErrNegativeIntervalPosition     Code = -48
	ErrIntervalPositionsUnsorted    Code = -49
	ErrBadC                         Code = -50
	ErrBadPsi                       Code = -51
)

// persistenceBit is set in every simulation code and cleared in codes that
// originate in the graph persistence layer.
const persistenceBit = 13

// Class groups codes by how they propagate.
type Class int

const (
	ClassConfig Class = iota + 1
	ClassState
	ClassNumeric
	ClassModel
	ClassPersistence
)

func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassState:
		return "state"
	case ClassNumeric:
		return "numeric"
	case ClassModel:
		return "model"
	case ClassPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var messages = map[Code]string{
	ErrGeneric:                      "generic error",
	ErrNoMemory:                     "out of memory",
	ErrBadState:                     "bad internal state",
	ErrBadParamValue:                "bad parameter value provided",
	ErrOutOfBounds:                  "array index out of bounds",
	ErrUnsortedDemographicEvents:    "demographic events must be time sorted",
	ErrPopulationOverflow:           "population id larger than number of populations",
	ErrPopulationOutOfBounds:        "population id out of bounds",
	ErrBadPopulationConfiguration:   "bad population configuration provided",
	ErrBadMigrationMatrix:           "bad migration matrix provided",
	ErrBadMigrationMatrixIndex:      "bad migration matrix index",
	ErrDiagonalMigrationMatrixIndex: "cannot set diagonal migration matrix elements",
	ErrInfiniteWaitingTime:          "infinite waiting time until next simulation event",
	ErrAssertionFailed:              "internal assertion failed",
	ErrSourceDestEqual:              "source and destination populations equal",
	ErrBadRecombinationMap:          "bad recombination map provided",
	ErrBadPopulationSize:            "bad population size provided; must be > 0",
	ErrBadSamples:                   "bad sample configuration provided",
	ErrBadModel:                     "model not recognised",
	ErrInsufficientSamples:          "at least two samples needed",
	ErrBadStartTime:                 "start time must be non-negative and before the first event",
	ErrBadDemographicEventTime:      "demographic event time must be non-negative and not before the start time",
	ErrRecombMapTooCoarse:           "recombination map too coarse to place a breakpoint inside the lineage",
	ErrTimeTravel:                   "an event was scheduled earlier than the current simulation time",
	ErrIntegrationFailed:            "numerical integration failed",
	ErrBadSweepPosition:             "sweep position must be within the sequence",
	ErrBadTimeDelta:                 "time delta must be > 0",
	ErrBadAlleleFrequency:           "allele frequency must be in (0, 1)",
	ErrBadTrajectoryStartEnd:        "trajectory start frequency must be less than end frequency",
	ErrBadSweepGenicSelectionAlpha:  "genic selection alpha must be > 0",
	ErrEventsDuringSweep:            "demographic events cannot occur during a sweep",
	ErrUnsupportedOperation:         "operation not supported by the current model",
	ErrDTWFZeroPopulationSize:       "population size rounded to zero under the discrete-time Wright-Fisher model",
	ErrDTWFUnsupportedBottleneck:    "bottlenecks are not supported under the discrete-time Wright-Fisher model",
	ErrBadProportion:                "proportion must be in [0, 1]",
	ErrBadPedigreeNumSamples:        "number of sample lineages does not match the pedigree samples",
	ErrBadPedigreeID:                "pedigree refers to an unknown individual",
	ErrBadBetaModelAlpha:            "beta coalescent alpha must be in (1, 2)",
	ErrBadTruncationPoint:           "beta coalescent truncation point must be in (0, 1]",
	ErrInsufficientIntervals:        "at least two positions are required",
	ErrIntervalMapStartNonZero:      "interval map must start at position zero",
	ErrNegativeIntervalPosition:     "interval positions must be non-negative",
	ErrIntervalPositionsUnsorted:    "interval positions must be strictly increasing",
	ErrBadC:                         "dirac coalescent c must be > 0",
	ErrBadPsi:                       "dirac coalescent psi must be in (0, 1]",
}

// Message returns the human readable text for a code.
func Message(c Code) string {
	if c.IsPersistence() {
		return fmt.Sprintf("persistence error %d", int(c.Untagged()))
	}
	if msg, ok := messages[c]; ok {
		return msg
	}
	return "unknown error"
}

func (c Code) Error() string {
	return Message(c)
}

// IsPersistence reports whether the code was tagged by FromPersistence.
func (c Code) IsPersistence() bool {
	return c < 0 && c&(1<<persistenceBit) == 0
}

// Untagged strips the persistence bit.
func (c Code) Untagged() Code {
	if !c.IsPersistence() {
		return c
	}
	return c ^ (1 << persistenceBit)
}

// Class returns the propagation class of the code.
func (c Code) Class() Class {
	if c.IsPersistence() {
		return ClassPersistence
	}
	switch c {
	case ErrBadParamValue, ErrUnsortedDemographicEvents, ErrBadPopulationConfiguration,
		ErrBadMigrationMatrix, ErrBadMigrationMatrixIndex, ErrDiagonalMigrationMatrixIndex,
		ErrSourceDestEqual, ErrBadRecombinationMap, ErrBadPopulationSize, ErrBadSamples,
		ErrBadModel, ErrInsufficientSamples, ErrBadStartTime, ErrBadDemographicEventTime,
		ErrBadProportion, ErrInsufficientIntervals, ErrIntervalMapStartNonZero,
		ErrNegativeIntervalPosition, ErrIntervalPositionsUnsorted:
		return ClassConfig
	case ErrInfiniteWaitingTime, ErrIntegrationFailed, ErrTimeTravel, ErrBadTimeDelta,
		ErrRecombMapTooCoarse:
		return ClassNumeric
	case ErrBadSweepPosition, ErrBadAlleleFrequency, ErrBadTrajectoryStartEnd,
		ErrBadSweepGenicSelectionAlpha, ErrEventsDuringSweep, ErrUnsupportedOperation,
		ErrDTWFZeroPopulationSize, ErrDTWFUnsupportedBottleneck, ErrBadPedigreeNumSamples,
		ErrBadPedigreeID, ErrBadBetaModelAlpha, ErrBadTruncationPoint, ErrBadC, ErrBadPsi:
		return ClassModel
	default:
		return ClassState
	}
}

// Error is the single failure type returned by the core.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := Message(e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches both *Error values with the same code and bare Codes, so
// errors.Is(err, simerr.ErrBadMigrationMatrix) works.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Code:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	default:
		return false
	}
}

// New returns an error for code with no extra detail.
func New(code Code) error {
	return &Error{Code: code}
}

// Errorf returns an error for code with a formatted detail string.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code carried by err, or ErrGeneric when err carries none.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return ErrGeneric
}

// PersistenceCode tags a raw persistence-layer code.
func PersistenceCode(raw int) Code {
	if raw >= 0 {
		raw = -1
	}
	return Code(raw) ^ (1 << persistenceBit)
}

// FromPersistence wraps an error raised by the graph sink. Errors that already
// carry a simulation code are returned unchanged.
func FromPersistence(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: PersistenceCode(-1), Err: err}
}

// IsPersistence reports whether err originated in the persistence layer.
func IsPersistence(err error) bool {
	return CodeOf(err).IsPersistence()
}
