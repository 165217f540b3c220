package ila

import "fmt"

// General Library Return and Error Codes

// Err represents a library error code. It implements error so that callers can
// match wrapped errors with errors.Is(err, ila.ErrUnknownProbe).
type Err uint32

const (
	OK                          Err = 0
	ErrFail                     Err = 1
	ErrUnknownProbe             Err = 2
	ErrMatchValueLengthMismatch Err = 3
	ErrInvalidSymbol            Err = 4
	ErrTooManyMatchUnits        Err = 5
	ErrInvalidWindowGeometry    Err = 6
	ErrTsmNotCompiled           Err = 7
	ErrAlreadyArmed             Err = 8
	ErrNothingToUpload          Err = 9
	ErrRemote                   Err = 10
	ErrTimeout                  Err = 11
	ErrInvalidParam             Err = 12
	ErrDescriptionParse         Err = 13
	ErrAdvancedUnsupported      Err = 14
	ErrLast                     Err = 15
)

var errNames = [...]string{
	OK:                          "OK",
	ErrFail:                     "Fail",
	ErrUnknownProbe:             "UnknownProbe",
	ErrMatchValueLengthMismatch: "MatchValueLengthMismatch",
	ErrInvalidSymbol:            "InvalidSymbol",
	ErrTooManyMatchUnits:        "TooManyMatchUnits",
	ErrInvalidWindowGeometry:    "InvalidWindowGeometry",
	ErrTsmNotCompiled:           "TsmNotCompiled",
	ErrAlreadyArmed:             "AlreadyArmed",
	ErrNothingToUpload:          "NothingToUpload",
	ErrRemote:                   "Remote",
	ErrTimeout:                  "Timeout",
	ErrInvalidParam:             "InvalidParam",
	ErrDescriptionParse:         "DescriptionParse",
	ErrAdvancedUnsupported:      "AdvancedUnsupported",
	ErrLast:                     "Last",
}

func (e Err) Error() string {
	if int(e) < len(errNames) {
		return errNames[e]
	}
	return fmt.Sprintf("Err(%d)", uint32(e))
}

// IsConfigErr returns true for errors raised at configuration time. These are
// caller bugs and are never retried.
func IsConfigErr(e Err) bool {
	switch e {
	case ErrUnknownProbe, ErrMatchValueLengthMismatch, ErrInvalidSymbol,
		ErrTooManyMatchUnits, ErrInvalidWindowGeometry, ErrTsmNotCompiled,
		ErrAdvancedUnsupported, ErrInvalidParam:
		return true
	}
	return false
}

// ErrSeverity used to indicate the severity of an error or logger verbosity
type ErrSeverity uint32

const (
	ErrSevNone  ErrSeverity = 0
	ErrSevError ErrSeverity = 1
	ErrSevWarn  ErrSeverity = 2
	ErrSevInfo  ErrSeverity = 3
)

// Run session states

// RunState is the state of a capture session on one ILA instance.
type RunState uint32

const (
	StateIdle      RunState = 0
	StateArmed     RunState = 1
	StateCapturing RunState = 2
	StateDone      RunState = 3
	StateError     RunState = 4
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateArmed:
		return "Armed"
	case StateCapturing:
		return "Capturing"
	case StateDone:
		return "Done"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsActive returns true while the capture engine owns the session.
func (s RunState) IsActive() bool { return s == StateArmed || s == StateCapturing }

// IsTerminal returns true for states the remote core will not leave on its own.
func (s RunState) IsTerminal() bool { return s == StateDone || s == StateError }

// Trigger modes

type TriggerMode uint32

const (
	TriggerImmediate TriggerMode = 0
	TriggerBasic     TriggerMode = 1
	TriggerAdvanced  TriggerMode = 2
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerImmediate:
		return "IMMEDIATE"
	case TriggerBasic:
		return "BASIC"
	case TriggerAdvanced:
		return "ADVANCED"
	default:
		return "UNKNOWN"
	}
}

// Match value alphabet

const (
	SymDontCare byte = 'X'
	SymZero     byte = '0'
	SymOne      byte = '1'
	SymRising   byte = 'R'
	SymFalling  byte = 'F'
	SymEither   byte = 'B'
	SymNoChange byte = 'N'
)

// IsSymbol returns true if c is in the match value alphabet. Lower case is accepted.
func IsSymbol(c byte) bool {
	switch c {
	case SymDontCare, SymZero, SymOne, SymRising, SymFalling, SymEither, SymNoChange,
		'x', 'r', 'f', 'b', 'n':
		return true
	}
	return false
}

// IsSeparator returns true for characters ignored inside match value strings.
func IsSeparator(c byte) bool { return c == '_' || c == ' ' }

// IsEdgeSymbol returns true for symbols that compare two adjacent samples.
func IsEdgeSymbol(c byte) bool {
	return c == SymRising || c == SymFalling || c == SymEither || c == SymNoChange
}

// Activity symbols

const (
	ActNone    byte = 'N'
	ActRising  byte = 'R'
	ActFalling byte = 'F'
	ActBoth    byte = 'B'
)

// Comparison operators

type Operator uint32

const (
	OpEQ          Operator = 0
	OpNE          Operator = 1
	OpLT          Operator = 2
	OpLE          Operator = 3
	OpGT          Operator = 4
	OpGE          Operator = 5
	OpReductionOr Operator = 6
)

var opText = [...]string{
	OpEQ:          "==",
	OpNE:          "!=",
	OpLT:          "<",
	OpLE:          "<=",
	OpGT:          ">",
	OpGE:          ">=",
	OpReductionOr: "||",
}

func (o Operator) String() string {
	if int(o) < len(opText) {
		return opText[o]
	}
	return "?"
}

// IsRelational returns true for magnitude comparisons, which need a fully
// specified 0/1 value.
func (o Operator) IsRelational() bool { return o >= OpLT && o <= OpGE }

// ParseOperator converts operator text to an Operator.
func ParseOperator(s string) (Operator, bool) {
	for i, t := range opText {
		if t == s {
			return Operator(i), true
		}
	}
	return 0, false
}
