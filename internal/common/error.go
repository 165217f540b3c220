package common

import (
	"fmt"
	"strings"

	"chipscope/internal/ila"
)

// Error represents the library error object. Code identifies the failure,
// the optional Probe, State and position fields name what the caller has to fix.
type Error struct {
	Code    ila.Err
	Sev     ila.ErrSeverity
	Probe   string
	State   string
	Line    int
	Col     int
	Message string
}

func NewError(sev ila.ErrSeverity, code ila.Err) *Error {
	return &Error{
		Code: code,
		Sev:  sev,
	}
}

func NewErrorMsg(sev ila.ErrSeverity, code ila.Err, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Message: msg,
	}
}

// Errorf returns an error severity Error with a formatted message.
func Errorf(code ila.Err, format string, args ...any) *Error {
	return NewErrorMsg(ila.ErrSevError, code, fmt.Sprintf(format, args...))
}

// ProbeError returns an error attached to a named probe.
func ProbeError(code ila.Err, probe string, format string, args ...any) *Error {
	e := Errorf(code, format, args...)
	e.Probe = probe
	return e
}

// WithPos attaches a source position and returns the same error.
func (e *Error) WithPos(line, col int) *Error {
	e.Line = line
	e.Col = col
	return e
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	switch e.Sev {
	case ila.ErrSevNone:
		return "LIBRARY INTERNAL ERROR: Invalid Error Object"
	case ila.ErrSevError:
		sb.WriteString("ERROR:")
	case ila.ErrSevWarn:
		sb.WriteString("WARN :")
	case ila.ErrSevInfo:
		sb.WriteString("INFO :")
	default:
		return "LIBRARY INTERNAL ERROR: Invalid Error Object"
	}

	sb.WriteString(fmt.Sprintf("0x%04x ", uint32(e.Code)))

	if desc, ok := errorCodeDesc[e.Code]; ok {
		sb.WriteString(fmt.Sprintf("(%s) [%s]; ", desc.name, desc.msg))
	} else {
		sb.WriteString("(unknown); ")
	}

	if e.Probe != "" {
		sb.WriteString(fmt.Sprintf("Probe=%q; ", e.Probe))
	}

	if e.State != "" {
		sb.WriteString(fmt.Sprintf("State=%q; ", e.State))
	}

	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("Pos=%d:%d; ", e.Line, e.Col))
	}

	sb.WriteString(e.Message)
	return sb.String()
}

// Is matches an ila.Err code so that errors.Is works on wrapped errors.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ila.Err:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// Unwrap exposes the code as the underlying error.
func (e *Error) Unwrap() error { return e.Code }

// CodeOf returns the library code carried by err, or ErrFail if err is not a
// library error.
func CodeOf(err error) ila.Err {
	if err == nil {
		return ila.OK
	}
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case ila.Err:
			return e
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ila.ErrFail
}

type errDesc struct {
	name string
	msg  string
}

var errorCodeDesc = map[ila.Err]errDesc{
	ila.OK:                          {"ILA_OK", "No Error."},
	ila.ErrFail:                     {"ILA_ERR_FAIL", "General failure."},
	ila.ErrUnknownProbe:             {"ILA_ERR_UNKNOWN_PROBE", "Probe not defined in the probe map."},
	ila.ErrMatchValueLengthMismatch: {"ILA_ERR_MATCH_VALUE_LENGTH", "Match value length does not equal probe width."},
	ila.ErrInvalidSymbol:            {"ILA_ERR_INVALID_SYMBOL", "Invalid symbol in match value."},
	ila.ErrTooManyMatchUnits:        {"ILA_ERR_TOO_MANY_MATCH_UNITS", "Trigger condition needs more match units than the core has."},
	ila.ErrInvalidWindowGeometry:    {"ILA_ERR_WINDOW_GEOMETRY", "Invalid capture window geometry."},
	ila.ErrTsmNotCompiled:           {"ILA_ERR_TSM_NOT_COMPILED", "Trigger state machine program not compiled."},
	ila.ErrAlreadyArmed:             {"ILA_ERR_ALREADY_ARMED", "A capture is already armed on this core."},
	ila.ErrNothingToUpload:          {"ILA_ERR_NOTHING_TO_UPLOAD", "No completed capture to upload."},
	ila.ErrRemote:                   {"ILA_ERR_REMOTE", "Remote capture engine failure."},
	ila.ErrTimeout:                  {"ILA_ERR_TIMEOUT", "Timed out waiting for the capture engine."},
	ila.ErrInvalidParam:             {"ILA_ERR_INVALID_PARAM", "Invalid parameter value."},
	ila.ErrDescriptionParse:         {"ILA_ERR_DESCRIPTION_PARSE", "Core description parse error."},
	ila.ErrAdvancedUnsupported:      {"ILA_ERR_ADVANCED_UNSUPPORTED", "Core has no advanced trigger state machine."},
	ila.ErrLast:                     {"ILA_ERR_LAST", "No error - error code end marker"},
}
