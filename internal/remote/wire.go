// Package remote carries the capture engine contract over a byte stream.
// Each request and response is one CBOR map; a connection serves one
// request at a time.
package remote

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"chipscope/internal/common"
	"chipscope/internal/engine"
	"chipscope/internal/ila"
)

type op uint8

const (
	opArm op = iota + 1
	opStatus
	opUpload
	opStop
)

func (o op) String() string {
	switch o {
	case opArm:
		return "arm"
	case opStatus:
		return "status"
	case opUpload:
		return "upload"
	case opStop:
		return "stop"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

type request struct {
	Op  op                 `cbor:"1,keyasint"`
	Arm *engine.ArmRequest `cbor:"2,keyasint,omitempty"`
}

type response struct {
	Code    ila.Err              `cbor:"1,keyasint,omitempty"`
	Err     string               `cbor:"2,keyasint,omitempty"`
	Status  *engine.StatusReport `cbor:"3,keyasint,omitempty"`
	Capture *engine.Capture      `cbor:"4,keyasint,omitempty"`
}

// stream pairs the stream encoder and decoder of one connection.
type stream struct {
	enc *cbor.Encoder
	dec *cbor.Decoder
}

func newStream(rw io.ReadWriter) (*stream, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "remote: encoder")
	}
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, errors.Wrap(err, "remote: decoder")
	}
	return &stream{enc: em.NewEncoder(rw), dec: dm.NewDecoder(rw)}, nil
}

// TransportError reports a failed exchange with the remote engine. It
// matches ila.ErrRemote with errors.Is.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "remote " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ila.ErrRemote }

// Cause returns the underlying I/O error.
func (e *TransportError) Cause() error { return errors.Cause(e.Err) }

func transportErr(o op, err error) error {
	return &TransportError{Op: o.String(), Err: errors.WithStack(err)}
}

// encodeErr converts an engine error into response fields.
func encodeErr(err error) response {
	code := common.CodeOf(err)
	if code == ila.OK {
		code = ila.ErrFail
	}
	return response{Code: code, Err: err.Error()}
}

// decodeErr rebuilds the engine error carried by a response.
func decodeErr(o op, r response) error {
	if r.Code == ila.OK && r.Err == "" {
		return nil
	}
	code := r.Code
	if code == ila.OK {
		code = ila.ErrFail
	}
	return errors.WithMessagef(common.NewErrorMsg(ila.ErrSevError, code, r.Err), "remote %s", o)
}
