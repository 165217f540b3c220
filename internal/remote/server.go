package remote

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"

	"chipscope/internal/common"
	"chipscope/internal/engine"
	"chipscope/internal/ila"
)

// Serve answers requests on rw against e until the peer closes the stream
// or ctx is done. Engine errors are returned to the peer, not to the caller.
func Serve(ctx context.Context, rw io.ReadWriter, e engine.Engine, log common.Logger) error {
	log = common.OrNoOp(log)
	s, err := newStream(rw)
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req request
		if err := s.dec.Decode(&req); err != nil {
			if isClosed(err) {
				return nil
			}
			return errors.Wrap(err, "remote: read request")
		}
		resp := dispatch(ctx, e, req)
		if resp.Err != "" {
			log.Logf(common.SeverityWarning, "remote: %s failed: %s", req.Op, resp.Err)
		} else {
			log.Logf(common.SeverityDebug, "remote: %s ok", req.Op)
		}
		if err := s.enc.Encode(resp); err != nil {
			if isClosed(err) {
				return nil
			}
			return errors.Wrap(err, "remote: write response")
		}
	}
}

func dispatch(ctx context.Context, e engine.Engine, req request) response {
	switch req.Op {
	case opArm:
		if req.Arm == nil {
			return encodeErr(common.Errorf(ila.ErrInvalidParam, "arm request without parameters"))
		}
		if err := e.Arm(ctx, *req.Arm); err != nil {
			return encodeErr(err)
		}
		return response{}
	case opStatus:
		st, err := e.Status(ctx)
		if err != nil {
			return encodeErr(err)
		}
		return response{Status: &st}
	case opUpload:
		c, err := e.Upload(ctx)
		if err != nil {
			return encodeErr(err)
		}
		return response{Capture: c}
	case opStop:
		st, ok := e.(engine.Stopper)
		if !ok {
			return encodeErr(common.Errorf(ila.ErrInvalidParam, "engine cannot stop a capture"))
		}
		if err := st.Stop(ctx); err != nil {
			return encodeErr(err)
		}
		return response{}
	}
	return encodeErr(common.Errorf(ila.ErrInvalidParam, "unknown request %s", req.Op))
}

// ServeListener accepts connections one at a time, since a capture core has
// a single owner. It returns when ctx is done.
func ServeListener(ctx context.Context, ln net.Listener, e engine.Engine, log common.Logger) error {
	log = common.OrNoOp(log)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "remote: accept")
		}
		log.Info("remote: client " + conn.RemoteAddr().String() + " connected")
		if err := Serve(ctx, conn, e, log); err != nil {
			log.Error(err)
		}
		conn.Close()
	}
}

func isClosed(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF || err == io.ErrClosedPipe ||
		errors.Is(err, net.ErrClosed)
}
