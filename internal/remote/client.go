package remote

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"chipscope/internal/common"
	"chipscope/internal/engine"
)

// Client is an engine.Engine backed by a remote capture server.
type Client struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	stream  *stream
	log     common.Logger
	pending int   // replies owed for requests whose exchange timed out
	broken  error // set once the stream can no longer be trusted
}

var (
	_ engine.Engine  = (*Client)(nil)
	_ engine.Stopper = (*Client)(nil)
)

// NewClient speaks the wire protocol over rw. If rw is an io.Closer, Close
// closes it.
func NewClient(rw io.ReadWriter, log common.Logger) (*Client, error) {
	s, err := newStream(rw)
	if err != nil {
		return nil, err
	}
	return &Client{rw: rw, stream: s, log: common.OrNoOp(log)}, nil
}

// Dial connects to a capture server over TCP.
func Dial(ctx context.Context, addr string, log common.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: dial %s", addr)
	}
	c, err := NewClient(conn, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// DialSerial connects to a capture server bridged over a serial line.
func DialSerial(dev string, baud int, log common.Logger) (*Client, error) {
	port, err := serial.OpenPort(&serial.Config{Name: dev, Baud: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "remote: open %s", dev)
	}
	c, err := NewClient(port, log)
	if err != nil {
		port.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying stream if it can be closed.
func (c *Client) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Client) Arm(ctx context.Context, req engine.ArmRequest) error {
	_, err := c.call(ctx, request{Op: opArm, Arm: &req})
	return err
}

func (c *Client) Status(ctx context.Context) (engine.StatusReport, error) {
	resp, err := c.call(ctx, request{Op: opStatus})
	if err != nil {
		return engine.StatusReport{}, err
	}
	if resp.Status == nil {
		return engine.StatusReport{}, transportErr(opStatus, errors.New("response carries no status"))
	}
	return *resp.Status, nil
}

func (c *Client) Upload(ctx context.Context) (*engine.Capture, error) {
	resp, err := c.call(ctx, request{Op: opUpload})
	if err != nil {
		return nil, err
	}
	if resp.Capture == nil {
		return nil, transportErr(opUpload, errors.New("response carries no capture"))
	}
	return resp.Capture, nil
}

func (c *Client) Stop(ctx context.Context) error {
	_, err := c.call(ctx, request{Op: opStop})
	return err
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var te timeouter
	return errors.As(err, &te) && te.Timeout()
}

// call runs one exchange. Replies to earlier requests that timed out are
// read and dropped first, so every response matches its request. A stream
// that failed in any other way is unusable and fails every later call.
func (c *Client) call(ctx context.Context, req request) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return response{}, transportErr(req.Op, errors.Wrap(c.broken, "stream unusable, reconnect"))
	}

	if d, ok := c.rw.(deadliner); ok {
		dl, _ := ctx.Deadline()
		d.SetDeadline(dl)
		stop := context.AfterFunc(ctx, func() { d.SetDeadline(time.Unix(1, 0)) })
		defer stop()
	}

	for c.pending > 0 {
		var stale response
		if err := c.stream.dec.Decode(&stale); err != nil {
			return response{}, c.fail(req.Op, err, false)
		}
		c.pending--
		c.log.Logf(common.SeverityDebug, "remote: dropped a late reply")
	}

	c.log.Logf(common.SeverityDebug, "remote: -> %s", req.Op)
	if err := c.stream.enc.Encode(req); err != nil {
		c.broken = err
		return response{}, transportErr(req.Op, err)
	}
	var resp response
	if err := c.stream.dec.Decode(&resp); err != nil {
		return response{}, c.fail(req.Op, err, true)
	}
	if err := decodeErr(req.Op, resp); err != nil {
		c.log.Logf(common.SeverityDebug, "remote: <- %s error: %v", req.Op, err)
		return resp, err
	}
	return resp, nil
}

// fail records a failed read. A timeout leaves the reply owed by the peer
// to be drained by the next call; anything else breaks the stream.
func (c *Client) fail(o op, err error, owed bool) error {
	if isTimeout(err) {
		if owed {
			c.pending++
		}
	} else {
		c.broken = err
	}
	return transportErr(o, err)
}
