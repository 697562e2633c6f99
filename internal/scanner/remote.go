package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"qrticket/internal/status"
)

// Message types exchanged with a scanning station.
const (
	MsgHello      = "hello"
	MsgOpen       = "open"
	MsgOpened     = "opened"
	MsgOpenFailed = "open_failed"
	MsgClose      = "close"
	MsgSwitch     = "switch"
	MsgManual     = "manual"
	MsgOutcome    = "outcome"
	MsgError      = "error"
)

var ErrStationGone = errors.New("scanner: station disconnected")

// Envelope is the JSON control message. Frames travel as binary messages.
type Envelope struct {
	Type        string          `json:"type"`
	Secure      bool            `json:"secure,omitempty"`
	Permission  PermissionState `json:"permission,omitempty"`
	Devices     []Device        `json:"devices,omitempty"`
	Constraints *Constraints    `json:"constraints,omitempty"`
	DeviceID    string          `json:"device_id,omitempty"`
	Facing      Facing          `json:"facing,omitempty"`
	Code        string          `json:"code,omitempty"`
	Error       string          `json:"error,omitempty"`
	Data        any             `json:"data,omitempty"`
}

type openResult struct {
	stream *remoteStream
	err    error
}

// Control is a station request that is not part of the camera protocol.
type Control struct {
	Type   string
	Facing Facing
	Code   string
}

// RemoteCamera is a Camera backed by a station's browser over a websocket.
// The station announces its devices in a hello message, opens the camera on
// request and then pushes encoded frames as binary messages.
type RemoteCamera struct {
	conn  *websocket.Conn
	hello Envelope

	writeMu sync.Mutex

	mu      sync.Mutex
	pending chan openResult
	stream  *remoteStream

	controls chan Control
	done     chan struct{}
	closeErr error
}

// NewRemoteCamera waits for the station's hello and starts reading.
func NewRemoteCamera(ctx context.Context, conn *websocket.Conn) (*RemoteCamera, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != MsgHello {
		return nil, fmt.Errorf("expected hello, got %q", hello.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &RemoteCamera{
		conn:     conn,
		hello:    hello,
		controls: make(chan Control, 8),
		done:     make(chan struct{}),
	}
	go c.runReader()
	return c, nil
}

func (c *RemoteCamera) Permission(context.Context) PermissionState {
	if c.hello.Permission == "" {
		return PermissionUnsupported
	}
	return c.hello.Permission
}

func (c *RemoteCamera) SecureContext() bool {
	return c.hello.Secure
}

func (c *RemoteCamera) Devices(context.Context) ([]Device, error) {
	return c.hello.Devices, nil
}

// Open asks the station to open a camera with the given constraints and
// waits for its answer.
func (c *RemoteCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	reply := make(chan openResult, 1)

	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return nil, status.ErrSessionActive
	}
	c.pending = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending == reply {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	if err := c.Send(Envelope{Type: MsgOpen, Constraints: &cons}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == reply {
			c.pending = nil
		}
		c.mu.Unlock()
		select {
		case res := <-reply:
			if res.stream != nil {
				_ = res.stream.Close()
			}
		default:
		}
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrStationGone
	case res := <-reply:
		if res.err != nil {
			return nil, res.err
		}
		return res.stream, nil
	}
}

// Controls delivers switch and manual entry requests from the station.
func (c *RemoteCamera) Controls() <-chan Control {
	return c.controls
}

// Done is closed when the connection is gone.
func (c *RemoteCamera) Done() <-chan struct{} {
	return c.done
}

func (c *RemoteCamera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Send writes one JSON message to the station.
func (c *RemoteCamera) Send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrStationGone, err)
	}
	return nil
}

func (c *RemoteCamera) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *RemoteCamera) runReader() {
	defer close(c.controls)
	defer close(c.done)

	for {
		kind, p, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closeErr = err
			if c.stream != nil {
				c.stream.closed = true
			}
			c.mu.Unlock()
			return
		}

		if kind == websocket.BinaryMessage {
			c.mu.Lock()
			if c.stream != nil && !c.stream.closed {
				c.stream.latest = p
				c.stream.seq++
			}
			c.mu.Unlock()
			continue
		}

		var msg Envelope
		if err := json.Unmarshal(p, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MsgOpened:
			// The stream exists before Open returns so that frames sent
			// right after the reply are kept.
			c.mu.Lock()
			orphan := c.pending == nil
			if !orphan {
				c.stream = &remoteStream{cam: c}
				c.pending <- openResult{stream: c.stream}
				c.pending = nil
			}
			c.mu.Unlock()
			if orphan {
				_ = c.Send(Envelope{Type: MsgClose})
			}
		case MsgOpenFailed:
			c.mu.Lock()
			if c.pending != nil {
				c.pending <- openResult{err: fmt.Errorf("station: %s", msg.Error)}
				c.pending = nil
			}
			c.mu.Unlock()
		case MsgSwitch, MsgManual, MsgClose:
			select {
			case c.controls <- Control{Type: msg.Type, Facing: msg.Facing, Code: msg.Code}:
			default:
			}
		}
	}
}

type remoteStream struct {
	cam *RemoteCamera

	// guarded by cam.mu
	latest []byte
	seq    uint64
	read   uint64
	closed bool
}

// Ready reports whether a frame newer than the last one read has arrived.
func (s *remoteStream) Ready() bool {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	return !s.closed && s.seq > s.read
}

func (s *remoteStream) Frame() (image.Image, error) {
	s.cam.mu.Lock()
	if s.closed {
		s.cam.mu.Unlock()
		return nil, ErrStationGone
	}
	data := s.latest
	s.read = s.seq
	s.cam.mu.Unlock()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// A corrupt frame is skipped like one without a code.
		return nil, fmt.Errorf("%w: frame: %v", status.ErrNoCode, err)
	}
	return img, nil
}

func (s *remoteStream) Close() error {
	s.cam.mu.Lock()
	if s.closed {
		s.cam.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cam.stream == s {
		s.cam.stream = nil
	}
	s.cam.mu.Unlock()

	select {
	case <-s.cam.done:
		return nil
	default:
	}
	return s.cam.Send(Envelope{Type: MsgClose})
}
