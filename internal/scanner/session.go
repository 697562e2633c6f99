// Package scanner turns a camera stream into decoded ticket codes. A Session
// owns at most one stream and runs a single cooperative sampling loop over it.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"qrticket/internal/status"
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateScanning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateScanning:
		return "scanning"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultDebounce is the delay between a decode and its delivery.
const DefaultDebounce = 300 * time.Millisecond

type Option func(*Session)

func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

type Session struct {
	camera   Camera
	decoder  FrameDecoder
	sched    Scheduler
	debounce time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	state       State
	stream      Stream
	sink        Sink
	facing      Facing
	constraints Constraints
	onDecode    func(string)
	onError     func(error)
	// gen invalidates ticks scheduled before the last state change.
	gen            uint64
	cancelTick     func()
	cancelDebounce func()
}

func NewSession(cam Camera, dec FrameDecoder, sched Scheduler, opts ...Option) *Session {
	s := &Session{
		camera:   cam,
		decoder:  dec,
		sched:    sched,
		debounce: DefaultDebounce,
		log:      slog.Default(),
		facing:   FacingBack,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Constraints returns the cascade step that opened the current stream.
func (s *Session) Constraints() Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints
}

// Start acquires a stream for facing, attaches it to sink and begins
// sampling. Acquisition failures leave the session Idle and match
// status.ErrAcquisition. Starting while a stream is held fails with
// status.ErrSessionActive.
func (s *Session) Start(ctx context.Context, sink Sink, onDecode func(string), onError func(error), facing Facing) error {
	s.mu.Lock()
	switch s.state {
	case StateAcquiring, StateScanning, StatePaused:
		s.mu.Unlock()
		return status.ErrSessionActive
	}
	s.state = StateAcquiring
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	stream, used, err := Acquire(ctx, s.camera, facing)

	s.mu.Lock()
	if s.state != StateAcquiring || s.gen != gen {
		// Stopped while acquiring.
		s.mu.Unlock()
		if stream != nil {
			s.closeStream(stream)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: session stopped during acquisition", status.ErrAcquisition)
	}
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		s.log.Warn("Camera acquisition failed", "facing", facing, "error", err)
		return err
	}

	s.stream = stream
	s.sink = sink
	s.facing = facing
	s.constraints = used
	s.onDecode = onDecode
	s.onError = onError
	s.state = StateScanning
	s.mu.Unlock()

	if sink != nil {
		sink.Attach(stream)
	}

	s.log.Info("Scan session started", "facing", facing, "mode", used.Mode)

	s.mu.Lock()
	if s.state == StateScanning {
		s.scheduleLocked()
	}
	s.mu.Unlock()
	return nil
}

// Pause stops sampling but keeps the stream open.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateScanning {
		return
	}
	s.state = StatePaused
	s.gen++
	s.cancelTickLocked()
}

// Resume restarts sampling on the open stream. Nil callbacks keep the
// current ones. It does nothing unless the session is Paused.
func (s *Session) Resume(onDecode func(string), onError func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused || s.stream == nil {
		return
	}
	if onDecode != nil {
		s.onDecode = onDecode
	}
	if onError != nil {
		s.onError = onError
	}
	s.state = StateScanning
	s.gen++
	s.scheduleLocked()
}

// Stop releases the stream and detaches the sink. It is safe from any state
// and more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	s.gen++
	s.cancelTickLocked()
	if s.cancelDebounce != nil {
		s.cancelDebounce()
		s.cancelDebounce = nil
	}
	stream, sink := s.stream, s.sink
	s.stream, s.sink = nil, nil
	wasActive := s.state != StateIdle && s.state != StateStopped
	s.state = StateStopped
	s.mu.Unlock()

	if sink != nil {
		sink.Detach()
	}
	if stream != nil {
		s.closeStream(stream)
	}
	if wasActive {
		s.log.Info("Scan session stopped")
	}
}

// SwitchFacing stops the current stream before acquiring one for facing, so
// two streams are never open at once.
func (s *Session) SwitchFacing(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	sink, onDecode, onError := s.sink, s.onDecode, s.onError
	s.mu.Unlock()

	s.Stop()
	return s.Start(ctx, sink, onDecode, onError, facing)
}

func (s *Session) scheduleLocked() {
	gen := s.gen
	s.cancelTick = s.sched.NextFrame(func() { s.tick(gen) })
}

func (s *Session) cancelTickLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if s.state != StateScanning || s.gen != gen {
		s.mu.Unlock()
		return
	}
	stream, onError := s.stream, s.onError
	s.mu.Unlock()

	if stream.Ready() {
		img, err := stream.Frame()
		switch {
		case errors.Is(err, status.ErrNoCode):
		case err != nil:
			s.failFrame(gen, err, onError)
			return
		default:
			text, err := s.decoder.Decode(img)
			if err == nil && text != "" {
				s.decoded(gen, text)
				return
			}
			if err != nil && !errors.Is(err, status.ErrNoCode) {
				s.log.Debug("Frame decode failed", "error", err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateScanning && s.gen == gen {
		s.scheduleLocked()
	}
}

func (s *Session) decoded(gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateScanning || s.gen != gen {
		return
	}
	s.state = StatePaused
	s.gen++
	s.cancelTick = nil

	onDecode := s.onDecode
	s.cancelDebounce = s.sched.After(s.debounce, func() {
		s.mu.Lock()
		released := s.stream == nil
		s.cancelDebounce = nil
		s.mu.Unlock()

		if !released && onDecode != nil {
			onDecode(text)
		}
	})
}

// failFrame pauses the loop on a stream error and reports it.
func (s *Session) failFrame(gen uint64, err error, onError func(error)) {
	s.mu.Lock()
	if s.state != StateScanning || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	s.gen++
	s.cancelTick = nil
	s.mu.Unlock()

	s.log.Warn("Camera frame read failed", "error", err)
	if onError != nil {
		onError(err)
	}
}

func (s *Session) closeStream(stream Stream) {
	if err := stream.Close(); err != nil {
		s.log.Warn("Failed to close camera stream", "error", err)
	}
}
