package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"qrticket/internal/status"
)

type Facing string

const (
	FacingBack  Facing = "environment"
	FacingFront Facing = "user"
)

func (f Facing) Opposite() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

type PermissionState string

const (
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionPrompt      PermissionState = "prompt"
	PermissionUnsupported PermissionState = "unsupported"
)

type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ConstraintMode is one step of the acquisition cascade, from strictest to
// most permissive.
type ConstraintMode string

const (
	ModeDevice      ConstraintMode = "device"
	ModeIdealFacing ConstraintMode = "ideal_facing"
	ModeLooseFacing ConstraintMode = "loose_facing"
	ModeAny         ConstraintMode = "any"
)

type Constraints struct {
	Mode     ConstraintMode `json:"mode"`
	DeviceID string         `json:"device_id,omitempty"`
	Facing   Facing         `json:"facing,omitempty"`
}

// Stream is an open camera stream.
type Stream interface {
	// Ready reports whether a frame is available.
	Ready() bool
	Frame() (image.Image, error)
	Close() error
}

type Camera interface {
	Permission(ctx context.Context) PermissionState
	SecureContext() bool
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Sink displays the stream while it is attached.
type Sink interface {
	Attach(s Stream)
	Detach()
}

type FrameDecoder interface {
	Decode(img image.Image) (string, error)
}

var facingLabels = map[Facing][]string{
	FacingBack:  {"back", "rear", "environment"},
	FacingFront: {"front", "user", "face"},
}

// MatchesFacing reports whether a device label names the given facing.
func MatchesFacing(label string, f Facing) bool {
	l := strings.ToLower(label)
	for _, word := range facingLabels[f] {
		if strings.Contains(l, word) {
			return true
		}
	}
	return false
}

// Plan lists the constraint attempts for facing in cascade order. The exact
// device step is present only when a device label matches.
func Plan(devices []Device, f Facing) []Constraints {
	var plan []Constraints
	for _, d := range devices {
		if d.ID != "" && MatchesFacing(d.Label, f) {
			plan = append(plan, Constraints{Mode: ModeDevice, DeviceID: d.ID, Facing: f})
			break
		}
	}
	return append(plan,
		Constraints{Mode: ModeIdealFacing, Facing: f},
		Constraints{Mode: ModeLooseFacing, Facing: f},
		Constraints{Mode: ModeAny},
	)
}

// Acquire checks permission and context, then walks the cascade. The first
// stream opened wins; if every attempt fails the last error is returned.
func Acquire(ctx context.Context, cam Camera, f Facing) (Stream, Constraints, error) {
	if cam.Permission(ctx) == PermissionDenied {
		return nil, Constraints{}, status.ErrPermissionDenied
	}
	if !cam.SecureContext() {
		return nil, Constraints{}, status.ErrInsecureContext
	}

	// Without a device list the label step is skipped.
	devices, _ := cam.Devices(ctx)

	lastErr := status.ErrNoCamera
	for _, c := range Plan(devices, f) {
		if err := ctx.Err(); err != nil {
			return nil, Constraints{}, fmt.Errorf("%w: %w", status.ErrAcquisition, err)
		}
		stream, err := cam.Open(ctx, c)
		if err == nil {
			return stream, c, nil
		}
		lastErr = err
	}

	if errors.Is(lastErr, status.ErrAcquisition) {
		return nil, Constraints{}, lastErr
	}
	return nil, Constraints{}, fmt.Errorf("%w: %w", status.ErrAcquisition, lastErr)
}
