package status

import (
	"errors"
	"fmt"
)

var (
	// Camera acquisition. Every acquisition failure matches ErrAcquisition.
	ErrAcquisition      = errors.New("scanner: camera acquisition failed")
	ErrPermissionDenied = fmt.Errorf("%w: camera permission denied", ErrAcquisition)
	ErrInsecureContext  = fmt.Errorf("%w: secure context required", ErrAcquisition)
	ErrNoCamera         = fmt.Errorf("%w: no camera available", ErrAcquisition)

	ErrSessionActive = errors.New("scanner: a camera stream is already held by this session")

	// ErrNoCode is the transient "nothing decodable in this frame" result.
	ErrNoCode = errors.New("decode: no code found in frame")

	ErrEncoding = errors.New("codegen: payload exceeds barcode capacity")
	ErrExport   = errors.New("export: ticket export failed")
	ErrStore    = errors.New("store: request failed")
	ErrBusy     = errors.New("redeem: validation already in flight")

	ErrInvalidDesign   = errors.New("design: invalid design options")
	ErrInvalidQuantity = errors.New("generate: invalid ticket quantity")
	ErrEventNotFound   = errors.New("event: event not found")
	ErrTicketNotFound  = errors.New("ticket: ticket not found")
	ErrDesignNotFound  = errors.New("design: design not found")
)
