package models

import (
	"time"
)

type OutcomeKind string

const (
	OutcomeInvalid     OutcomeKind = "invalid"
	OutcomeAlreadyUsed OutcomeKind = "already_used"
	OutcomeRedeemed    OutcomeKind = "redeemed"
)

// Outcome is the tri-state result of validating one code.
type Outcome struct {
	Kind      OutcomeKind      `json:"kind"`
	Code      string           `json:"code"`
	Ticket    *TicketWithEvent `json:"ticket,omitempty"`
	UsedAt    *time.Time       `json:"used_at,omitempty"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Severity is the UI styling class of an outcome.
func (o Outcome) Severity() string {
	switch o.Kind {
	case OutcomeRedeemed:
		return "success"
	case OutcomeAlreadyUsed:
		return "warning"
	default:
		return "error"
	}
}

type ScanRecord struct {
	Code      string      `json:"code"`
	Kind      OutcomeKind `json:"kind"`
	EventName string      `json:"event_name,omitempty"`
	TicketNo  int         `json:"ticket_number,omitempty"`
	StationID string      `json:"station_id,omitempty"`
	ScannedAt time.Time   `json:"scanned_at"`
}
