package models

import (
	"time"
)

type Ticket struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	DesignID     string     `json:"design_id,omitempty"`
	QRCode       string     `json:"qr_code"`
	TicketNumber int        `json:"ticket_number"`
	IsUsed       bool       `json:"is_used"`
	UsedAt       *time.Time `json:"used_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TicketWithEvent is a ticket joined with the event it belongs to.
type TicketWithEvent struct {
	Ticket
	Event Event `json:"event"`
}

type ChangeAction string

const (
	ChangeInsert ChangeAction = "insert"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
)

// TicketChange is pushed to subscribers whenever a tickets row changes.
type TicketChange struct {
	Action   ChangeAction `json:"action"`
	TicketID string       `json:"ticket_id"`
	EventID  string       `json:"event_id,omitempty"`
	At       time.Time    `json:"at"`
}
