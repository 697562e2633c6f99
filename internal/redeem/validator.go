// Package redeem validates scanned codes against the store and moves a ticket
// from unused to used at most once.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"qrticket/internal/status"
	"qrticket/models"
)

// TicketStore is the slice of the store the validator needs.
type TicketStore interface {
	// FindTicketByCode returns status.ErrTicketNotFound for unknown codes.
	FindTicketByCode(ctx context.Context, code string) (*models.TicketWithEvent, error)
	// MarkTicketUsed sets is_used only if it is still false and returns the
	// number of rows changed.
	MarkTicketUsed(ctx context.Context, id string, at time.Time) (int64, error)
}

type Validator struct {
	store     TicketStore
	history   History
	stationID string
	now       func() time.Time
	busy      atomic.Bool
}

type Option func(*Validator)

func WithHistory(h History) Option {
	return func(v *Validator) { v.history = h }
}

func WithStation(id string) Option {
	return func(v *Validator) { v.stationID = id }
}

func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(store TicketStore, opts ...Option) *Validator {
	v := &Validator{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate resolves code to an outcome. Only one call runs at a time; a call
// made while another is in flight is dropped with status.ErrBusy. Store
// failures return status.ErrStore and never change the ticket.
func (v *Validator) Validate(ctx context.Context, code string) (*models.Outcome, error) {
	if !v.busy.CompareAndSwap(false, true) {
		return nil, status.ErrBusy
	}
	defer v.busy.Store(false)

	code = strings.TrimSpace(code)
	outcome, err := v.validate(ctx, code)
	if err != nil {
		slog.Error("Ticket validation failed", "code", code, "station", v.stationID, "error", err)
		return nil, err
	}

	v.record(ctx, outcome)
	return outcome, nil
}

// Busy reports whether a validation is in flight.
func (v *Validator) Busy() bool {
	return v.busy.Load()
}

func (v *Validator) validate(ctx context.Context, code string) (*models.Outcome, error) {
	// The store keeps millisecond precision; report what it will hold.
	checked := v.now().UTC().Truncate(time.Millisecond)
	invalid := &models.Outcome{Kind: models.OutcomeInvalid, Code: code, CheckedAt: checked}

	if code == "" {
		return invalid, nil
	}

	ticket, err := v.store.FindTicketByCode(ctx, code)
	if errors.Is(err, status.ErrTicketNotFound) {
		return invalid, nil
	}
	if err != nil {
		return nil, storeErr("lookup", err)
	}

	if ticket.IsUsed {
		return alreadyUsed(code, ticket, checked), nil
	}

	affected, err := v.store.MarkTicketUsed(ctx, ticket.ID, checked)
	if err != nil {
		return nil, storeErr("mark used", err)
	}

	if affected == 0 {
		// Another station redeemed it between our read and the update.
		current, err := v.store.FindTicketByCode(ctx, code)
		if errors.Is(err, status.ErrTicketNotFound) {
			return invalid, nil
		}
		if err != nil {
			return nil, storeErr("re-read", err)
		}
		if !current.IsUsed {
			return nil, fmt.Errorf("%w: ticket %s was not updated", status.ErrStore, ticket.ID)
		}
		slog.Info("Lost redemption race", "ticket_id", ticket.ID, "station", v.stationID)
		return alreadyUsed(code, current, checked), nil
	}

	usedAt := checked
	ticket.IsUsed = true
	ticket.UsedAt = &usedAt

	slog.Info("Ticket redeemed", "ticket_id", ticket.ID, "event_id", ticket.EventID, "station", v.stationID)
	return &models.Outcome{
		Kind:      models.OutcomeRedeemed,
		Code:      code,
		Ticket:    ticket,
		UsedAt:    &usedAt,
		CheckedAt: checked,
	}, nil
}

func alreadyUsed(code string, t *models.TicketWithEvent, checked time.Time) *models.Outcome {
	return &models.Outcome{
		Kind:      models.OutcomeAlreadyUsed,
		Code:      code,
		Ticket:    t,
		UsedAt:    t.UsedAt,
		CheckedAt: checked,
	}
}

func storeErr(op string, err error) error {
	if errors.Is(err, status.ErrStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", status.ErrStore, op, err)
}

func (v *Validator) record(ctx context.Context, o *models.Outcome) {
	if v.history == nil {
		return
	}

	rec := models.ScanRecord{
		Code:      o.Code,
		Kind:      o.Kind,
		StationID: v.stationID,
		ScannedAt: o.CheckedAt,
	}
	if o.Ticket != nil {
		rec.EventName = o.Ticket.Event.Name
		rec.TicketNo = o.Ticket.TicketNumber
	}

	if err := v.history.Add(ctx, rec); err != nil {
		slog.Warn("Failed to record scan history", "code", o.Code, "error", err)
	}
}
