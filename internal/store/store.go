// Package store persists events, designs and tickets in PocketBase
// collections and reports ticket changes to subscribers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"qrticket/internal/status"
	"qrticket/models"
)

const DefaultDeleteChunk = 100

type Store struct {
	app       core.App
	bus       *broadcaster
	chunkSize int
	now       func() time.Time
}

type Option func(*Store)

// WithDeleteChunk bounds how many ids one delete statement carries.
func WithDeleteChunk(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New wraps app and binds record hooks so that changes made through the
// PocketBase record API also reach subscribers.
func New(app core.App, opts ...Option) *Store {
	s := &Store{
		app:       app,
		bus:       newBroadcaster(),
		chunkSize: DefaultDeleteChunk,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	app.OnRecordAfterCreateSuccess(CollectionTickets).BindFunc(func(e *core.RecordEvent) error {
		s.notify(models.ChangeInsert, e.Record.Id, e.Record.GetString("event_id"))
		return e.Next()
	})
	app.OnRecordAfterUpdateSuccess(CollectionTickets).BindFunc(func(e *core.RecordEvent) error {
		s.notify(models.ChangeUpdate, e.Record.Id, e.Record.GetString("event_id"))
		return e.Next()
	})
	app.OnRecordAfterDeleteSuccess(CollectionTickets).BindFunc(func(e *core.RecordEvent) error {
		s.notify(models.ChangeDelete, e.Record.Id, e.Record.GetString("event_id"))
		return e.Next()
	})

	return s
}

// SubscribeToTicketChanges registers fn for every insert, update and delete
// on tickets. The returned func unsubscribes.
func (s *Store) SubscribeToTicketChanges(fn func(models.TicketChange)) func() {
	return s.bus.subscribe(fn)
}

func (s *Store) notify(action models.ChangeAction, ticketID, eventID string) {
	s.bus.publish(models.TicketChange{
		Action:   action,
		TicketID: ticketID,
		EventID:  eventID,
		At:       s.now().UTC(),
	})
}

func withCtx(ctx context.Context) func(q *dbx.SelectQuery) error {
	return func(q *dbx.SelectQuery) error {
		q.WithContext(ctx)
		return nil
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", status.ErrStore, op, err)
}

func (s *Store) InsertEvent(ctx context.Context, e models.Event) (*models.Event, error) {
	collection, err := s.app.FindCachedCollectionByNameOrId(CollectionEvents)
	if err != nil {
		return nil, storeErr("events collection", err)
	}

	rec := core.NewRecord(collection)
	rec.Set("name", e.Name)
	rec.Set("description", e.Description)
	if !e.EventDate.IsZero() {
		rec.Set("event_date", e.EventDate.UTC())
	}
	rec.Set("owner", e.Owner)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		slog.Error("Failed to insert event", "name", e.Name, "error", err)
		return nil, storeErr("insert event", err)
	}

	out := eventFromRecord(rec)
	return &out, nil
}

func (s *Store) FindEvent(ctx context.Context, id string) (*models.Event, error) {
	rec, err := s.app.FindRecordById(CollectionEvents, id, withCtx(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, storeErr("find event", err)
	}

	e := eventFromRecord(rec)
	return &e, nil
}

func (s *Store) InsertTicketDesign(ctx context.Context, d models.TicketDesign) (*models.TicketDesign, error) {
	collection, err := s.app.FindCachedCollectionByNameOrId(CollectionDesigns)
	if err != nil {
		return nil, storeErr("designs collection", err)
	}

	rec := core.NewRecord(collection)
	rec.Set("event_id", d.EventID)
	rec.Set("title", d.Title)
	rec.Set("subtitle", d.Subtitle)
	rec.Set("background_image", d.BackgroundImage)
	rec.Set("options", d.Options)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		slog.Error("Failed to insert ticket design", "event_id", d.EventID, "error", err)
		return nil, storeErr("insert design", err)
	}

	out, err := designFromRecord(rec)
	if err != nil {
		return nil, storeErr("read design", err)
	}
	return out, nil
}

// ListTicketDesigns returns the designs of an event, most recent first.
func (s *Store) ListTicketDesigns(ctx context.Context, eventID string) ([]models.TicketDesign, error) {
	var records []*core.Record
	err := s.app.RecordQuery(CollectionDesigns).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"event_id": eventID}).
		OrderBy("created DESC", "rowid DESC").
		All(&records)
	if err != nil {
		return nil, storeErr("list designs", err)
	}

	designs := make([]models.TicketDesign, 0, len(records))
	for _, rec := range records {
		d, err := designFromRecord(rec)
		if err != nil {
			return nil, storeErr("read design", err)
		}
		designs = append(designs, *d)
	}
	return designs, nil
}

// InsertTicket stores one ticket. A duplicate qr_code, or a ticket number
// already taken within the same design batch, is rejected.
func (s *Store) InsertTicket(ctx context.Context, t models.Ticket) (*models.Ticket, error) {
	collection, err := s.app.FindCachedCollectionByNameOrId(CollectionTickets)
	if err != nil {
		return nil, storeErr("tickets collection", err)
	}

	rec := core.NewRecord(collection)
	rec.Set("event_id", t.EventID)
	rec.Set("design_id", t.DesignID)
	rec.Set("qr_code", t.QRCode)
	rec.Set("ticket_number", t.TicketNumber)
	rec.Set("is_used", false)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		slog.Error("Failed to insert ticket", "event_id", t.EventID, "ticket_number", t.TicketNumber, "error", err)
		return nil, storeErr("insert ticket", err)
	}

	out := ticketFromRecord(rec)
	return &out, nil
}

func (s *Store) FindTicket(ctx context.Context, id string) (*models.Ticket, error) {
	rec, err := s.app.FindRecordById(CollectionTickets, id, withCtx(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, storeErr("find ticket", err)
	}

	t := ticketFromRecord(rec)
	return &t, nil
}

type ticketEventRow struct {
	ID               string         `db:"id"`
	EventID          string         `db:"event_id"`
	DesignID         string         `db:"design_id"`
	QRCode           string         `db:"qr_code"`
	TicketNumber     int            `db:"ticket_number"`
	IsUsed           bool           `db:"is_used"`
	UsedAt           types.DateTime `db:"used_at"`
	Created          types.DateTime `db:"created"`
	EventName        string         `db:"event_name"`
	EventDescription string         `db:"event_description"`
	EventDate        types.DateTime `db:"event_date"`
	EventOwner       string         `db:"event_owner"`
	EventCreated     types.DateTime `db:"event_created"`
}

// FindTicketByCode looks a ticket up by its code together with its event.
// A ticket whose event is gone is reported as not found.
func (s *Store) FindTicketByCode(ctx context.Context, code string) (*models.TicketWithEvent, error) {
	var row ticketEventRow
	err := s.app.DB().NewQuery(`
		SELECT
			t.id AS id, t.event_id AS event_id, t.design_id AS design_id,
			t.qr_code AS qr_code,
			t.ticket_number AS ticket_number, t.is_used AS is_used,
			t.used_at AS used_at, t.created AS created,
			e.name AS event_name, e.description AS event_description,
			e.event_date AS event_date, e.owner AS event_owner,
			e.created AS event_created
		FROM tickets t
		INNER JOIN events e ON e.id = t.event_id
		WHERE t.qr_code = {:code}
		LIMIT 1`).
		WithContext(ctx).
		Bind(dbx.Params{"code": code}).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, storeErr("find ticket by code", err)
	}

	out := &models.TicketWithEvent{
		Ticket: models.Ticket{
			ID:           row.ID,
			EventID:      row.EventID,
			DesignID:     row.DesignID,
			QRCode:       row.QRCode,
			TicketNumber: row.TicketNumber,
			IsUsed:       row.IsUsed,
			UsedAt:       timePtr(row.UsedAt),
			CreatedAt:    row.Created.Time(),
		},
		Event: models.Event{
			ID:          row.EventID,
			Name:        row.EventName,
			Description: row.EventDescription,
			EventDate:   row.EventDate.Time(),
			Owner:       row.EventOwner,
			CreatedAt:   row.EventCreated.Time(),
		},
	}
	return out, nil
}

// MarkTicketUsed flips is_used only while it is still false and returns the
// affected row count: 1 for this caller's redemption, 0 if the ticket was
// already used or no longer exists.
func (s *Store) MarkTicketUsed(ctx context.Context, id string, at time.Time) (int64, error) {
	usedAt, err := types.ParseDateTime(at.UTC())
	if err != nil {
		return 0, storeErr("used_at", err)
	}

	var eventID string
	err = s.app.DB().NewQuery(`
		UPDATE tickets
		SET is_used = TRUE, used_at = {:usedAt}
		WHERE id = {:id} AND is_used = FALSE
		RETURNING event_id`).
		WithContext(ctx).
		Bind(dbx.Params{"id": id, "usedAt": usedAt.String()}).
		Row(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		slog.Error("Failed to mark ticket used", "ticket_id", id, "error", err)
		return 0, storeErr("mark used", err)
	}

	s.notify(models.ChangeUpdate, id, eventID)
	return 1, nil
}

type deletedRow struct {
	ID      string `db:"id"`
	EventID string `db:"event_id"`
}

// DeleteTickets removes tickets in chunks so that no single statement grows
// with the selection size. It stops at the first failing chunk. Only rows
// that were actually removed are reported to subscribers.
func (s *Store) DeleteTickets(ctx context.Context, ids []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += s.chunkSize {
		end := min(start+s.chunkSize, len(ids))

		params := dbx.Params{}
		placeholders := make([]string, 0, end-start)
		for i, id := range ids[start:end] {
			key := fmt.Sprintf("id%d", i)
			params[key] = id
			placeholders = append(placeholders, "{:"+key+"}")
		}

		var rows []deletedRow
		err := s.app.DB().NewQuery(
			"DELETE FROM tickets WHERE id IN (" + strings.Join(placeholders, ", ") + ") RETURNING id, event_id").
			WithContext(ctx).
			Bind(params).
			All(&rows)
		if err != nil {
			slog.Error("Failed to delete tickets", "chunk_start", start, "chunk_size", end-start, "error", err)
			return deleted, storeErr("delete tickets", err)
		}
		deleted += int64(len(rows))

		for _, row := range rows {
			s.notify(models.ChangeDelete, row.ID, row.EventID)
		}
	}
	return deleted, nil
}

// ListTickets returns an event's tickets ordered by ticket number.
func (s *Store) ListTickets(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var records []*core.Record
	err := s.app.RecordQuery(CollectionTickets).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"event_id": eventID}).
		OrderBy("ticket_number ASC").
		All(&records)
	if err != nil {
		return nil, storeErr("list tickets", err)
	}

	tickets := make([]models.Ticket, 0, len(records))
	for _, rec := range records {
		tickets = append(tickets, ticketFromRecord(rec))
	}
	return tickets, nil
}

// CountTickets returns the total and used ticket counts of an event.
func (s *Store) CountTickets(ctx context.Context, eventID string) (total, used int, err error) {
	var row struct {
		Total int `db:"total"`
		Used  int `db:"used"`
	}
	err = s.app.DB().NewQuery(`
		SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_used THEN 1 ELSE 0 END), 0) AS used
		FROM tickets
		WHERE event_id = {:eventID}`).
		WithContext(ctx).
		Bind(dbx.Params{"eventID": eventID}).
		One(&row)
	if err != nil {
		return 0, 0, storeErr("count tickets", err)
	}
	return row.Total, row.Used, nil
}

func (s *Store) FindTicketDesign(ctx context.Context, id string) (*models.TicketDesign, error) {
	rec, err := s.app.FindRecordById(CollectionDesigns, id, withCtx(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrDesignNotFound
	}
	if err != nil {
		return nil, storeErr("find design", err)
	}

	d, err := designFromRecord(rec)
	if err != nil {
		return nil, storeErr("read design", err)
	}
	return d, nil
}

func eventFromRecord(rec *core.Record) models.Event {
	return models.Event{
		ID:          rec.Id,
		Name:        rec.GetString("name"),
		Description: rec.GetString("description"),
		EventDate:   rec.GetDateTime("event_date").Time(),
		Owner:       rec.GetString("owner"),
		CreatedAt:   rec.GetDateTime("created").Time(),
	}
}

func designFromRecord(rec *core.Record) (*models.TicketDesign, error) {
	d := &models.TicketDesign{
		ID:              rec.Id,
		EventID:         rec.GetString("event_id"),
		Title:           rec.GetString("title"),
		Subtitle:        rec.GetString("subtitle"),
		BackgroundImage: rec.GetString("background_image"),
		Options:         models.DefaultDesignOptions(),
		CreatedAt:       rec.GetDateTime("created").Time(),
	}
	if err := rec.UnmarshalJSONField("options", &d.Options); err != nil {
		return nil, err
	}
	return d, nil
}

func ticketFromRecord(rec *core.Record) models.Ticket {
	return models.Ticket{
		ID:           rec.Id,
		EventID:      rec.GetString("event_id"),
		DesignID:     rec.GetString("design_id"),
		QRCode:       rec.GetString("qr_code"),
		TicketNumber: rec.GetInt("ticket_number"),
		IsUsed:       rec.GetBool("is_used"),
		UsedAt:       timePtr(rec.GetDateTime("used_at")),
		CreatedAt:    rec.GetDateTime("created").Time(),
	}
}

func timePtr(dt types.DateTime) *time.Time {
	if dt.IsZero() {
		return nil
	}
	t := dt.Time()
	return &t
}
