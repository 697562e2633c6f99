package store

import (
	"fmt"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	CollectionEvents  = "events"
	CollectionDesigns = "ticket_designs"
	CollectionTickets = "tickets"
)

// EnsureCollections creates the events, ticket_designs and tickets
// collections when they are missing. It is used by the migration and by
// tests that boot a bare app.
func EnsureCollections(app core.App) error {
	events, err := ensure(app, CollectionEvents, func(c *core.Collection) {
		c.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 200},
			&core.TextField{Name: "description", Max: 2000},
			&core.DateField{Name: "event_date"},
			&core.TextField{Name: "owner", Max: 100},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
	})
	if err != nil {
		return err
	}

	designs, err := ensure(app, CollectionDesigns, func(c *core.Collection) {
		c.Fields.Add(
			&core.RelationField{Name: "event_id", CollectionId: events.Id, MaxSelect: 1, Required: true, CascadeDelete: true},
			&core.TextField{Name: "title", Max: 200},
			&core.TextField{Name: "subtitle", Max: 2000},
			&core.TextField{Name: "background_image", Max: 10 << 20},
			&core.JSONField{Name: "options"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		c.AddIndex("idx_ticket_designs_event", false, "event_id, created", "")
	})
	if err != nil {
		return err
	}

	if _, err := ensure(app, CollectionTickets, func(c *core.Collection) {
		c.Fields.Add(
			&core.RelationField{Name: "event_id", CollectionId: events.Id, MaxSelect: 1, Required: true, CascadeDelete: true},
			&core.RelationField{Name: "design_id", CollectionId: designs.Id, MaxSelect: 1},
			&core.TextField{Name: "qr_code", Required: true, Max: 128},
			&core.NumberField{Name: "ticket_number", Required: true, OnlyInt: true, Min: types.Pointer(1.0)},
			&core.BoolField{Name: "is_used"},
			&core.DateField{Name: "used_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		c.AddIndex("idx_tickets_qr_code", true, "qr_code", "")
		// Numbers run 1..N within the batch that issued them.
		c.AddIndex("idx_tickets_design_number", true, "design_id, ticket_number", "design_id != ''")
		c.AddIndex("idx_tickets_event", false, "event_id, ticket_number", "")
	}); err != nil {
		return err
	}

	return nil
}

// DropCollections removes the collections created by EnsureCollections.
func DropCollections(app core.App) error {
	for _, name := range []string{CollectionTickets, CollectionDesigns, CollectionEvents} {
		c, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(c); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}

func ensure(app core.App, name string, define func(c *core.Collection)) (*core.Collection, error) {
	if c, err := app.FindCollectionByNameOrId(name); err == nil {
		return c, nil
	}

	c := core.NewBaseCollection(name)
	define(c)
	if err := app.Save(c); err != nil {
		return nil, fmt.Errorf("create %s collection: %w", name, err)
	}
	return c, nil
}
