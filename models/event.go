package models

import (
	"time"
)

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	EventDate   time.Time `json:"event_date"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TicketDesign is the snapshot of rendering inputs chosen for one generation run.
type TicketDesign struct {
	ID       string `json:"id"`
	EventID  string `json:"event_id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	// BackgroundImage is a data URL of the uploaded background, if any.
	BackgroundImage string              `json:"background_image,omitempty"`
	Options         RenderDesignOptions `json:"options"`
	CreatedAt       time.Time           `json:"created_at"`
}

type EventStats struct {
	EventID     string `json:"event_id"`
	Total       int    `json:"total"`
	Used        int    `json:"used"`
	Remaining   int    `json:"remaining"`
	UsedPercent string `json:"used_percent"`
}
