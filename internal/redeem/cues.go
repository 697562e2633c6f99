package redeem

import (
	"fmt"
	"time"

	"qrticket/models"
)

// Cue is the audible and haptic feedback a station plays for an outcome.
type Cue struct {
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
	ToneHz    int     `json:"tone_hz"`
	ToneMs    int     `json:"tone_ms"`
	Vibration []int   `json:"vibration"`
	Volume    float64 `json:"volume"`
}

var cues = map[models.OutcomeKind]Cue{
	models.OutcomeRedeemed:    {ToneHz: 880, ToneMs: 150, Vibration: []int{100}, Volume: 0.3},
	models.OutcomeAlreadyUsed: {ToneHz: 440, ToneMs: 300, Vibration: []int{100, 50, 100}, Volume: 0.3},
	models.OutcomeInvalid:     {ToneHz: 220, ToneMs: 400, Vibration: []int{200, 100, 200}, Volume: 0.3},
}

func CueFor(o *models.Outcome) Cue {
	c, ok := cues[o.Kind]
	if !ok {
		c = cues[models.OutcomeInvalid]
	}
	c.Vibration = append([]int(nil), c.Vibration...)
	c.Severity = o.Severity()
	c.Message = Message(o)
	return c
}

// Message is the operator-facing text for o.
func Message(o *models.Outcome) string {
	switch o.Kind {
	case models.OutcomeRedeemed:
		if o.Ticket != nil {
			return fmt.Sprintf("Valid ticket #%03d for %s", o.Ticket.TicketNumber, o.Ticket.Event.Name)
		}
		return "Valid ticket"
	case models.OutcomeAlreadyUsed:
		if o.UsedAt != nil {
			return "Ticket already used at " + o.UsedAt.UTC().Format(time.DateTime) + " UTC"
		}
		return "Ticket already used"
	default:
		return "Invalid ticket"
	}
}
