package services

import (
	"context"

	"github.com/shopspring/decimal"

	"qrticket/models"
)

type TicketCounter interface {
	FindEvent(ctx context.Context, id string) (*models.Event, error)
	CountTickets(ctx context.Context, eventID string) (total, used int, err error)
}

type StatsService struct {
	store TicketCounter
}

func NewStatsService(store TicketCounter) *StatsService {
	return &StatsService{store: store}
}

// EventStats reports attendance for one event.
func (s *StatsService) EventStats(ctx context.Context, eventID string) (*models.EventStats, error) {
	if _, err := s.store.FindEvent(ctx, eventID); err != nil {
		return nil, err
	}

	total, used, err := s.store.CountTickets(ctx, eventID)
	if err != nil {
		return nil, err
	}

	return &models.EventStats{
		EventID:     eventID,
		Total:       total,
		Used:        used,
		Remaining:   total - used,
		UsedPercent: UsedPercent(used, total),
	}, nil
}

// UsedPercent is used/total as a percentage rounded to two decimals.
func UsedPercent(used, total int) string {
	if total <= 0 {
		return decimal.Zero.StringFixed(2)
	}
	return decimal.NewFromInt(int64(used)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		StringFixed(2)
}
