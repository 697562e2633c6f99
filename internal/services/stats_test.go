package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrticket/internal/status"
	"qrticket/models"
)

func TestUsedPercent(t *testing.T) {
	tests := []struct {
		used, total int
		want        string
	}{
		{0, 0, "0.00"},
		{0, 3, "0.00"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{3, 3, "100.00"},
		{1, 8, "12.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UsedPercent(tt.used, tt.total), "%d/%d", tt.used, tt.total)
	}
}

func TestEventStats(t *testing.T) {
	st := newTestStore(t)
	ev := seedEvent(t, st)
	ctx := context.Background()

	var first *models.Ticket
	for i := 1; i <= 3; i++ {
		tk, err := st.InsertTicket(ctx, models.Ticket{
			EventID:      ev.ID,
			QRCode:       "TKT-STATS-00" + string(rune('0'+i)),
			TicketNumber: i,
		})
		require.NoError(t, err)
		if first == nil {
			first = tk
		}
	}
	_, err := st.MarkTicketUsed(ctx, first.ID, time.Now())
	require.NoError(t, err)

	stats, err := NewStatsService(st).EventStats(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, &models.EventStats{
		EventID:     ev.ID,
		Total:       3,
		Used:        1,
		Remaining:   2,
		UsedPercent: "33.33",
	}, stats)

	_, err = NewStatsService(st).EventStats(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrEventNotFound)
}
