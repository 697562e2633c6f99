package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"qrticket/security"
	"qrticket/utils"
)

type Routes struct {
	Events  *EventHandler
	Tickets *TicketHandler
	Scan    *ScanHandler
	Limiter *security.RateLimiter
	Redis   *redis.Client
}

// Register mounts the API under /api/v1.
func (r *Routes) Register(se *core.ServeEvent) {
	api := se.Router.Group("/api/v1")

	// Event endpoints
	api.POST("/events", r.Events.CreateEvent)
	api.GET("/events/{eventId}", r.Events.GetEvent)
	api.GET("/events/{eventId}/designs", r.Events.ListDesigns)
	api.GET("/events/{eventId}/tickets", r.Events.ListTickets)
	api.GET("/events/{eventId}/stats", r.Events.GetStats)

	// Ticket endpoints
	api.POST("/tickets/preview", r.Tickets.Preview)
	api.POST("/events/{eventId}/tickets/generate", r.Tickets.Generate)
	api.GET("/tickets/{ticketId}/download", r.Tickets.Download)
	api.POST("/tickets/delete-batch", r.Events.DeleteTickets)

	// Scan endpoints
	validate := api.POST("/scan/validate", r.Scan.Validate).BindFunc(security.BlockBots)
	station := api.GET("/scan/station", r.Scan.Station)
	if r.Limiter != nil {
		validate.BindFunc(r.Limiter.Limit("validate"))
		station.BindFunc(r.Limiter.Limit("station"))
	}
	api.GET("/scan/history", r.Scan.History)

	// Health check
	se.Router.GET("/health", r.Health)
}

func (r *Routes) Health(e *core.RequestEvent) error {
	if r.Redis != nil {
		if err := utils.RedisHealthCheck(r.Redis); err != nil {
			return e.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	if _, err := e.App.DB().NewQuery("SELECT 1").Execute(); err != nil {
		return e.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
