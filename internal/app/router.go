package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"voyage/internal/handler"
	"voyage/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler    *handler.TripHandler
	BookingHandler *handler.BookingHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Trip routes.
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.POST("/:id/cancel", deps.TripHandler.CancelTrip)
			trips.POST("/:id/revoke-confirmation", deps.TripHandler.RevokeConfirmation)
		}

		// Leg confirmation routes.
		legs := v1.Group("/legs")
		{
			legs.POST("/:id/provider-answer", deps.TripHandler.ProviderAnswer)
			legs.POST("/:id/traveller-answer", deps.TripHandler.TravellerAnswer)
		}

		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.BookingHandler.CreateRide)
		}

		// Booking routes.
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", deps.BookingHandler.CreateBooking)
			bookings.GET("/:id", deps.BookingHandler.GetBooking)
			bookings.POST("/:id/cancel", deps.BookingHandler.CancelBooking)
		}
	}

	return router
}
