package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hoangnt/dialout/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint: the service is healthy when it can reach both
	// the database and the message broker.
	r.GET("/health", func(c *gin.Context) {
		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
		if !deps.RabbitClient.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "message broker unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "call-api-service",
		})
	})

	callHandler := handler.NewCallHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		calls := v1.Group("/calls")
		{
			// POST /api/v1/calls - Submit a new outbound call
			calls.POST("", callHandler.CreateCall)

			// GET /api/v1/calls - List calls with filtering and pagination
			calls.GET("", callHandler.ListCalls)

			// GET /api/v1/calls/:call_id - Get call details
			calls.GET("/:call_id", callHandler.GetCall)

			// POST /api/v1/calls/:call_id/cancel - Cancel a pending call
			calls.POST("/:call_id/cancel", callHandler.CancelCall)

			// DELETE /api/v1/calls/:call_id - Delete a finished call
			calls.DELETE("/:call_id", callHandler.DeleteCall)
		}
	}

	return r
}
