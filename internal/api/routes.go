package api

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Services bundles what the routes dispatch to.
type Services struct {
	Auth     service.AuthService
	Sessions service.SessionService
	Trainer  service.TrainerService
	Incident service.IncidentService
	// Ping checks backing stores for /ping. Optional.
	Ping func(ctx context.Context) error
}

// RateLimit configures RateLimitMiddleware for the API group.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

func SetupRoutes(router *gin.Engine, jwtSecret string, limit RateLimit, svc Services) {
	authHandler := NewAuthHandler(svc.Auth)
	sessionHandler := NewSessionHandler(svc.Sessions)
	trainerHandler := NewTrainerHandler(svc.Trainer)
	adminHandler := NewAdminHandler(svc.Sessions, svc.Incident)
	incidentHandler := NewIncidentHandler(svc.Incident)

	router.GET("/ping", func(c *gin.Context) {
		if svc.Ping != nil {
			if err := svc.Ping(c.Request.Context()); err != nil {
				log.Printf("WARN: Health check failed: %v", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"message": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(RateLimitMiddleware(limit.RequestsPerSecond, limit.Burst))
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(jwtSecret))
	{
		protected.GET("/me", authHandler.Me)

		sessions := protected.Group("/sessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("", sessionHandler.ListSessions)
			// static segments before :id
			sessions.GET("/current", sessionHandler.GetCurrentSession)
			sessions.GET("/analytics", sessionHandler.GetAnalytics)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.PATCH("/:id", sessionHandler.UpdateSession)
		}

		protected.POST("/incidents", incidentHandler.ReportIncident)

		trainerGroup := protected.Group("/trainer")
		trainerGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			trainerGroup.POST("/clients", trainerHandler.AddClientByEmail)
			trainerGroup.GET("/clients", trainerHandler.GetManagedClients)
			trainerGroup.GET("/stats", trainerHandler.GetStats)
		}

		adminGroup := protected.Group("/admin")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.GET("/session-stats", adminHandler.GetSessionStats)
			adminGroup.POST("/sessions/:id/end", adminHandler.EndSession)
			adminGroup.GET("/incidents/:id", adminHandler.GetIncident)
		}
	}
}
