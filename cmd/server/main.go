package main

import (
	"alcyxob/session-tracker/internal/api"
	"alcyxob/session-tracker/internal/cache"
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/config"
	"alcyxob/session-tracker/internal/repository/mongo"
	"alcyxob/session-tracker/internal/service"
	"alcyxob/session-tracker/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting Session Tracker Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatalf("FATAL: jwt.secret (JWT_SECRET) must be set")
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureSessionIndexes(ctx, appDB.Collection("sessions"))
		mongo.EnsureIncidentIndexes(ctx, appDB.Collection("incidents"))
		log.Println("Index creation process completed.")
	}()

	// --- Analytics Cache ---
	analyticsCache := cache.NewNoopAnalyticsCache()
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Printf("WARN: Redis unavailable, analytics are computed on every request: %v", err)
		} else {
			defer rdb.Close()
			analyticsCache = cache.NewRedisAnalyticsCache(rdb, cfg.Redis.AnalyticsTTL)
			log.Printf("INFO: Analytics cache enabled at %s", cfg.Redis.Addr)
		}
	}

	// --- Incident Archive ---
	archive := storage.NewLogArchive()
	if cfg.S3.BucketName != "" {
		s3Archive, err := storage.NewS3Archive(context.Background(), cfg.S3)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize S3 incident archive: %v", err)
		}
		archive = s3Archive
	}

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	sessionRepo := mongo.NewMongoSessionRepository(appDB)
	incidentRepo := mongo.NewMongoIncidentRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	clk := clock.Real{}
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	sessionService := service.NewSessionService(sessionRepo, userRepo, analyticsCache, clk)
	trainerService := service.NewTrainerService(userRepo, sessionRepo, clk)
	incidentService := service.NewIncidentService(incidentRepo, archive, clk)

	if cfg.Server.AdminEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), mongo.DefaultTimeout)
		err := authService.SeedAdmin(ctx, cfg.Server.AdminName, cfg.Server.AdminEmail, cfg.Server.AdminPassword)
		cancel()
		if err != nil {
			log.Fatalf("FATAL: Could not seed admin account: %v", err)
		}
	}

	// --- Initialize Gin Engine ---
	router := gin.Default()

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, api.RateLimit{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, api.Services{
		Auth:     authService,
		Sessions: sessionService,
		Trainer:  trainerService,
		Incident: incidentService,
		Ping: func(ctx context.Context) error {
			return mongo.Ping(ctx, dbClient)
		},
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
