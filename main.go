package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"shortlink/internal/analytics"
	"shortlink/internal/auth"
	"shortlink/internal/config"
	"shortlink/internal/controllers"
	"shortlink/internal/eventlog"
	"shortlink/internal/geo"
	"shortlink/internal/middleware"
	"shortlink/internal/registry"
	"shortlink/internal/session"
	"shortlink/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Pick the store backend: Postgres, then Redis, then in-memory
	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer kv.Close()

	// Registry over the store; lift any legacy collection before serving
	reg := registry.New(kv)
	if err := reg.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to migrate URL collection: %v", err)
	}

	events := eventlog.New(kv)

	// Click recording with best-effort geo enrichment
	var geoClient *geo.Client
	if cfg.GeoURL != "" {
		geoClient = geo.NewClient(cfg.GeoURL, time.Duration(cfg.GeoTimeoutMS)*time.Millisecond)
	} else {
		log.Println("GEO_URL not set, clicks will be recorded with country Unknown")
	}
	recorder := analytics.NewRecorder(reg, geoClient, time.Duration(cfg.GeoTimeoutMS)*time.Millisecond)

	// Authentication boundary: remote service if configured, local issuer otherwise
	var boundary auth.Boundary
	var issuer *auth.Issuer
	if cfg.AuthURL != "" {
		boundary = auth.NewHTTPClient(cfg.AuthURL)
	} else {
		if cfg.JWTSecret == "" {
			log.Fatalf("JWT_SECRET is required when no AUTH_URL is configured")
		}
		issuer = auth.NewIssuer(kv, cfg.JWTSecret, time.Duration(cfg.TokenTTLSeconds)*time.Second)
		boundary = issuer
	}

	// Session manager with proactive renewal and cross-context reconciliation
	manager := session.NewManager(kv, boundary, time.Duration(cfg.RefreshLeadMinutes)*time.Minute)
	defer manager.Close()

	// Initialize controllers
	shortenerController := controllers.NewShortenerController(reg, recorder, events, cfg.BaseURL, time.Duration(cfg.DefaultTTLMinutes)*time.Minute)
	authController := controllers.NewAuthController(manager, issuer, events)

	// Initialize rate limiters
	generalRateLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	authRateLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitAuthRPS), cfg.RateLimitAuthBurst)
	shortenRateLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitShortenRPS), cfg.RateLimitShortenBurst)
	redirectRateLimiter := middleware.NewRateLimiter(30.0, 60) // More lenient for redirects

	// Create a Gin router
	router := gin.Default()

	// Health check endpoint (no rate limiting)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Redirect endpoint with rate limiting
	router.GET("/:shortCode", redirectRateLimiter.Limit(), shortenerController.RedirectToURL)

	// API v1 routes group with general rate limiting
	api := router.Group("/api/v1")
	api.Use(generalRateLimiter.Limit())
	{
		// Auth routes with stricter rate limiting
		authRoutes := api.Group("/auth")
		authRoutes.Use(authRateLimiter.Limit())
		{
			authRoutes.POST("/register", authController.Register)
			authRoutes.POST("/login", authController.Login)
		}

		// Protected routes - require a live session
		protected := api.Group("")
		protected.Use(middleware.RequireSession(manager))
		{
			protected.POST("/shorten", shortenRateLimiter.Limit(), shortenerController.CreateShortURL)
			protected.POST("/auth/logout", authController.Logout)
			protected.GET("/auth/me", authController.Me)

			protected.GET("/urls", shortenerController.ListURLs)
			protected.GET("/url/:shortCode", shortenerController.GetURLStats)
			protected.GET("/url/:shortCode/analytics", shortenerController.GetClickAnalytics)
			protected.PATCH("/url/:shortCode", shortenerController.UpdateURLExpiresAt)
			protected.DELETE("/url/:shortCode", shortenerController.DeleteURL)
			protected.POST("/maintenance/sweep", shortenerController.Sweep)
		}
	}

	// Start the server on port 8080
	log.Println("Server starting on http://localhost:8080")
	router.Run(":8080")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(pg.DB()); err != nil {
			pg.Close()
			return nil, err
		}
		log.Println("Using Postgres store")
		return pg, nil
	}

	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Println("Using Redis store")
		return rs, nil
	}

	log.Println("Warning: no DATABASE_URL or REDIS_URL set, using in-memory store")
	return store.NewMemoryStore(), nil
}
