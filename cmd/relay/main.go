package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/chat-relay/internal/api"
	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/presence"
	"github.com/mohamedkhairy/chat-relay/internal/pubsub"
	"github.com/mohamedkhairy/chat-relay/internal/relay"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting chat relay service",
		logger.Int("port", cfg.Relay.Port),
		logger.Strings("allowed_origins", cfg.Relay.AllowedOrigins),
		logger.Int("max_connections", cfg.Relay.MaxConnections),
		logger.Bool("auth_enabled", cfg.Relay.JWTSecret != ""),
		logger.Bool("presence_mirror", cfg.Presence.MirrorEnabled),
		logger.Bool("archive", cfg.Archive.Enabled),
	)

	opts := relay.RouterOptions{
		RejectUnregisteredSenders: cfg.Relay.RejectUnregisteredSenders,
	}

	if cfg.RedisRequired() {
		redisClient, err := pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client",
				logger.ErrorField(err),
			)
		}
		defer redisClient.Close()

		if cfg.Presence.MirrorEnabled {
			mirror := presence.NewRedisMirror(redisClient, cfg.Presence)
			if err := mirror.Start(); err != nil {
				logger.Fatal("Failed to start presence mirror",
					logger.ErrorField(err),
				)
			}
			defer mirror.Stop()
			opts.Mirror = mirror
		}

		if cfg.Archive.Enabled {
			archive := relay.NewStreamArchive(redisClient, cfg.Archive.Stream, 0)
			defer archive.Close()
			opts.Archive = archive
		}
	}

	// Initialize hub
	hub := relay.NewHub(cfg.Relay, presence.NewRegistry(), opts)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start relay hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	// Set up HTTP server
	router := newRouter(cfg, hub)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Relay.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down chat relay service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Chat relay service stopped")
}

// newRouter mounts the websocket endpoint, health and metrics routes and the
// presence API
func newRouter(cfg *config.Config, hub *relay.Hub) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.ServeWS)
	api.NewHealthHandler(hub).Register(router)
	router.Handle("/metrics", promhttp.Handler())

	v1 := api.NewAPIRouter(router)
	v1.Use(mux.MiddlewareFunc(api.ChainMiddleware(
		api.ErrorHandlingMiddleware(),
		api.LoggingMiddleware(),
		api.CORSMiddleware(cfg.Relay.OriginAllowed),
		api.RateLimitMiddleware(cfg.API.RateLimitRPS, cfg.API.TrustForwardedFor),
	)))
	api.NewPresenceHandler(hub.Directory()).Register(v1)

	return router
}
