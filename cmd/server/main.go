package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"biocloud/internal/auth"
	"biocloud/internal/config"
	"biocloud/internal/domain/services"
	"biocloud/internal/formats"
	"biocloud/internal/handler"
	"biocloud/internal/handler/sse"
	"biocloud/internal/middleware"
	"biocloud/internal/realtime"
	"biocloud/internal/repository/postgres"
	"biocloud/internal/scene"
	serviceAuth "biocloud/internal/service/auth"
	"biocloud/internal/service/comment"
	"biocloud/internal/service/ingest"
	"biocloud/internal/service/profile"
	"biocloud/internal/service/project"
	"biocloud/internal/session"
	"biocloud/internal/storage"
	"biocloud/internal/storage/s3store"
	"biocloud/internal/viewer"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logger, logCloser, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger) // Set as default logger

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(ctx, cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	projectRepo := postgres.NewProjectRepository(repoConfig)
	commentRepo := postgres.NewCommentRepository(repoConfig)
	profileRepo := postgres.NewProfileRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Realtime feed: Redis when configured so every instance sees every change
	var feed realtime.Feed
	if cfg.RedisURL != "" {
		redisFeed, err := realtime.NewRedisFeed(cfg.RedisURL, cfg.TablePrefix, logger)
		if err != nil {
			log.Fatalf("Failed to connect realtime feed: %v", err)
		}
		feed = redisFeed
		logger.Info("realtime feed: redis")
	} else {
		feed = realtime.NewMemoryFeed(logger)
		logger.Info("realtime feed: in-process")
	}
	defer feed.Close()

	// Object store
	var objects services.ObjectStore
	if cfg.Storage.Enabled() {
		store, err := s3store.New(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to create object store: %v", err)
		}
		objects = store
		logger.Info("object store: s3", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	} else {
		objects = storage.NewMemoryStore(cfg.Storage.PublicBaseURL)
		logger.Warn("object store: in-memory (uploads are lost on restart)")
	}

	// Format catalog
	catalog, err := formats.Default()
	if err != nil {
		log.Fatalf("Failed to load format catalog: %v", err)
	}

	// Create services
	authorizer := serviceAuth.NewOwnerBasedAuthorizer(projectRepo, commentRepo)
	projectService := project.NewService(projectRepo, txManager, authorizer, objects, logger)
	ingestService := ingest.NewService(projectRepo, objects, catalog, logger)
	commentService := comment.NewService(commentRepo, projectRepo, profileRepo, authorizer, logger)
	profileService := profile.NewService(profileRepo, logger)

	uploadLimiter := middleware.NewKeyedLimiter(cfg.UploadsPerMinute, 3)
	commentLimiter := middleware.NewKeyedLimiter(cfg.CommentsPerMinute, 5)

	engine := scene.NewEngine()
	fetcher := &viewer.StoreFetcher{Store: objects}
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")

	// Create handlers
	projectHandler := handler.NewProjectHandler(projectService, ingestService, logger)
	commentHandler := handler.NewCommentHandler(commentService, logger)
	profileHandler := handler.NewProfileHandler(profileService, logger)
	sceneHandler := handler.NewSceneHandler(projectService, engine, fetcher, catalog, logger)
	streamHandler := handler.NewProjectStreamHandler(feed, sse.DefaultConfig(), logger)
	realtimeHandler := handler.NewRealtimeHandler(session.Deps{
		Projects:   projectService,
		Comments:   commentService,
		Subscriber: feed,
		Engine:     engine,
		Fetcher:    fetcher,
		Catalog:    catalog,
		Limiter:    commentLimiter,
		Logger:     logger,
	}, session.DefaultSettings(), corsOrigins, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Project routes
	mux.HandleFunc("GET /api/projects", projectHandler.ListProjects)
	mux.Handle("POST /api/projects", middleware.RateLimit(uploadLimiter)(http.HandlerFunc(projectHandler.Upload)))
	mux.HandleFunc("GET /api/projects/stream", streamHandler.StreamProjects) // Must come before {id} route
	mux.HandleFunc("GET /api/projects/{id}", projectHandler.GetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", projectHandler.DeleteProject)
	mux.HandleFunc("PUT /api/projects/{id}/visibility", projectHandler.SetVisibility)
	mux.HandleFunc("PUT /api/projects/{id}/notes", projectHandler.SaveNotes)
	mux.HandleFunc("GET /api/projects/{id}/scene", sceneHandler.GetScene)

	// Comment routes
	mux.HandleFunc("GET /api/projects/{id}/comments", commentHandler.ListComments)
	mux.Handle("POST /api/projects/{id}/comments", middleware.RateLimit(commentLimiter)(http.HandlerFunc(commentHandler.PostComment)))
	mux.HandleFunc("DELETE /api/comments/{id}", commentHandler.DeleteComment)

	// User routes
	mux.HandleFunc("GET /api/users/me", profileHandler.GetMe)

	// Realtime client sessions (WebSocket)
	mux.HandleFunc("GET /api/realtime", realtimeHandler.Connect)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Auth → Recovery → Routes
	h = middleware.Recovery(logger)(h)
	h = middleware.AuthMiddleware(jwtVerifier)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams and WebSockets
		IdleTimeout:  60 * time.Second,
		// Hijacked WebSocket requests end with this context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	// Relay committed row changes from Postgres onto the feed
	listener := postgres.NewChangeListener(cfg.ListenDBURL, tables, feed, logger)
	g.Go(func() error {
		return listener.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
