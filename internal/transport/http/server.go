package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigboard/internal/cache"
	"gigboard/internal/config"
	"gigboard/internal/database"
	"gigboard/internal/handler"
	"gigboard/internal/queue"
	"gigboard/internal/redis"
	"gigboard/internal/repository"
	"gigboard/internal/service"
	"gigboard/internal/worker"
)

// Run wires the full push backend: database, Redis (cache, streams, pub/sub),
// snapshot workers, and the HTTP surface. Blocks until SIGINT/SIGTERM.
func Run() error {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect to the database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Connect to Redis
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 4. Build the layers
	commentRepo := repository.NewCommentRepository(db)
	snapCache := cache.NewSnapshotCache(redisClient.Client)
	publisher := queue.NewPublisher(redisClient.Client)
	commentService := service.NewCommentService(commentRepo, snapCache, publisher)

	// 5. Start the snapshot workers
	consumer := queue.NewConsumer(redisClient.Client)
	workerHandler := worker.NewHandler(commentRepo, snapCache)
	workerHandler.SetBroadcaster(redis.NewBroadcaster(redisClient))
	manager := worker.NewManager(consumer, workerHandler, worker.ManagerConfig{})
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer manager.Stop()

	// 6. HTTP surface
	router := NewRouter(RouterConfig{
		CommentHandler: handler.NewCommentHandler(commentService),
		StreamHandler:  handler.NewStreamHandler(commentService, redisClient),
		JWTSecret:      cfg.JWTSecret,
	})

	server := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Printf("Received %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
