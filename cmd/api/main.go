package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "github.com/yasser311511/chat-app2/cmd/api/router/v1"
	cacheAdapter "github.com/yasser311511/chat-app2/internal/infrastructure/cache/adapter"
	"github.com/yasser311511/chat-app2/internal/infrastructure/database"
	queueAdapter "github.com/yasser311511/chat-app2/internal/infrastructure/queue/adapter"
	"github.com/yasser311511/chat-app2/internal/infrastructure/realtime"
	"github.com/yasser311511/chat-app2/internal/logging"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/task"
	repoAdapter "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/adapter"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found or could not be loaded", "err", err)
	}

	log := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if dsn := os.Getenv("DB_URL"); dsn != "" {
		if err := database.RunMigrations(bootCtx, dsn); err != nil {
			log.Error(bootCtx, "migrations failed", "err", err)
			os.Exit(1)
		}
	}

	pool, err := database.NewPoolFromEnv(bootCtx)
	if err != nil {
		log.Error(bootCtx, "database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	cache, err := cacheAdapter.NewRedisAdapter()
	if err != nil {
		log.Error(bootCtx, "redis connect failed", "err", err)
		os.Exit(1)
	}
	defer cache.Close()

	queueClient, err := queueAdapter.NewAsynqClientFromEnv()
	if err != nil {
		log.Error(bootCtx, "queue client init failed", "err", err)
		os.Exit(1)
	}
	defer queueClient.Close()

	queueServer, err := queueAdapter.NewAsynqServer()
	if err != nil {
		log.Error(bootCtx, "queue server init failed", "err", err)
		os.Exit(1)
	}
	task.RegisterPersistMessageTask(queueServer, pool)
	task.RegisterAuditEventTask(queueServer, pool)
	go func() {
		if err := queueServer.Run(ctx); err != nil {
			log.Error(ctx, "queue server stopped", "err", err)
		}
	}()

	rtRouter := realtime.NewRouter()
	store := repoAdapter.NewPgStore(pool)
	eng := engine.New(store, rtRouter, task.NewQueue(queueClient), log, engine.Config{})
	if err := eng.Load(bootCtx); err != nil {
		log.Error(bootCtx, "engine load failed", "err", err)
		os.Exit(1)
	}
	if owner := os.Getenv("OWNER_USERNAME"); owner != "" {
		if err := eng.EnsureOwner(bootCtx, owner, os.Getenv("OWNER_PASSWORD")); err != nil {
			log.Error(bootCtx, "owner bootstrap failed", "err", err)
			os.Exit(1)
		}
	}
	go eng.RunSweeper(ctx)

	r := gin.Default()
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	v1.RegisterRoutes(r, pool, cache, rtRouter, eng)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		log.Info(ctx, "http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	eng.Shutdown()
	rtRouter.Close()
	_ = queueServer.Stop(shutdownCtx)
	log.Info(shutdownCtx, "shutdown complete")
}
