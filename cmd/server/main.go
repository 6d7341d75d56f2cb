package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/api/handlers"
	"github.com/feichai0017/certificate-processor/api/routes"
	"github.com/feichai0017/certificate-processor/config"
	"github.com/feichai0017/certificate-processor/internal/app"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialise services", logger.Error(err))
	}

	h := handlers.NewHandlers(a.Pipeline, a.Gateway, a.DocumentProcessor(), log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error("Failed to release resources", logger.Error(err))
		os.Exit(1)
	}
}
