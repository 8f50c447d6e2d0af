package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/http/controller"
	"github.com/tnqbao/gau-vm-session-service/http/route"
	infraPkg "github.com/tnqbao/gau-vm-session-service/infra"
	"github.com/tnqbao/gau-vm-session-service/repository"
	"github.com/tnqbao/gau-vm-session-service/service"
)

func main() {
	err := godotenv.Load("staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)

	orchestrator, err := service.InitOrchestrator(cfg, infra, repo)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	ctrl := controller.NewController(cfg, infra, orchestrator)
	router := routes.SetupRouter(ctrl)

	srv := &http.Server{
		Addr:              ":" + cfg.EnvConfig.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	infra.Close(ctx)
	log.Println("HTTP server stopped")
}
