package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/consumer/worker"
	infraPkg "github.com/tnqbao/gau-vm-session-service/infra"
	"github.com/tnqbao/gau-vm-session-service/repository"
	"github.com/tnqbao/gau-vm-session-service/service"
	"github.com/tnqbao/gau-vm-session-service/sweep"
)

func main() {
	err := godotenv.Load("../staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	env := cfg.EnvConfig
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)

	orchestrator, err := service.InitOrchestrator(cfg, infra, repo)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionConsumer := worker.NewSessionConsumer(infra.RabbitMQ.Channel, infra.Logger, orchestrator, clock.Real())
	if err := sessionConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Session consumer: %v", err)
		log.Fatalf("Failed to start Session consumer: %v", err)
	}

	var lease sweep.Lease
	if env.Reconcile.UseLease {
		lease = infra.Redis
	}
	runner := sweep.NewRunner(infra.Logger, lease, clock.Real())

	liveness := sweep.NewLivenessMonitor(repo.SessionRepo, orchestrator, infra.Logger, infra.Metrics, clock.Real(), sweep.LivenessConfig{
		HeartbeatTimeout:   env.Session.HeartbeatTimeout,
		MaxDuration:        env.Session.MaxDuration,
		TerminatingTimeout: env.Session.TerminatingTimeout,
	})
	reconciler := sweep.NewReconciler(repo.SessionRepo, repo.VMRepo, infra.Cloud, orchestrator, infra.Logger, infra.Metrics, clock.Real(), sweep.ReconcilerConfig{
		BatchSize:  env.Reconcile.BatchSize,
		BatchPause: env.Reconcile.BatchPause,
	})

	runner.Add(sweep.Task{Name: sweep.SweepHeartbeatTimeout, Interval: env.Session.HeartbeatCheck, Run: discard(liveness.SweepHeartbeats)})
	runner.Add(sweep.Task{Name: sweep.SweepMaxDuration, Interval: env.Session.MaxDurationCheck, Run: discard(liveness.SweepMaxDuration)})
	runner.Add(sweep.Task{Name: sweep.SweepReconcileFast, Interval: env.Reconcile.FastInterval, Run: discard(reconciler.FastSweep)})
	runner.Add(sweep.Task{Name: sweep.SweepReconcileFull, Interval: env.Reconcile.FullInterval, Run: discard(reconciler.FullSweep)})

	if infra.Minio != nil {
		bucketCtx, bucketCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := infra.Minio.EnsureBucket(bucketCtx); err != nil {
			infra.Logger.ErrorWithContextf(ctx, err, "Heartbeat archive bucket unavailable, archive disabled: %v", err)
		} else {
			archiver := sweep.NewHeartbeatArchiver(repo.SessionRepo, repo.HeartbeatRepo, infra.Minio, infra.Logger, infra.Metrics, clock.Real(), env.Session.HeartbeatRetention)
			runner.Add(sweep.Task{Name: sweep.SweepHeartbeatArchive, Interval: env.Session.ArchiveInterval, Run: discard(archiver.Archive)})
		}
		bucketCancel()
	}

	runner.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel()
	runner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	infra.Close(shutdownCtx)

	infra.Logger.InfoWithContextf(shutdownCtx, "Consumer exited properly")
}

// discard adapts a sweep to a runner task; reports are already logged and counted.
func discard(run func(context.Context) sweep.SweepReport) func(context.Context) {
	return func(ctx context.Context) { run(ctx) }
}
