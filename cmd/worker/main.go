package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hirestack/hirestack/internal/pkg/database"
	"github.com/hirestack/hirestack/internal/pkg/env"
	"github.com/hirestack/hirestack/internal/pkg/jobqueue"
	"github.com/hirestack/hirestack/internal/pkg/provisioning"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	db := database.GetDB()

	store := jobqueue.NewStore(db)
	worker := jobqueue.NewWorker(store, jobqueue.WorkerConfig{
		PollInterval:  time.Duration(env.GetEnvInt("WORKER_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		LeaseDuration: time.Duration(env.GetEnvInt("JOB_LEASE_SECONDS", 300)) * time.Second,
		GracePeriod:   time.Duration(env.GetEnvInt("WORKER_GRACE_PERIOD_SECONDS", 30)) * time.Second,
	})

	issuer, err := provisioning.NewSetupTokenIssuer(
		db,
		env.GetEnv("SETUP_SECRET_KEY", ""),
		time.Duration(env.GetEnvInt("SETUP_TOKEN_TTL_HOURS", 48))*time.Hour,
	)
	if err != nil {
		log.Fatalf("[Worker] setup token issuer: %v", err)
	}

	handlers := provisioning.NewHandlers(
		db,
		provisioning.NewExecutorFromEnv(),
		issuer,
		provisioning.NotifierFromEnv(db),
		time.Duration(env.GetEnvInt("PROVISION_CALL_TIMEOUT_SECONDS", 120))*time.Second,
		env.GetEnv("APP_BASE_URL", "http://localhost:4000"),
	)
	handlers.Register(worker)

	worker.Start()

	// Termination signals trigger the graceful shutdown sequence: stop
	// claiming, finish the in-flight job within the grace period, exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("[Worker] received %s, shutting down", sig)

	worker.Stop()
}
