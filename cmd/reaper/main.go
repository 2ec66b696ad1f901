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
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()

	store := jobqueue.NewStore(database.GetDB())
	reaper := jobqueue.NewReaper(store,
		time.Duration(env.GetEnvInt("REAPER_INTERVAL_SECONDS", 60))*time.Second)

	reaper.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("[Reaper] received %s, shutting down", sig)

	reaper.Stop()
}
