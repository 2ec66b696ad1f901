package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/hirestack/hirestack/internal/pkg/database"
	"github.com/hirestack/hirestack/internal/pkg/env"
	"github.com/hirestack/hirestack/internal/pkg/metrics"
	"github.com/hirestack/hirestack/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	app := fiber.New(fiber.Config{
		AppName: "hirestack-provisioning",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// ROUTER
	router.InstallRouter(app)

	return app
}
