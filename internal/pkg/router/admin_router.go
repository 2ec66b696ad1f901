package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/hirestack/hirestack/app/controllers"
	"github.com/hirestack/hirestack/internal/pkg/database"
	"github.com/hirestack/hirestack/internal/pkg/env"
	"github.com/hirestack/hirestack/internal/pkg/jobqueue"
)

type AdminRouter struct {
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	admin := app.Group("/admin/api", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_API_USER", "admin"): env.GetEnv("ADMIN_API_PASSWORD", ""),
		},
	}))

	store := jobqueue.NewStore(database.GetDB())

	queues := controllers.NewAdminQueueController(store)
	admin.Get("/jobs", queues.HandleListJobs)
	admin.Post("/jobs/:id/cancel", queues.HandleCancelJob)
	admin.Post("/jobs/:id/requeue", queues.HandleRequeueJob)

	installs := controllers.NewAdminInstallController(database.GetDB(), store)
	admin.Get("/installs/:id", installs.HandleGetInstall)
	admin.Post("/installs/:id/suspend", installs.HandleSuspendInstall)
	admin.Post("/installs/:id/resume", installs.HandleResumeInstall)
	admin.Post("/installs/:id/deprovision", installs.HandleDeprovisionInstall)
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{}
}
