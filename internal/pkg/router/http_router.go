package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hirestack/hirestack/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Payment providers deliver here; the ingestor dedupes and verifies.
	app.Post("/webhooks/payments/:provider", controllers.HandlePaymentWebhook)

	// One-time admin bootstrap, redeemed by the external setup UI.
	app.Post("/setup/:token", controllers.HandleSetupRedeem)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
