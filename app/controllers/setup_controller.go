package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hirestack/hirestack/internal/pkg/database"
	"github.com/hirestack/hirestack/internal/pkg/env"
	"github.com/hirestack/hirestack/internal/pkg/provisioning"
)

// HandleSetupRedeem consumes a one-time setup token on behalf of the
// external admin-setup UI and returns the session secret used to bootstrap
// the provisioned instance's first admin account.
func HandleSetupRedeem(c *fiber.Ctx) error {
	issuer, err := provisioning.NewSetupTokenIssuer(
		database.GetDB(),
		env.GetEnv("SETUP_SECRET_KEY", ""),
		time.Duration(env.GetEnvInt("SETUP_TOKEN_TTL_HOURS", 48))*time.Hour,
	)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "setup_not_configured"})
	}

	secret, err := issuer.Redeem(c.Params("token"))
	if err != nil {
		switch {
		case errors.Is(err, provisioning.ErrTokenNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "token_not_found"})
		case errors.Is(err, provisioning.ErrTokenExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "token_expired"})
		case errors.Is(err, provisioning.ErrTokenAlreadyUsed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "token_already_used"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "redeem_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"session_secret": secret})
}
