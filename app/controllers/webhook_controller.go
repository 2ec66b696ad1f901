package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/billing"
	"github.com/hirestack/hirestack/internal/pkg/database"
	"github.com/hirestack/hirestack/internal/pkg/env"
	"github.com/hirestack/hirestack/internal/pkg/metrics"
)

// HandlePaymentWebhook receives provider payment events. Duplicates and
// business no-ops acknowledge with 200 so the provider stops redelivering;
// signature and payload problems are 400; storage failures are 500 so the
// provider retries.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ingestor := newIngestor()
	result, err := ingestor.Ingest(billing.IngestInput{
		Provider:  c.Params("provider"),
		EventID:   firstHeaderValue(c, "X-Razorpay-Event-Id", "X-Webhook-Event-Id"),
		Signature: firstHeaderValue(c, "X-Razorpay-Signature", "X-Webhook-Signature"),
		Payload:   rawBody,
	})

	if result != nil && result.Duplicate {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if result != nil {
		metrics.WebhookEvents.WithLabelValues(string(result.Status)).Inc()
	}

	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, billing.ErrMalformedPayload), errors.Is(err, billing.ErrUnknownProvider):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":      true,
		"ignored": result.Status == models.WebhookEventStatusIgnored,
	})
}

func newIngestor() *billing.Ingestor {
	ingestor := billing.NewIngestor(
		billing.NewRepository(database.GetDB()),
		env.GetEnvInt("JOB_MAX_ATTEMPTS", 3),
	)
	ingestor.RegisterVerifier(
		models.PaymentProviderRazorpay,
		billing.RazorpayVerifier(env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")),
	)
	return ingestor
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
