package provisioning

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/mail"
)

// Notifier delivers the setup link to the customer once an install reaches
// setup_pending. Email/WhatsApp templating lives outside this subsystem;
// implementations are injected by the deployment build.
type Notifier interface {
	SendSetupLink(ctx context.Context, install *models.Install, setupURL string) error
}

// LogNotifier is the in-tree fallback: it only records that a link exists.
// The link itself is deliberately not logged.
type LogNotifier struct{}

func (LogNotifier) SendSetupLink(ctx context.Context, install *models.Install, setupURL string) error {
	log.Infof("[Notifier] setup link issued for install %d (customer %d)", install.ID, install.CustomerID)
	return nil
}

// EmailNotifier delivers the setup link to the customer's billing address via
// the configured SMTP relay.
type EmailNotifier struct {
	db *gorm.DB
}

// NewEmailNotifier creates an email notifier resolving customer addresses
// through the given database handle.
func NewEmailNotifier(db *gorm.DB) *EmailNotifier {
	return &EmailNotifier{db: db}
}

func (n *EmailNotifier) SendSetupLink(ctx context.Context, install *models.Install, setupURL string) error {
	var customer models.Customer
	if err := n.db.First(&customer, install.CustomerID).Error; err != nil {
		return fmt.Errorf("resolve customer %d for install %d: %w", install.CustomerID, install.ID, err)
	}

	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Your instance is ready. Finish the setup of your admin account here:</p>"+
			"<p><a href=%q>%s</a></p>"+
			"<p>The link can be used once and expires automatically.</p>",
		customer.Name, setupURL, setupURL,
	)
	if err := mail.SendMail(customer.Email, "Your instance is ready", body); err != nil {
		return fmt.Errorf("send setup link for install %d: %w", install.ID, err)
	}
	log.Infof("[Notifier] setup link for install %d sent to customer %d", install.ID, customer.ID)
	return nil
}

// NotifierFromEnv picks the email notifier when an SMTP relay is configured
// and falls back to logging otherwise.
func NotifierFromEnv(db *gorm.DB) Notifier {
	if mail.Configured() {
		return NewEmailNotifier(db)
	}
	return LogNotifier{}
}
