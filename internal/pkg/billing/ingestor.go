package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hirestack/hirestack/app/models"
)

var (
	// ErrInvalidSignature means the payload failed provider signature
	// verification and was not processed.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnknownProvider means no signature verifier is registered for the
	// provider path the delivery arrived on.
	ErrUnknownProvider = errors.New("no verifier registered for provider")

	// ErrMalformedPayload means the body could not be parsed as a payment
	// event.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Ingestor turns externally delivered payment events into purchase
// transitions and provisioning jobs. Redelivery of the same (provider,
// event id) is a no-op by construction.
type Ingestor struct {
	repo               Repository
	verifiers          map[string]SignatureVerifier
	defaultMaxAttempts int
}

// NewIngestor creates an ingestor. defaultMaxAttempts is the attempt budget
// given to the provision jobs it enqueues.
func NewIngestor(repo Repository, defaultMaxAttempts int) *Ingestor {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &Ingestor{
		repo:               repo,
		verifiers:          make(map[string]SignatureVerifier),
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// RegisterVerifier binds a provider name to its signature scheme.
func (i *Ingestor) RegisterVerifier(provider string, v SignatureVerifier) {
	i.verifiers[strings.ToLower(strings.TrimSpace(provider))] = v
}

// IngestInput is one webhook delivery as received on the wire.
type IngestInput struct {
	Provider  string
	EventID   string
	Signature string
	Payload   []byte
}

// IngestResult reports what the delivery amounted to.
type IngestResult struct {
	Event     *models.WebhookEvent
	Duplicate bool
	Status    models.WebhookEventStatus
}

// Ingest records and processes one delivery. Errors are returned for
// deliveries the provider should either fix (signature, payload) or retry
// (storage failures); business no-ops such as duplicates, unrecognized event
// types and already-settled purchases succeed with the respective status.
func (i *Ingestor) Ingest(in IngestInput) (*IngestResult, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return nil, errors.New("provider is required")
	}

	verifier, ok := i.verifiers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	signatureValid := verifier(in.Payload, in.Signature)

	// Event type and entity live in the body envelope; tolerate parse
	// failures here so even undecodable payloads get a dedupe row.
	var envelope struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(in.Payload, &envelope)
	eventType := strings.TrimSpace(envelope.Event)

	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		sum := sha256.Sum256(in.Payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		PayloadJSON: string(in.Payload),
		Status:      models.WebhookEventStatusReceived,
	}
	created, stored, err := i.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return nil, fmt.Errorf("persist webhook event: %w", err)
	}
	if !created {
		// Settled events (processed, ignored) dedupe the redelivery. A failed
		// event is the one exception: the provider retries precisely because
		// we answered with an error, so the retry must reprocess, not be
		// swallowed by its own dedupe row.
		if stored.Status != models.WebhookEventStatusFailed {
			log.Infof("[Ingestor] duplicate delivery %s/%s acknowledged", provider, eventID)
			return &IngestResult{Event: stored, Duplicate: true, Status: stored.Status}, nil
		}
		log.Infof("[Ingestor] redelivery of failed event %s/%s, reprocessing", provider, eventID)
	}

	if !signatureValid {
		if err := i.repo.MarkWebhookEvent(stored.ID, models.WebhookEventStatusFailed, ErrInvalidSignature.Error()); err != nil {
			log.Errorf("[Ingestor] could not mark event %d failed: %v", stored.ID, err)
		}
		return &IngestResult{Event: stored, Status: models.WebhookEventStatusFailed}, ErrInvalidSignature
	}

	if !IsRecognizedEventType(eventType) {
		if err := i.repo.MarkWebhookEvent(stored.ID, models.WebhookEventStatusIgnored, ""); err != nil {
			return nil, fmt.Errorf("mark event ignored: %w", err)
		}
		return &IngestResult{Event: stored, Status: models.WebhookEventStatusIgnored}, nil
	}

	payment, err := ParsePaymentEvent(in.Payload)
	if err != nil {
		if markErr := i.repo.MarkWebhookEvent(stored.ID, models.WebhookEventStatusFailed, err.Error()); markErr != nil {
			log.Errorf("[Ingestor] could not mark event %d failed: %v", stored.ID, markErr)
		}
		return &IngestResult{Event: stored, Status: models.WebhookEventStatusFailed}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	status, processErr := i.process(provider, payment)
	if processErr != nil {
		// Transient (storage) failure: record it and surface an error so the
		// provider redelivers. The failed status keeps the dedupe row from
		// short-circuiting that redelivery.
		if markErr := i.repo.MarkWebhookEvent(stored.ID, models.WebhookEventStatusFailed, processErr.Error()); markErr != nil {
			log.Errorf("[Ingestor] could not mark event %d failed: %v", stored.ID, markErr)
		}
		return &IngestResult{Event: stored, Status: models.WebhookEventStatusFailed}, processErr
	}

	errMsg := ""
	if status == models.WebhookEventStatusFailed {
		// Permanent business failure (e.g. unknown order): recorded for
		// operator inspection, acknowledged so the provider stops retrying.
		errMsg = fmt.Sprintf("no purchase for order %q", payment.OrderID)
	}
	if err := i.repo.MarkWebhookEvent(stored.ID, status, errMsg); err != nil {
		return nil, fmt.Errorf("mark event %s: %w", status, err)
	}
	return &IngestResult{Event: stored, Status: status}, nil
}

// process applies a recognized payment event inside one transaction and
// returns the final event status. A nil error with status failed is a
// permanent business failure; a non-nil error is transient.
func (i *Ingestor) process(provider string, payment *PaymentEvent) (models.WebhookEventStatus, error) {
	status := models.WebhookEventStatusProcessed

	err := i.repo.Transaction(func(tx Repository) error {
		purchase, err := tx.GetPurchaseByProviderOrderID(provider, payment.OrderID)
		if errors.Is(err, ErrPurchaseNotFound) {
			status = models.WebhookEventStatusFailed
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve purchase for order %q: %w", payment.OrderID, err)
		}

		switch strings.ToLower(payment.EventType) {
		case EventPaymentCaptured:
			transitioned, err := tx.MarkPurchasePaid(purchase.ID, payment.PaymentID)
			if err != nil {
				return fmt.Errorf("mark purchase %d paid: %w", purchase.ID, err)
			}
			if !transitioned {
				// Already settled; redelivery or out-of-order event.
				status = models.WebhookEventStatusIgnored
				return nil
			}

			install := &models.Install{
				CustomerID: purchase.CustomerID,
				PurchaseID: purchase.ID,
				Status:     models.InstallStatusPending,
			}
			if err := tx.CreateInstall(install); err != nil {
				return fmt.Errorf("create install for purchase %d: %w", purchase.ID, err)
			}
			job, err := tx.EnqueueProvisionJob(install.ID, i.defaultMaxAttempts)
			if err != nil {
				return fmt.Errorf("enqueue provision job for install %d: %w", install.ID, err)
			}
			log.Infof("[Ingestor] purchase %d paid, install %d created, provision job %d enqueued", purchase.ID, install.ID, job.ID)
		case EventPaymentFailed:
			transitioned, err := tx.MarkPurchaseFailed(purchase.ID)
			if err != nil {
				return fmt.Errorf("mark purchase %d failed: %w", purchase.ID, err)
			}
			if !transitioned {
				status = models.WebhookEventStatusIgnored
			}
		}
		return nil
	})
	if err != nil {
		return models.WebhookEventStatusFailed, err
	}
	return status, nil
}
