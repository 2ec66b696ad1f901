package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/jobqueue"
)

// ErrPurchaseNotFound is returned when a webhook references an order this
// system never created.
var ErrPurchaseNotFound = errors.New("purchase not found")

// Repository provides the DB operations used by the webhook ingestor.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookEvent(id uint, status models.WebhookEventStatus, errMsg string) error
	GetPurchaseByProviderOrderID(provider, providerOrderID string) (*models.Purchase, error)
	MarkPurchasePaid(purchaseID uint, providerPaymentID string) (bool, error)
	MarkPurchaseFailed(purchaseID uint) (bool, error)
	CreateInstall(install *models.Install) error
	EnqueueProvisionJob(installID uint, maxAttempts int) (*models.ProvisioningJob, error)
	Transaction(fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an ingestion repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND event_id = ?", event.Provider, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookEvent(id uint, status models.WebhookEventStatus, errMsg string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"processed_at":  &now,
	}).Error
}

func (r *gormRepository) GetPurchaseByProviderOrderID(provider, providerOrderID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.Where("provider = ? AND provider_order_id = ?", provider, providerOrderID).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// MarkPurchasePaid transitions pending→paid. The status guard in the WHERE
// clause makes the transition idempotent under concurrent deliveries: the
// second caller affects zero rows and reports false.
func (r *gormRepository) MarkPurchasePaid(purchaseID uint, providerPaymentID string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":              models.PurchaseStatusPaid,
			"provider_payment_id": providerPaymentID,
			"paid_at":             &now,
			"updated_at":          now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) MarkPurchaseFailed(purchaseID uint) (bool, error) {
	res := r.db.Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":     models.PurchaseStatusFailed,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateInstall(install *models.Install) error {
	return r.db.Create(install).Error
}

func (r *gormRepository) EnqueueProvisionJob(installID uint, maxAttempts int) (*models.ProvisioningJob, error) {
	return jobqueue.NewStore(r.db).Enqueue(installID, models.JobTypeProvision, &jobqueue.EnqueueOptions{
		MaxAttempts: maxAttempts,
	})
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
