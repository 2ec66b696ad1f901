package models

import "time"

// Payment provider constants used across billing-related models.
const (
	PaymentProviderRazorpay = "razorpay"
	PaymentProviderStripe   = "stripe"
)

// PurchaseStatus defines the lifecycle state of a purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "pending"
	PurchaseStatusPaid     PurchaseStatus = "paid"
	PurchaseStatusFailed   PurchaseStatus = "failed"
	PurchaseStatusRefunded PurchaseStatus = "refunded"
)

// Purchase records a provider order from checkout to settlement.
// Amount is in the smallest currency unit.
type Purchase struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CustomerID        uint           `gorm:"not null;index" json:"customer_id"`
	Customer          *Customer      `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Provider          string         `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderOrderID   string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_order_id"`
	ProviderPaymentID *string        `gorm:"type:varchar(191);uniqueIndex;default:null" json:"provider_payment_id,omitempty"`
	Status            PurchaseStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount            int64          `gorm:"not null" json:"amount"`
	Currency          string         `gorm:"type:varchar(3);not null" json:"currency"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	PaidAt            *time.Time     `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
}

var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPending:  {PurchaseStatusPaid, PurchaseStatusFailed},
	PurchaseStatusPaid:     {PurchaseStatusRefunded},
	PurchaseStatusFailed:   {},
	PurchaseStatusRefunded: {},
}

// CanTransition reports whether moving the purchase to the given status is legal.
func (p *Purchase) CanTransition(to PurchaseStatus) bool {
	for _, allowed := range purchaseTransitions[p.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
