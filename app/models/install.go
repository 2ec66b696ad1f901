package models

import "time"

// InstallStatus defines the lifecycle state of a customer install.
type InstallStatus string

const (
	InstallStatusPending      InstallStatus = "pending"
	InstallStatusProvisioning InstallStatus = "provisioning"
	InstallStatusSetupPending InstallStatus = "setup_pending"
	InstallStatusActive       InstallStatus = "active"
	InstallStatusFailed       InstallStatus = "failed"
	InstallStatusSuspended    InstallStatus = "suspended"
)

// Install is the customer-dedicated application instance produced by the
// provisioning workflow. One install per purchase.
type Install struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	CustomerID        uint          `gorm:"not null;index" json:"customer_id"`
	Customer          *Customer     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	PurchaseID        uint          `gorm:"not null;uniqueIndex" json:"purchase_id"`
	Purchase          *Purchase     `gorm:"foreignKey:PurchaseID" json:"purchase,omitempty"`
	ProviderProjectID string        `gorm:"type:varchar(191);not null;default:''" json:"provider_project_id"`
	ProviderServiceID string        `gorm:"type:varchar(191);not null;default:''" json:"provider_service_id"`
	Domain            string        `gorm:"type:varchar(255);not null;default:''" json:"domain"`
	CustomDomain      string        `gorm:"type:varchar(255);not null;default:''" json:"custom_domain"`
	Status            InstallStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ErrorMessage      string        `gorm:"type:text" json:"error_message"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	ProvisionedAt     *time.Time    `gorm:"type:timestamp;default:null" json:"provisioned_at,omitempty"`
	ActivatedAt       *time.Time    `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
}

// installTransitions is the legal move set. Any state may additionally
// transition to failed when a critical job exhausts its attempts.
var installTransitions = map[InstallStatus][]InstallStatus{
	InstallStatusPending:      {InstallStatusProvisioning},
	InstallStatusProvisioning: {InstallStatusSetupPending},
	InstallStatusSetupPending: {InstallStatusActive},
	InstallStatusActive:       {InstallStatusSuspended},
	InstallStatusSuspended:    {InstallStatusActive},
	InstallStatusFailed:       {},
}

// CanTransition reports whether moving the install to the given status is legal.
func (i *Install) CanTransition(to InstallStatus) bool {
	if to == InstallStatusFailed {
		return i.Status != InstallStatusFailed
	}
	for _, allowed := range installTransitions[i.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
