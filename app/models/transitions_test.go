package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPurchaseCanTransition(t *testing.T) {
	tests := []struct {
		from PurchaseStatus
		to   PurchaseStatus
		want bool
	}{
		{PurchaseStatusPending, PurchaseStatusPaid, true},
		{PurchaseStatusPending, PurchaseStatusFailed, true},
		{PurchaseStatusPending, PurchaseStatusRefunded, false},
		{PurchaseStatusPaid, PurchaseStatusRefunded, true},
		{PurchaseStatusPaid, PurchaseStatusPending, false},
		{PurchaseStatusPaid, PurchaseStatusPaid, false},
		{PurchaseStatusFailed, PurchaseStatusPaid, false},
		{PurchaseStatusRefunded, PurchaseStatusPending, false},
	}

	for _, tt := range tests {
		p := &Purchase{Status: tt.from}
		assert.Equal(t, tt.want, p.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestInstallCanTransition(t *testing.T) {
	tests := []struct {
		from InstallStatus
		to   InstallStatus
		want bool
	}{
		{InstallStatusPending, InstallStatusProvisioning, true},
		{InstallStatusPending, InstallStatusActive, false},
		{InstallStatusProvisioning, InstallStatusSetupPending, true},
		{InstallStatusProvisioning, InstallStatusPending, false},
		{InstallStatusSetupPending, InstallStatusActive, true},
		{InstallStatusActive, InstallStatusSuspended, true},
		{InstallStatusSuspended, InstallStatusActive, true},
		{InstallStatusSuspended, InstallStatusProvisioning, false},
	}

	for _, tt := range tests {
		i := &Install{Status: tt.from}
		assert.Equal(t, tt.want, i.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestInstallAnyStateMayFail(t *testing.T) {
	for _, from := range []InstallStatus{
		InstallStatusPending, InstallStatusProvisioning, InstallStatusSetupPending,
		InstallStatusActive, InstallStatusSuspended,
	} {
		i := &Install{Status: from}
		assert.True(t, i.CanTransition(InstallStatusFailed), "%s -> failed", from)
	}

	i := &Install{Status: InstallStatusFailed}
	assert.False(t, i.CanTransition(InstallStatusFailed))
}

func TestJobCanTransition(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusPending, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusFailed, JobStatusPending, true},
		{JobStatusFailed, JobStatusCancelled, true},
		{JobStatusCompleted, JobStatusPending, false},
		{JobStatusCancelled, JobStatusPending, false},
	}

	for _, tt := range tests {
		j := &ProvisioningJob{Status: tt.from}
		assert.Equal(t, tt.want, j.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestJobIsTerminal(t *testing.T) {
	assert.False(t, (&ProvisioningJob{Status: JobStatusPending}).IsTerminal())
	assert.False(t, (&ProvisioningJob{Status: JobStatusProcessing}).IsTerminal())
	assert.True(t, (&ProvisioningJob{Status: JobStatusCompleted}).IsTerminal())
	assert.True(t, (&ProvisioningJob{Status: JobStatusFailed}).IsTerminal())
	assert.True(t, (&ProvisioningJob{Status: JobStatusCancelled}).IsTerminal())
}

func TestJobLeaseExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&ProvisioningJob{Status: JobStatusProcessing, LockedUntil: &past}).LeaseExpired(now))
	assert.False(t, (&ProvisioningJob{Status: JobStatusProcessing, LockedUntil: &future}).LeaseExpired(now))
	assert.False(t, (&ProvisioningJob{Status: JobStatusProcessing}).LeaseExpired(now))
	assert.False(t, (&ProvisioningJob{Status: JobStatusPending, LockedUntil: &past}).LeaseExpired(now))
}

func TestSetupTokenExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, (&SetupToken{ExpiresAt: now.Add(-time.Second)}).Expired(now))
	assert.False(t, (&SetupToken{ExpiresAt: now.Add(time.Second)}).Expired(now))
}
