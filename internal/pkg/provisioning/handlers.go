package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/jobqueue"
)

// Handlers drives installs through their lifecycle as jobs complete or
// exhaust. The queue primitives never touch Install.status - these handlers
// do, which keeps the queue free of domain knowledge.
type Handlers struct {
	db          *gorm.DB
	executor    Executor
	issuer      *SetupTokenIssuer
	notifier    Notifier
	callTimeout time.Duration
	baseURL     string
}

// NewHandlers wires the provisioning job handlers. callTimeout bounds each
// executor call and must stay well below the worker's lease duration so a
// slow provider makes the handler self-release via fail() instead of leaving
// recovery to the reaper.
func NewHandlers(db *gorm.DB, executor Executor, issuer *SetupTokenIssuer, notifier Notifier, callTimeout time.Duration, baseURL string) *Handlers {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Handlers{
		db:          db,
		executor:    executor,
		issuer:      issuer,
		notifier:    notifier,
		callTimeout: callTimeout,
		baseURL:     baseURL,
	}
}

// Register binds the handlers to their job types.
func (h *Handlers) Register(w *jobqueue.Worker) {
	w.Register(models.JobTypeProvision, h.HandleProvision)
	w.Register(models.JobTypeDeprovision, h.HandleDeprovision)
}

// HandleProvision creates the install's provider resources and moves it to
// setup_pending with a freshly issued setup token. Safe to retry: an install
// already past provisioning is left alone.
func (h *Handlers) HandleProvision(ctx context.Context, job *models.ProvisioningJob) error {
	install, err := h.loadInstall(job.InstallID)
	if err != nil {
		return err
	}

	switch install.Status {
	case models.InstallStatusPending:
		if err := h.transitionInstall(install, models.InstallStatusProvisioning, nil); err != nil {
			return err
		}
	case models.InstallStatusProvisioning:
		// Retry of a previously failed attempt.
	case models.InstallStatusSetupPending:
		// Provisioned, but a prior attempt may have died between flipping the
		// status and minting the token. Without a redeemable token the
		// install can never activate, so re-check instead of acking blindly.
		return h.ensureSetupToken(ctx, install)
	case models.InstallStatusActive:
		log.Infof("[Provision] install %d already active, nothing to do", install.ID)
		return nil
	default:
		return fmt.Errorf("install %d is %s, cannot provision", install.ID, install.Status)
	}

	cctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	res, err := h.executor.Provision(cctx, install)
	if err != nil {
		if job.Attempts >= job.MaxAttempts {
			h.markInstallFailed(install.ID, err)
		}
		return fmt.Errorf("provision install %d: %w", install.ID, err)
	}

	now := time.Now()
	if err := h.db.Model(&models.Install{}).
		Where("id = ? AND status = ?", install.ID, models.InstallStatusProvisioning).
		Updates(map[string]interface{}{
			"provider_project_id": res.ProjectID,
			"provider_service_id": res.ServiceID,
			"domain":              res.Domain,
			"status":              models.InstallStatusSetupPending,
			"provisioned_at":      &now,
			"error_message":       "",
			"updated_at":          now,
		}).Error; err != nil {
		return fmt.Errorf("record provisioned install %d: %w", install.ID, err)
	}

	install.Status = models.InstallStatusSetupPending
	return h.ensureSetupToken(ctx, install)
}

// ensureSetupToken guarantees a setup_pending install holds a redeemable
// token, issuing one when none exists. A failure here fails the job, so the
// retry lands back in this method until a token is minted.
func (h *Handlers) ensureSetupToken(ctx context.Context, install *models.Install) error {
	var n int64
	if err := h.db.Model(&models.SetupToken{}).
		Where("install_id = ? AND used = ? AND expires_at > ?", install.ID, false, time.Now()).
		Count(&n).Error; err != nil {
		return fmt.Errorf("check setup tokens for install %d: %w", install.ID, err)
	}
	if n > 0 {
		return nil
	}

	token, err := h.issuer.Issue(install.ID)
	if err != nil {
		return err
	}
	if err := h.notifier.SendSetupLink(ctx, install, SetupURL(h.baseURL, token)); err != nil {
		// Delivery is external; the token stays redeemable and operators can
		// resend, so a notification failure must not fail the job.
		log.Errorf("[Provision] setup link delivery for install %d failed: %v", install.ID, err)
	}
	return nil
}

// HandleDeprovision tears down a suspended install's provider resources.
func (h *Handlers) HandleDeprovision(ctx context.Context, job *models.ProvisioningJob) error {
	install, err := h.loadInstall(job.InstallID)
	if err != nil {
		return err
	}
	if install.Status != models.InstallStatusSuspended {
		return fmt.Errorf("install %d is %s, only suspended installs are deprovisioned", install.ID, install.Status)
	}

	cctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	if err := h.executor.Deprovision(cctx, install); err != nil {
		return fmt.Errorf("deprovision install %d: %w", install.ID, err)
	}
	log.Infof("[Deprovision] install %d resources released", install.ID)
	return nil
}

func (h *Handlers) loadInstall(installID uint) (*models.Install, error) {
	var install models.Install
	if err := h.db.First(&install, installID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("install %d not found", installID)
		}
		return nil, fmt.Errorf("load install %d: %w", installID, err)
	}
	return &install, nil
}

// transitionInstall performs a guarded status move, enforcing the transition
// table and current-status precondition in one conditional update.
func (h *Handlers) transitionInstall(install *models.Install, to models.InstallStatus, setErr error) error {
	if !install.CanTransition(to) {
		return fmt.Errorf("install %d: illegal transition %s -> %s", install.ID, install.Status, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if setErr != nil {
		updates["error_message"] = setErr.Error()
	}

	res := h.db.Model(&models.Install{}).
		Where("id = ? AND status = ?", install.ID, install.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition install %d to %s: %w", install.ID, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("install %d moved concurrently, expected %s", install.ID, install.Status)
	}
	install.Status = to
	return nil
}

// markInstallFailed records the terminal outcome once a critical job has
// exhausted its attempts.
func (h *Handlers) markInstallFailed(installID uint, cause error) {
	now := time.Now()
	err := h.db.Model(&models.Install{}).
		Where("id = ? AND status <> ?", installID, models.InstallStatusFailed).
		Updates(map[string]interface{}{
			"status":        models.InstallStatusFailed,
			"error_message": cause.Error(),
			"updated_at":    now,
		}).Error
	if err != nil {
		log.Errorf("[Provision] could not mark install %d failed: %v", installID, err)
		return
	}
	log.Errorf("[Provision] install %d marked failed: %v", installID, cause)
}
