package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/jobqueue"
)

// AdminInstallController exposes the administrative install transitions:
// suspend, resume, and deprovisioning of suspended installs.
type AdminInstallController struct {
	db    *gorm.DB
	store *jobqueue.Store
}

// NewAdminInstallController creates the controller.
func NewAdminInstallController(db *gorm.DB, store *jobqueue.Store) *AdminInstallController {
	return &AdminInstallController{db: db, store: store}
}

// HandleGetInstall returns one install together with its job history.
func (ctl *AdminInstallController) HandleGetInstall(c *fiber.Ctx) error {
	install, errResp := ctl.loadInstall(c)
	if install == nil {
		return errResp
	}

	var jobs []models.ProvisioningJob
	if err := ctl.db.Where("install_id = ?", install.ID).Order("id DESC").Find(&jobs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "job_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"install": install, "jobs": jobs})
}

// HandleSuspendInstall moves an active install to suspended.
func (ctl *AdminInstallController) HandleSuspendInstall(c *fiber.Ctx) error {
	return ctl.transition(c, models.InstallStatusActive, models.InstallStatusSuspended)
}

// HandleResumeInstall moves a suspended install back to active.
func (ctl *AdminInstallController) HandleResumeInstall(c *fiber.Ctx) error {
	return ctl.transition(c, models.InstallStatusSuspended, models.InstallStatusActive)
}

// HandleDeprovisionInstall enqueues resource teardown for a suspended
// install.
func (ctl *AdminInstallController) HandleDeprovisionInstall(c *fiber.Ctx) error {
	install, errResp := ctl.loadInstall(c)
	if install == nil {
		return errResp
	}
	if install.Status != models.InstallStatusSuspended {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "install_not_suspended"})
	}
	job, err := ctl.store.Enqueue(install.ID, models.JobTypeDeprovision, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "enqueue_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "job_id": job.ID})
}

func (ctl *AdminInstallController) transition(c *fiber.Ctx, from, to models.InstallStatus) error {
	install, errResp := ctl.loadInstall(c)
	if install == nil {
		return errResp
	}
	if !install.CanTransition(to) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "illegal_transition"})
	}

	res := ctl.db.Model(&models.Install{}).
		Where("id = ? AND status = ?", install.ID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "install_update_failed"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "illegal_transition"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "status": to})
}

func (ctl *AdminInstallController) loadInstall(c *fiber.Ctx) (*models.Install, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_install_id"})
	}

	var install models.Install
	if err := ctl.db.First(&install, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "install_not_found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "install_load_failed"})
	}
	return &install, nil
}
