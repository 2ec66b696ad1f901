package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/jobqueue"
)

// AdminQueueController exposes the job queue to operators: inspection plus
// the two administrative moves the queue allows, cancel and requeue.
type AdminQueueController struct {
	store *jobqueue.Store
}

// NewAdminQueueController creates the controller on a job store.
func NewAdminQueueController(store *jobqueue.Store) *AdminQueueController {
	return &AdminQueueController{store: store}
}

// HandleListJobs returns jobs newest-first, optionally filtered by ?status=,
// together with per-status counts.
func (ctl *AdminQueueController) HandleListJobs(c *fiber.Ctx) error {
	status := models.JobStatus(c.Query("status"))
	jobs, err := ctl.store.ListJobs(status, c.QueryInt("limit", 100))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "job_list_failed"})
	}
	counts, err := ctl.store.CountByStatus()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "job_count_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"jobs": jobs, "counts": counts})
}

// HandleCancelJob administratively cancels a job.
func (ctl *AdminQueueController) HandleCancelJob(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_job_id"})
	}
	return ctl.respond(c, ctl.store.Cancel(uint(id)))
}

// HandleRequeueJob puts a terminally failed job back in the queue with a
// fresh attempt budget.
func (ctl *AdminQueueController) HandleRequeueJob(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_job_id"})
	}
	return ctl.respond(c, ctl.store.Requeue(uint(id)))
}

func (ctl *AdminQueueController) respond(c *fiber.Ctx, err error) error {
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	case errors.Is(err, jobqueue.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job_not_found"})
	case errors.Is(err, jobqueue.ErrIllegalTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "illegal_transition"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "job_update_failed"})
	}
}
