package jobqueue

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hirestack/hirestack/app/models"
)

const (
	// DefaultMaxAttempts bounds how often a job is tried before it fails
	// terminally.
	DefaultMaxAttempts = 3

	// claimCandidates bounds how many eligible rows a single ClaimNext call
	// races for before reporting an idle queue.
	claimCandidates = 5
)

// Store is the relational work queue. Every mutation is a single conditional
// UPDATE guarded by RowsAffected, so concurrent workers and the reaper
// coordinate through row state alone, with no application-level
// read-modify-write.
type Store struct {
	db *gorm.DB
}

// NewStore creates a job store on the given GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EnqueueOptions overrides enqueue defaults. A zero NextRunAt means the job
// is claimable immediately.
type EnqueueOptions struct {
	MaxAttempts int
	NextRunAt   time.Time
}

// Enqueue creates a pending job for the install.
func (s *Store) Enqueue(installID uint, jobType models.JobType, opts *EnqueueOptions) (*models.ProvisioningJob, error) {
	if installID == 0 {
		return nil, errors.New("install id is required")
	}

	job := &models.ProvisioningJob{
		InstallID:   installID,
		JobType:     jobType,
		Status:      models.JobStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRunAt:   time.Now(),
	}
	if opts != nil {
		if opts.MaxAttempts > 0 {
			job.MaxAttempts = opts.MaxAttempts
		}
		if !opts.NextRunAt.IsZero() {
			job.NextRunAt = opts.NextRunAt
		}
	}

	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("enqueue %s job for install %d: %w", jobType, installID, err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest eligible job for workerID and leases
// it for leaseDuration. Eligible means pending, due, and not locked by a live
// lease. Returns (nil, nil) when no job is claimable - a normal idle
// condition, not an error.
//
// The claim is a compare-and-swap: the candidate is selected, then updated
// only if it is still in the exact state the selection saw. Losing the race
// moves on to the next candidate, so two callers can never be handed the same
// row.
func (s *Store) ClaimNext(workerID string, leaseDuration time.Duration) (*models.ProvisioningJob, error) {
	if workerID == "" {
		return nil, errors.New("worker id is required")
	}

	for i := 0; i < claimCandidates; i++ {
		now := time.Now()

		var job models.ProvisioningJob
		err := s.db.
			Where("status = ? AND next_run_at <= ? AND (locked_until IS NULL OR locked_until < ?)",
				models.JobStatusPending, now, now).
			Order("next_run_at ASC").
			Order("id ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select claim candidate: %w", err)
		}

		lockedUntil := now.Add(leaseDuration)
		res := s.db.Model(&models.ProvisioningJob{}).
			Where("id = ? AND status = ? AND next_run_at <= ? AND (locked_until IS NULL OR locked_until < ?)",
				job.ID, models.JobStatusPending, now, now).
			Updates(map[string]interface{}{
				"status":       models.JobStatusProcessing,
				"locked_by":    workerID,
				"locked_until": lockedUntil,
				"started_at":   now,
				"attempts":     gorm.Expr("attempts + 1"),
				"updated_at":   now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job %d: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			if err := s.db.First(&job, job.ID).Error; err != nil {
				return nil, fmt.Errorf("reload claimed job %d: %w", job.ID, err)
			}
			return &job, nil
		}
		// Lost the race for this candidate; another worker got it first.
	}
	return nil, nil
}

// Complete marks a claimed job as successfully finished and releases its
// lease. Rejected with ErrNotOwner if ownerID no longer holds the lease
// (the job was reaped and possibly reclaimed in the meantime).
func (s *Store) Complete(jobID uint, ownerID string) error {
	now := time.Now()
	res := s.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ? AND locked_by = ?", jobID, models.JobStatusProcessing, ownerID).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"completed_at": now,
			"locked_by":    "",
			"locked_until": nil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.ownershipError(jobID)
	}
	return nil
}

// Fail records a handler failure. If attempts remain the job returns to
// pending after retryDelay; otherwise it fails terminally. Same ownership
// guard as Complete.
func (s *Store) Fail(jobID uint, ownerID string, jobErr error, retryDelay time.Duration) error {
	var job models.ProvisioningJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job.Status != models.JobStatusProcessing || job.LockedBy != ownerID {
		return ErrNotOwner
	}

	now := time.Now()
	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	updates := map[string]interface{}{
		"last_error":   errMsg,
		"locked_by":    "",
		"locked_until": nil,
		"updated_at":   now,
	}
	if job.Attempts < job.MaxAttempts {
		updates["status"] = models.JobStatusPending
		updates["next_run_at"] = now.Add(retryDelay)
	} else {
		updates["status"] = models.JobStatusFailed
	}

	res := s.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ? AND locked_by = ?", jobID, models.JobStatusProcessing, ownerID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("fail job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.ownershipError(jobID)
	}
	return nil
}

// Cancel administratively cancels a job regardless of its current lock
// state. A running handler is not preempted; its later Complete/Fail will be
// rejected by the ownership guard because the status already moved on.
func (s *Store) Cancel(jobID uint) error {
	var job models.ProvisioningJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("load job %d: %w", jobID, err)
	}
	if !job.CanTransition(models.JobStatusCancelled) {
		return ErrIllegalTransition
	}

	now := time.Now()
	res := s.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status IN ?", jobID,
			[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusFailed}).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCancelled,
			"locked_by":    "",
			"locked_until": nil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("cancel job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// Requeue is the administrative recovery path for terminally failed jobs:
// back to pending, immediately due, with the attempt budget reset.
func (s *Store) Requeue(jobID uint) error {
	now := time.Now()
	res := s.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusFailed).
		Updates(map[string]interface{}{
			"status":      models.JobStatusPending,
			"attempts":    0,
			"next_run_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("requeue job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// ReapExpired resets every processing job whose lease has lapsed back to
// pending, clearing the lock fields. Attempts are deliberately left in place:
// a lost attempt still counts toward max_attempts, so a job that keeps
// killing its worker cannot retry forever. Returns the number of rows reset.
func (s *Store) ReapExpired() (int64, error) {
	now := time.Now()
	res := s.db.Model(&models.ProvisioningJob{}).
		Where("status = ? AND locked_until IS NOT NULL AND locked_until < ?", models.JobStatusProcessing, now).
		Updates(map[string]interface{}{
			"status":       models.JobStatusPending,
			"locked_by":    "",
			"locked_until": nil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reap expired leases: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetJob loads a single job.
func (s *Store) GetJob(jobID uint) (*models.ProvisioningJob, error) {
	var job models.ProvisioningJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (s *Store) ListJobs(status models.JobStatus, limit int) ([]models.ProvisioningJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []models.ProvisioningJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs per status for observability.
func (s *Store) CountByStatus() (map[models.JobStatus]int64, error) {
	type row struct {
		Status models.JobStatus
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.ProvisioningJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// ownershipError distinguishes a vanished row from a lost lease.
func (s *Store) ownershipError(jobID uint) error {
	var n int64
	if err := s.db.Model(&models.ProvisioningJob{}).Where("id = ?", jobID).Count(&n).Error; err == nil && n == 0 {
		return ErrJobNotFound
	}
	return ErrNotOwner
}
