package models

import "time"

// JobType defines the type of provisioning job.
type JobType string

const (
	JobTypeProvision   JobType = "provision"
	JobTypeDeprovision JobType = "deprovision"
)

// JobStatus defines the status of a provisioning job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ProvisioningJob is one unit of queued work. The row doubles as the lease
// record: LockedBy/LockedUntil grant exclusive processing rights to a single
// worker until expiry, after which the reaper may reclaim it.
type ProvisioningJob struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	InstallID   uint       `gorm:"not null;index" json:"install_id"`
	Install     *Install   `gorm:"foreignKey:InstallID" json:"install,omitempty"`
	JobType     JobType    `gorm:"type:varchar(40);not null" json:"job_type"`
	Status      JobStatus  `gorm:"type:varchar(20);not null;default:'pending';index:idx_provisioning_jobs_claim,priority:1" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int        `gorm:"not null;default:3" json:"max_attempts"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	NextRunAt   time.Time  `gorm:"not null;index:idx_provisioning_jobs_claim,priority:2" json:"next_run_at"`
	LockedUntil *time.Time `gorm:"type:timestamp;default:null" json:"locked_until,omitempty"`
	LockedBy    string     `gorm:"type:varchar(191);not null;default:''" json:"locked_by"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	StartedAt   *time.Time `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusPending, JobStatusFailed, JobStatusCancelled},
	JobStatusCompleted:  {},
	JobStatusFailed:     {JobStatusPending, JobStatusCancelled},
	JobStatusCancelled:  {},
}

// CanTransition reports whether moving the job to the given status is legal.
// failed→pending is the administrative requeue path.
func (j *ProvisioningJob) CanTransition(to JobStatus) bool {
	for _, allowed := range jobTransitions[j.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the job can make no further progress on its own.
func (j *ProvisioningJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// LeaseExpired reports whether a processing job's lease has lapsed at the
// given time, meaning the owning worker died mid-execution.
func (j *ProvisioningJob) LeaseExpired(now time.Time) bool {
	return j.Status == JobStatusProcessing && j.LockedUntil != nil && j.LockedUntil.Before(now)
}
