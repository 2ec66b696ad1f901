package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirestack/hirestack/app/models"
)

func TestReaperSweepOnce(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)

	r := NewReaper(store, time.Minute)

	reaped, err := r.SweepOnce()
	require.NoError(t, err)
	assert.Zero(t, reaped, "live leases are untouched")

	require.NoError(t, db.Model(&models.ProvisioningJob{}).Where("id = ?", job.ID).
		Update("locked_until", time.Now().Add(-time.Second)).Error)

	reaped, err = r.SweepOnce()
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)
	assert.Equal(t, models.JobStatusPending, reloadJob(t, db, job.ID).Status)
}

func TestReaperStartStop(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.ProvisioningJob{}).Where("id = ?", job.ID).
		Update("locked_until", time.Now().Add(-time.Second)).Error)

	r := NewReaper(store, 10*time.Millisecond)
	r.Start()
	r.Start() // idempotent

	require.Eventually(t, func() bool {
		return reloadJob(t, db, job.ID).Status == models.JobStatusPending
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop() // idempotent
}
