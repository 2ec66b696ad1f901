package jobqueue

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/database"
)

// newTestDB opens an isolated in-memory database per test. A single
// connection keeps SQLite from returning busy errors under the concurrency
// tests; claim atomicity comes from the conditional updates, not from the
// connection count.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database.AutoMigrate(db)
	return db
}

func seedInstall(t *testing.T, db *gorm.DB) *models.Install {
	t.Helper()

	customer := &models.Customer{Email: fmt.Sprintf("%s@example.com", strings.ReplaceAll(t.Name(), "/", "_"))}
	require.NoError(t, db.Create(customer).Error)

	purchase := &models.Purchase{
		CustomerID:      customer.ID,
		Provider:        models.PaymentProviderRazorpay,
		ProviderOrderID: "order_" + strings.ReplaceAll(t.Name(), "/", "_"),
		Status:          models.PurchaseStatusPaid,
		Amount:          49900,
		Currency:        "INR",
	}
	require.NoError(t, db.Create(purchase).Error)

	install := &models.Install{
		CustomerID: customer.ID,
		PurchaseID: purchase.ID,
		Status:     models.InstallStatusPending,
	}
	require.NoError(t, db.Create(install).Error)
	return install
}

func reloadJob(t *testing.T, db *gorm.DB, id uint) *models.ProvisioningJob {
	t.Helper()
	var job models.ProvisioningJob
	require.NoError(t, db.First(&job, id).Error)
	return &job
}

func TestEnqueueDefaults(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	before := time.Now()
	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, 0, job.Attempts)
	assert.False(t, job.NextRunAt.Before(before.Add(-time.Second)))
}

func TestClaimNextEmptyQueue(t *testing.T) {
	store := NewStore(newTestDB(t))

	job, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextTakesOldestEligible(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	later, err := store.Enqueue(install.ID, models.JobTypeProvision, &EnqueueOptions{NextRunAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	older, err := store.Enqueue(install.ID, models.JobTypeProvision, &EnqueueOptions{NextRunAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	claimed, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, older.ID, claimed.ID)

	claimed2, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	assert.Equal(t, later.ID, claimed2.ID)
}

func TestClaimNextSkipsFutureAndLocked(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	_, err := store.Enqueue(install.ID, models.JobTypeProvision, &EnqueueOptions{NextRunAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	job, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job, "future job must not be claimable")

	due, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, due.ID, claimed.ID)

	// The claimed row is processing and leased; nothing else is eligible.
	again, err := store.ClaimNext("worker-2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClaimNextConcurrentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan uint, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			claimed, err := store.ClaimNext(fmt.Sprintf("worker-%d", n), time.Minute)
			assert.NoError(t, err)
			if claimed != nil {
				results <- claimed.ID
			}
		}(i)
	}
	wg.Wait()
	close(results)

	var claims []uint
	for id := range results {
		claims = append(claims, id)
	}
	require.Len(t, claims, 1, "exactly one worker may win the claim")
	assert.Equal(t, job.ID, claims[0])
}

func TestClaimIncrementsAttemptsAndLeases(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimNext("worker-1", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, "worker-1", claimed.LockedBy)
	require.NotNil(t, claimed.LockedUntil)
	assert.True(t, claimed.LockedUntil.After(time.Now().Add(4*time.Minute)))
	assert.NotNil(t, claimed.StartedAt)
}

func TestCompleteOwnerGuard(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)

	err = store.Complete(job.ID, "worker-2")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, models.JobStatusProcessing, reloadJob(t, db, job.ID).Status)

	require.NoError(t, store.Complete(job.ID, "worker-1"))
	done := reloadJob(t, db, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.LockedBy)
	assert.Nil(t, done.LockedUntil)
}

func TestCompleteMissingJob(t *testing.T) {
	store := NewStore(newTestDB(t))
	assert.ErrorIs(t, store.Complete(12345, "worker-1"), ErrJobNotFound)
}

func TestFailRetriesThenExhausts(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, &EnqueueOptions{MaxAttempts: 3})
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := store.ClaimNext("worker-1", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d should be claimable", attempt)
		assert.Equal(t, attempt, claimed.Attempts)

		err = store.Fail(job.ID, "worker-1", errors.New("provider timeout"), time.Minute)
		require.NoError(t, err)

		got := reloadJob(t, db, job.ID)
		assert.Equal(t, "provider timeout", got.LastError)
		assert.LessOrEqual(t, got.Attempts, got.MaxAttempts)

		if attempt < 3 {
			assert.Equal(t, models.JobStatusPending, got.Status)
			assert.True(t, got.NextRunAt.After(time.Now()), "retry must be scheduled in the future")
			// Make it due again for the next round.
			require.NoError(t, db.Model(&models.ProvisioningJob{}).Where("id = ?", job.ID).
				Update("next_run_at", time.Now().Add(-time.Second)).Error)
		} else {
			assert.Equal(t, models.JobStatusFailed, got.Status)
		}
	}

	// Terminally failed: nothing left to claim.
	claimed, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestFailOwnerGuard(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)

	err = store.Fail(job.ID, "worker-2", errors.New("boom"), time.Minute)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestCancel(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	pending, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(pending.ID))
	assert.Equal(t, models.JobStatusCancelled, reloadJob(t, db, pending.ID).Status)

	// Cancelling a claimed job releases it administratively; the running
	// worker's complete is then rejected by the ownership guard.
	claimed, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(claimed.ID))
	assert.ErrorIs(t, store.Complete(claimed.ID, "worker-1"), ErrNotOwner)

	// Terminal completed jobs cannot be cancelled.
	done, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	c, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, done.ID, c.ID)
	require.NoError(t, store.Complete(done.ID, "worker-1"))
	assert.ErrorIs(t, store.Cancel(done.ID), ErrIllegalTransition)

	assert.ErrorIs(t, store.Cancel(99999), ErrJobNotFound)
}

func TestRequeueFailedOnly(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, &EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Fail(job.ID, "worker-1", errors.New("boom"), time.Minute))
	require.Equal(t, models.JobStatusFailed, reloadJob(t, db, job.ID).Status)

	require.NoError(t, store.Requeue(job.ID))
	got := reloadJob(t, db, job.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)

	// Only failed jobs are requeueable.
	assert.ErrorIs(t, store.Requeue(job.ID), ErrIllegalTransition)
}

func TestReapExpiredResetsLeaseKeepsAttempts(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	job, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	claimed, err := store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// Nothing to reap while the lease is live.
	reaped, err := store.ReapExpired()
	require.NoError(t, err)
	assert.Zero(t, reaped)

	// Simulate the owning worker dying: push the lease into the past.
	require.NoError(t, db.Model(&models.ProvisioningJob{}).Where("id = ?", job.ID).
		Update("locked_until", time.Now().Add(-time.Second)).Error)

	reaped, err = store.ReapExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	got := reloadJob(t, db, job.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts, "a reaped job still counts the lost attempt")
	assert.Empty(t, got.LockedBy)
	assert.Nil(t, got.LockedUntil)

	// The stale worker's complete is rejected; another worker can claim.
	assert.ErrorIs(t, store.Complete(job.ID, "worker-1"), ErrNotOwner)
	reclaimed, err := store.ClaimNext("worker-2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestListJobsAndCounts(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	install := seedInstall(t, db)

	a, err := store.Enqueue(install.ID, models.JobTypeProvision, nil)
	require.NoError(t, err)
	_, err = store.Enqueue(install.ID, models.JobTypeDeprovision, nil)
	require.NoError(t, err)
	_, err = store.ClaimNext("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Complete(a.ID, "worker-1"))

	pending, err := store.ListJobs(models.JobStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := store.ListJobs("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.JobStatusCompleted])
	assert.Equal(t, int64(1), counts[models.JobStatusPending])
}
