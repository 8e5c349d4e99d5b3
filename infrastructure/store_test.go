package infrastructure

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitment/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "store.db"), Seed: true}
	db, err := OpenDatabase(cfg, nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewStore(db)
}

func TestOpenDatabaseSeedsOnce(t *testing.T) {
	t.Parallel()

	cfg := DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "nested", "seed.db"), Seed: true}
	for range 2 {
		db, err := OpenDatabase(cfg, nil)
		require.NoError(t, err)
		var count int64
		require.NoError(t, db.Model(&domain.JobPosting{}).Count(&count).Error)
		assert.EqualValues(t, 2, count)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	}

	_, err := OpenDatabase(DatabaseConfig{Driver: "postgres", DSN: "x"}, nil)
	assert.Error(t, err)
}

func TestStoreSaveApplicationVersioning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2026, 4, 17, 9, 0, 0, 0, time.UTC)

	app, err := domain.NewApplication(domain.NewApplicationParams{
		CandidateID:      "cand-1",
		JobPostingID:     1,
		Department:       "engineering",
		ResumeDocumentID: 1,
	}, now)
	require.NoError(t, err)
	require.NoError(t, store.CreateApplication(ctx, app))

	exists, err := store.ApplicationExists(ctx, "cand-1", 1)
	require.NoError(t, err)
	assert.True(t, exists)

	stale, err := store.GetApplication(ctx, app.ReferenceCode)
	require.NoError(t, err)

	fresh, err := store.LockApplication(ctx, app.ReferenceCode)
	require.NoError(t, err)
	changed, err := fresh.Transition(domain.StatusUnderReview, domain.ActorSystem, "", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, store.SaveApplication(ctx, fresh, now.Add(time.Minute)))
	assert.EqualValues(t, 2, fresh.Version)

	_, err = stale.Transition(domain.StatusWithdrawn, "cand-1", "", now.Add(2*time.Minute))
	require.NoError(t, err)
	err = store.SaveApplication(ctx, stale, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, domain.ErrConflict)

	loaded, err := store.GetApplicationByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, loaded.Status)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, domain.StatusUnderReview, loaded.History[0].ToStatus)

	_, err = store.GetApplication(ctx, "APP-missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestStoreDuplicateApplication(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()
	params := domain.NewApplicationParams{CandidateID: "cand-1", JobPostingID: 1, Department: "engineering", ResumeDocumentID: 1}

	first, err := domain.NewApplication(params, now)
	require.NoError(t, err)
	require.NoError(t, store.CreateApplication(ctx, first))

	second, err := domain.NewApplication(params, now)
	require.NoError(t, err)
	err = store.CreateApplication(ctx, second)
	assert.True(t, domain.IsValidation(err))
}

func TestStoreDepartmentOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()

	seed := func(candidate string, status domain.Status, score *float64) {
		app, err := domain.NewApplication(domain.NewApplicationParams{
			CandidateID:      candidate,
			JobPostingID:     1,
			Department:       "engineering",
			ResumeDocumentID: 1,
		}, now)
		require.NoError(t, err)
		app.Status = status
		if score != nil {
			app.RecordAIResult(*score, true)
		}
		require.NoError(t, store.CreateApplication(ctx, app))
	}
	score := func(v float64) *float64 { return &v }

	seed("a", domain.StatusShortlisted, score(80))
	seed("b", domain.StatusHired, score(90))
	seed("c", domain.StatusRejected, score(30))
	seed("d", domain.StatusUnderReview, score(60))
	seed("e", domain.StatusRejected, nil)

	stats, err := store.DepartmentOutcomes(ctx, "engineering")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.AcceptedCount)
	assert.InDelta(t, 85, stats.AcceptedMean, 0.001)
	assert.EqualValues(t, 1, stats.RejectedCount)
	assert.InDelta(t, 30, stats.RejectedMean, 0.001)

	empty, err := store.DepartmentOutcomes(ctx, "people")
	require.NoError(t, err)
	assert.Zero(t, empty.Evaluated)
}
