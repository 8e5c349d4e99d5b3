package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitment/domain"
)

func TestEvaluateAutoDecisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		score         float64
		wantStatus    domain.Status
		wantAuto      bool
		wantExceeded  bool
		wantShortlist bool
		wantProcessed bool
	}{
		{name: "auto accept", score: 85, wantStatus: domain.StatusShortlisted, wantAuto: true, wantExceeded: true, wantShortlist: true, wantProcessed: true},
		{name: "auto reject", score: 35, wantStatus: domain.StatusRejected, wantAuto: true, wantExceeded: true, wantProcessed: true},
		{name: "deferred to a human", score: 60, wantStatus: domain.StatusUnderReview},
		{name: "accept boundary is inclusive", score: 80, wantStatus: domain.StatusShortlisted, wantAuto: true, wantExceeded: true, wantShortlist: true, wantProcessed: true},
		{name: "reject boundary is inclusive", score: 40, wantStatus: domain.StatusRejected, wantAuto: true, wantExceeded: true, wantProcessed: true},
		{name: "just below accept", score: 79.99, wantStatus: domain.StatusUnderReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.configure(t, testDepartment, 80, 40, true)
			app := f.submit(t, "cand-1")
			f.scorer.returns(tt.score)

			outcome, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
			require.NoError(t, err)
			require.False(t, outcome.Skipped)
			assert.False(t, outcome.Thresholds.FromDefaults)

			got := f.load(t, app.ReferenceCode)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantAuto, got.AutoDecision)
			assert.Equal(t, tt.wantShortlist, got.IsShortlisted)
			assert.True(t, got.AIProcessed)
			require.NotNil(t, got.AIScore)
			assert.InDelta(t, tt.score, *got.AIScore, 0.001)
			assert.Equal(t, tt.wantProcessed, got.ProcessedAt != nil)

			wantPath := [][2]domain.Status{{domain.StatusSubmitted, domain.StatusUnderReview}}
			if tt.wantStatus != domain.StatusUnderReview {
				wantPath = append(wantPath, [2]domain.Status{domain.StatusUnderReview, tt.wantStatus})
			}
			assert.Equal(t, wantPath, transitionsOf(got))
			assert.Equal(t, domain.ActorSystem, got.History[0].ChangedBy)
			if len(got.History) > 1 {
				assert.Equal(t, domain.ActorAI, got.History[1].ChangedBy)
			}

			eval, err := f.lifecycle.GetEvaluation(context.Background(), app.ReferenceCode)
			require.NoError(t, err)
			assert.InDelta(t, tt.score, eval.OverallScore, 0.001)
			assert.Equal(t, tt.wantExceeded, eval.ExceededAutoThreshold)
			assert.Equal(t, "stub-model", eval.ModelUsed)
		})
	}
}

func TestEvaluateStatusEventsInOutbox(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	f.scorer.returns(90)

	_, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
	require.NoError(t, err)

	events, err := f.store.ListOutbox(context.Background(), app.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventApplicationCreated,
		domain.EventEvaluationRequested,
		domain.EventApplicationStatusChanged,
		domain.EventApplicationStatusChanged,
	}, eventTypes(events))
	assert.JSONEq(t, `true`, jsonField(t, events[3].Payload, "auto_decision"))
	assert.JSONEq(t, `"SHORTLISTED"`, jsonField(t, events[3].Payload, "to_status"))
}

func TestEvaluateFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	t.Run("no settings", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		app := f.submit(t, "cand-1")
		f.scorer.returns(85)

		outcome, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
		require.NoError(t, err)
		assert.True(t, outcome.Thresholds.FromDefaults)
		assert.Equal(t, domain.StatusShortlisted, outcome.Application.Status)
	})

	t.Run("inactive settings", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.configure(t, testDepartment, 95, 10, false)
		app := f.submit(t, "cand-1")
		f.scorer.returns(85)

		outcome, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
		require.NoError(t, err)
		assert.True(t, outcome.Thresholds.FromDefaults)
		assert.InDelta(t, 80, outcome.Thresholds.AutoAccept, 0.001)
		assert.Equal(t, domain.StatusShortlisted, outcome.Application.Status)
	})
}

func TestSettingsChangeInvalidatesCachedThresholds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.submit(t, "cand-1")
	f.scorer.returns(85)
	_, err := f.reconciler.Evaluate(context.Background(), first.ReferenceCode)
	require.NoError(t, err)

	f.configure(t, testDepartment, 90, 30, true)
	second := f.submit(t, "cand-2")
	outcome, err := f.reconciler.Evaluate(context.Background(), second.ReferenceCode)
	require.NoError(t, err)
	assert.False(t, outcome.Thresholds.FromDefaults)
	assert.Equal(t, domain.StatusUnderReview, outcome.Application.Status)
}

func TestApplyResultIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()

	first, err := f.reconciler.ApplyResult(ctx, app.ReferenceCode, scoreResult(60))
	require.NoError(t, err)
	second, err := f.reconciler.ApplyResult(ctx, app.ReferenceCode, scoreResult(60))
	require.NoError(t, err)
	third, err := f.reconciler.ApplyResult(ctx, app.ReferenceCode, scoreResult(65))
	require.NoError(t, err)

	assert.Equal(t, first.Evaluation.ID, second.Evaluation.ID)
	assert.Equal(t, first.Evaluation.ID, third.Evaluation.ID)

	eval, err := f.lifecycle.GetEvaluation(ctx, app.ReferenceCode)
	require.NoError(t, err)
	assert.InDelta(t, 65, eval.OverallScore, 0.001)

	got := f.load(t, app.ReferenceCode)
	assert.Equal(t, domain.StatusUnderReview, got.Status)
	assert.Len(t, got.History, 1)
}

func TestApplyResultAfterHumanDecisionKeepsStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()

	_, err := f.lifecycle.Transition(ctx, app.ReferenceCode, domain.StatusUnderReview, "recruiter-1", "")
	require.NoError(t, err)
	_, err = f.lifecycle.Transition(ctx, app.ReferenceCode, domain.StatusShortlisted, "recruiter-1", "strong referral")
	require.NoError(t, err)

	outcome, err := f.reconciler.ApplyResult(ctx, app.ReferenceCode, scoreResult(10))
	require.NoError(t, err)
	assert.False(t, outcome.Decision.ExceededAutoThreshold)

	got := f.load(t, app.ReferenceCode)
	assert.Equal(t, domain.StatusShortlisted, got.Status)
	assert.False(t, got.AutoDecision)
	require.NotNil(t, got.AIScore)
	assert.InDelta(t, 10, *got.AIScore, 0.001)
	assert.Len(t, got.History, 2)
}

func TestEvaluateSkipsDecidedApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()
	_, err := f.lifecycle.Withdraw(ctx, app.ReferenceCode, "cand-1", "")
	require.NoError(t, err)

	outcome, err := f.reconciler.Evaluate(ctx, app.ReferenceCode)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Zero(t, f.scorer.calls)
	assert.Equal(t, domain.StatusWithdrawn, f.load(t, app.ReferenceCode).Status)
}

func TestEvaluateRevertsOnScorerFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	f.scorer.fails(errors.New("model overloaded"))

	_, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
	require.Error(t, err)
	assert.True(t, domain.IsDownstream(err))

	got := f.load(t, app.ReferenceCode)
	assert.Equal(t, domain.StatusSubmitted, got.Status)
	assert.False(t, got.AIProcessed)
	assert.Equal(t, [][2]domain.Status{
		{domain.StatusSubmitted, domain.StatusUnderReview},
		{domain.StatusUnderReview, domain.StatusSubmitted},
	}, transitionsOf(got))

	_, err = f.lifecycle.GetEvaluation(context.Background(), app.ReferenceCode)
	assert.True(t, domain.IsNotFound(err))

	// A reverted application can be evaluated again.
	f.scorer.returns(90)
	outcome, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShortlisted, outcome.Application.Status)
}

func TestEvaluateRevertsOnTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.reconciler.timeout = 20 * time.Millisecond
	app := f.submit(t, "cand-1")
	f.scorer.fn = func(ctx context.Context, _ domain.ScoreRequest) (domain.ScoreResult, error) {
		<-ctx.Done()
		return domain.ScoreResult{}, ctx.Err()
	}

	_, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
	require.Error(t, err)
	assert.True(t, domain.IsDownstream(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StatusSubmitted, f.load(t, app.ReferenceCode).Status)
}

func TestEvaluateRevertsOnOutOfRangeScore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	f.scorer.returns(140)

	_, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
	require.Error(t, err)
	assert.True(t, domain.IsDownstream(err))
	assert.Equal(t, domain.StatusSubmitted, f.load(t, app.ReferenceCode).Status)
}

func TestRevertSkippedWhenStatusMovedOn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()

	// A recruiter decides while the scoring call is still running.
	f.scorer.fn = func(context.Context, domain.ScoreRequest) (domain.ScoreResult, error) {
		_, err := f.lifecycle.Transition(ctx, app.ReferenceCode, domain.StatusRejected, "recruiter-1", "position filled")
		require.NoError(t, err)
		return domain.ScoreResult{}, errors.New("model overloaded")
	}

	_, err := f.reconciler.Evaluate(ctx, app.ReferenceCode)
	require.Error(t, err)
	got := f.load(t, app.ReferenceCode)
	assert.Equal(t, domain.StatusRejected, got.Status)
	assert.Equal(t, "recruiter-1", got.LastStatusChangedBy)
}

func TestEvaluateMissingProfileReverts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	f.profiles.err = domain.NewDownstreamError("profile service", errors.New("connection refused"))

	_, err := f.reconciler.Evaluate(context.Background(), app.ReferenceCode)
	require.Error(t, err)
	assert.True(t, domain.IsDownstream(err))
	assert.Zero(t, f.scorer.calls)
	assert.Equal(t, domain.StatusSubmitted, f.load(t, app.ReferenceCode).Status)
}

func TestRedeliveredRequestKeepsDeferredApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()

	f.scorer.returns(60)
	outcome, err := f.reconciler.Evaluate(ctx, app.ReferenceCode)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnderReview, outcome.Application.Status)

	// The same request arrives again and the model is now failing.
	f.scorer.fails(errors.New("model overloaded"))
	outcome, err = f.reconciler.Evaluate(ctx, app.ReferenceCode)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, 1, f.scorer.calls)

	got := f.load(t, app.ReferenceCode)
	assert.Equal(t, domain.StatusUnderReview, got.Status)
	assert.True(t, got.AIProcessed)
	assert.False(t, got.AutoDecision)
	assert.Equal(t, [][2]domain.Status{
		{domain.StatusSubmitted, domain.StatusUnderReview},
	}, transitionsOf(got))
}

func TestEvaluateResumesUnscoredReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()

	// An earlier attempt moved it to UNDER_REVIEW and stopped before scoring.
	_, err := f.lifecycle.Transition(ctx, app.ReferenceCode, domain.StatusUnderReview, domain.ActorSystem, "")
	require.NoError(t, err)

	f.scorer.returns(90)
	outcome, err := f.reconciler.Evaluate(ctx, app.ReferenceCode)
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)
	assert.Equal(t, domain.StatusShortlisted, outcome.Application.Status)
}

func TestRevertSkippedWhenConcurrentAttemptApplied(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.submit(t, "cand-1")
	ctx := context.Background()

	// A concurrent delivery lands its result while this attempt is still scoring.
	f.scorer.fn = func(context.Context, domain.ScoreRequest) (domain.ScoreResult, error) {
		_, err := f.reconciler.ApplyResult(ctx, app.ReferenceCode, scoreResult(60))
		require.NoError(t, err)
		return domain.ScoreResult{}, errors.New("model overloaded")
	}

	_, err := f.reconciler.Evaluate(ctx, app.ReferenceCode)
	require.Error(t, err)

	got := f.load(t, app.ReferenceCode)
	assert.Equal(t, domain.StatusUnderReview, got.Status)
	assert.True(t, got.AIProcessed)
	assert.Equal(t, [][2]domain.Status{
		{domain.StatusSubmitted, domain.StatusUnderReview},
	}, transitionsOf(got))
}
