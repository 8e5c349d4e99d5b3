package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

const defaultScoringTimeout = 60 * time.Second

// EvaluationOutcome describes what one evaluation did to an application.
type EvaluationOutcome struct {
	Application *domain.Application
	Evaluation  *domain.Evaluation
	Thresholds  domain.Thresholds
	Decision    domain.Decision
	// Skipped is set when the application had already left SUBMITTED/UNDER_REVIEW.
	Skipped bool
}

// Reconciler runs AI evaluations and turns their scores into status decisions.
type Reconciler struct {
	store      *infrastructure.Store
	profiles   ProfileLookup
	postings   PostingLookup
	documents  DocumentLookup
	scorer     Scorer
	thresholds *ThresholdResolver
	timeout    time.Duration
	clock      Clock
	logger     *zap.Logger
}

// ReconcilerDeps groups the collaborators of a Reconciler.
type ReconcilerDeps struct {
	Store      *infrastructure.Store
	Profiles   ProfileLookup
	Postings   PostingLookup
	Documents  DocumentLookup
	Scorer     Scorer
	Thresholds *ThresholdResolver
	Timeout    time.Duration
	Clock      Clock
	Logger     *zap.Logger
}

func NewReconciler(deps ReconcilerDeps) *Reconciler {
	if deps.Timeout <= 0 {
		deps.Timeout = defaultScoringTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Reconciler{
		store:      deps.Store,
		profiles:   deps.Profiles,
		postings:   deps.Postings,
		documents:  deps.Documents,
		scorer:     deps.Scorer,
		thresholds: deps.Thresholds,
		timeout:    deps.Timeout,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Evaluate scores the application and applies the decision. The application is
// moved to UNDER_REVIEW before the scoring call; if the call cannot be completed
// it is moved back to SUBMITTED so that a new evaluation can be requested.
func (r *Reconciler) Evaluate(ctx context.Context, ref string) (*EvaluationOutcome, error) {
	ctx, span := tracer.Start(ctx, "reconciler.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("application.ref", ref))

	log := r.logger.With(zap.String("application_ref", ref))

	app, started, err := r.begin(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !started {
		log.Info("skipping evaluation, application already evaluated or decided",
			zap.String("status", string(app.Status)),
			zap.Bool("ai_processed", app.AIProcessed),
		)
		return &EvaluationOutcome{Application: app, Skipped: true}, nil
	}

	req, err := r.scoreRequest(ctx, app)
	if err == nil {
		var result domain.ScoreResult
		result, err = r.score(ctx, req)
		if err == nil {
			outcome, applyErr := r.ApplyResult(ctx, ref, result)
			if applyErr != nil {
				span.RecordError(applyErr)
				span.SetStatus(codes.Error, "apply result")
			}
			return outcome, applyErr
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "evaluation failed")
	log.Warn("evaluation failed, reverting to SUBMITTED", zap.Error(err))
	if revertErr := r.revert(ctx, ref, app.Version, err); revertErr != nil {
		log.Error("revert after failed evaluation", zap.Error(revertErr))
		return nil, errors.Join(err, revertErr)
	}
	return nil, err
}

// begin moves a SUBMITTED application to UNDER_REVIEW. It reports false when the
// application must not be evaluated: it is past UNDER_REVIEW, or the AI already
// scored it and left it for a person. An UNDER_REVIEW application without a score
// belongs to an attempt that never finished and is resumed.
func (r *Reconciler) begin(ctx context.Context, ref string) (*domain.Application, bool, error) {
	started := false
	app, err := mutateApplication(ctx, r.store, r.clock, ref, 0,
		func(_ *infrastructure.Store, app *domain.Application, now time.Time) (bool, error) {
			if app.ResumeDocumentID == 0 {
				return false, domain.NewValidationError("resume_document_id", "a resume is required before evaluation")
			}
			switch app.Status {
			case domain.StatusSubmitted:
				started = true
				return app.Transition(domain.StatusUnderReview, domain.ActorSystem, "AI evaluation started", now)
			case domain.StatusUnderReview:
				started = !app.AIProcessed
				return false, nil
			default:
				return false, nil
			}
		})
	if err != nil {
		return nil, false, err
	}
	return app, started, nil
}

func (r *Reconciler) scoreRequest(ctx context.Context, app *domain.Application) (domain.ScoreRequest, error) {
	profile, err := r.profiles.GetProfile(ctx, app.CandidateID)
	if err != nil {
		return domain.ScoreRequest{}, fmt.Errorf("load candidate profile: %w", err)
	}
	posting, err := r.postings.GetPosting(ctx, app.JobPostingID)
	if err != nil {
		return domain.ScoreRequest{}, fmt.Errorf("load job posting: %w", err)
	}
	resume, err := r.documents.GetDocument(ctx, app.ResumeDocumentID)
	if err != nil {
		return domain.ScoreRequest{}, fmt.Errorf("load resume: %w", err)
	}

	req := domain.ScoreRequest{
		ApplicationRef: app.ReferenceCode,
		Profile:        *profile,
		Posting:        *posting,
		ResumeText:     resume.Text,
	}
	if app.CoverLetterDocumentID != nil {
		letter, err := r.documents.GetDocument(ctx, *app.CoverLetterDocumentID)
		if err != nil {
			return domain.ScoreRequest{}, fmt.Errorf("load cover letter: %w", err)
		}
		req.CoverLetterText = letter.Text
	}
	return req, nil
}

func (r *Reconciler) score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResult, error) {
	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.scorer.Score(scoreCtx, req)
	if err != nil {
		return domain.ScoreResult{}, domain.NewDownstreamError("ai scoring", err)
	}
	if err := result.Validate(); err != nil {
		return domain.ScoreResult{}, domain.NewDownstreamError("ai scoring", err)
	}
	return result, nil
}

// revert undoes the UNDER_REVIEW set by begin. Any write since then, a result
// applied by a concurrent attempt or a person's decision, leaves the application alone.
func (r *Reconciler) revert(ctx context.Context, ref string, version int, cause error) error {
	reason := fmt.Sprintf("AI evaluation failed: %v", cause)
	_, err := mutateApplication(ctx, r.store, r.clock, ref, 0,
		func(_ *infrastructure.Store, app *domain.Application, now time.Time) (bool, error) {
			if app.Version == version && app.RevertEvaluation(reason, now) {
				return true, nil
			}
			r.logger.Info("not reverting, application changed during evaluation",
				zap.String("application_ref", ref),
				zap.String("status", string(app.Status)),
				zap.Int("version", app.Version),
				zap.Int("began_at_version", version),
			)
			return false, nil
		})
	return err
}

// ApplyResult records an evaluation result and drives the auto-decision. A repeated
// result for the same application updates the existing evaluation in place. When
// a person already moved the application past UNDER_REVIEW, the result is stored
// but the status is left alone.
func (r *Reconciler) ApplyResult(ctx context.Context, ref string, result domain.ScoreResult) (*EvaluationOutcome, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}

	outcome := &EvaluationOutcome{}
	app, err := mutateApplication(ctx, r.store, r.clock, ref, 0,
		func(tx *infrastructure.Store, app *domain.Application, now time.Time) (bool, error) {
			thresholds, err := r.thresholds.Resolve(ctx, tx, app.Department)
			if err != nil {
				return false, err
			}

			eval, err := tx.GetEvaluation(ctx, app.ID)
			switch {
			case domain.IsNotFound(err):
				eval = &domain.Evaluation{ApplicationID: app.ID}
			case err != nil:
				return false, err
			}

			decision := domain.Decide(result.OverallScore, thresholds)
			autoDecision := app.AutoDecision

			switch app.Status {
			case domain.StatusSubmitted, domain.StatusUnderReview:
				if _, err := app.Transition(domain.StatusUnderReview, domain.ActorSystem, "AI evaluation started", now); err != nil {
					return false, err
				}
				if decision.Status != domain.StatusUnderReview {
					reason := fmt.Sprintf("AI score %.2f against thresholds accept %.2f / reject %.2f",
						result.OverallScore, thresholds.AutoAccept, thresholds.AutoReject)
					if _, err := app.Transition(decision.Status, domain.ActorAI, reason, now); err != nil {
						return false, err
					}
				}
				autoDecision = decision.AutoDecision
			default:
				decision = domain.Decision{Status: app.Status}
			}

			eval.Apply(result, decision.ExceededAutoThreshold, now)
			if err := tx.SaveEvaluation(ctx, eval); err != nil {
				return false, err
			}
			app.RecordAIResult(result.OverallScore, autoDecision)

			outcome.Evaluation = eval
			outcome.Thresholds = thresholds
			outcome.Decision = decision
			return true, nil
		})
	if err != nil {
		return nil, err
	}
	outcome.Application = app

	r.logger.Info("evaluation applied",
		zap.String("application_ref", ref),
		zap.String("department", app.Department),
		zap.Float64("score", result.OverallScore),
		zap.String("status", string(app.Status)),
		zap.Bool("auto_decision", app.AutoDecision),
		zap.Bool("default_thresholds", outcome.Thresholds.FromDefaults),
		zap.String("ai_model", result.ModelUsed),
	)
	return outcome, nil
}
