package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

// Lifecycle owns submission and every human-driven status change.
type Lifecycle struct {
	store     *infrastructure.Store
	profiles  ProfileLookup
	postings  PostingLookup
	documents DocumentLookup
	clock     Clock
	logger    *zap.Logger
}

func NewLifecycle(store *infrastructure.Store, profiles ProfileLookup, postings PostingLookup, documents DocumentLookup, clock Clock, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		store:     store,
		profiles:  profiles,
		postings:  postings,
		documents: documents,
		clock:     clock,
		logger:    logger,
	}
}

// SubmitRequest is a candidate's application to a posting.
type SubmitRequest struct {
	CandidateID           string
	JobPostingID          uint
	ResumeDocumentID      uint
	CoverLetterDocumentID *uint
}

// Submit validates the preconditions, creates the application in SUBMITTED and
// queues ApplicationCreated and EvaluationRequested in the same transaction.
// It returns before any evaluation runs.
func (l *Lifecycle) Submit(ctx context.Context, req SubmitRequest) (*domain.Application, error) {
	candidateID := strings.TrimSpace(req.CandidateID)
	if candidateID == "" {
		return nil, domain.NewValidationError("candidate_id", "is required")
	}
	if req.ResumeDocumentID == 0 {
		return nil, domain.NewValidationError("resume_document_id", "exactly one resume document is required")
	}

	posting, err := l.postings.GetPosting(ctx, req.JobPostingID)
	if err != nil {
		return nil, err
	}
	if !posting.AcceptsApplications() {
		return nil, domain.NewValidationError("job_posting_id", "posting %d is %s, not PUBLISHED", posting.ID, posting.Status)
	}

	profile, err := l.profiles.GetProfile(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := profile.Complete(); err != nil {
		return nil, err
	}

	if err := l.checkDocument(ctx, req.ResumeDocumentID, candidateID, domain.DocumentResume); err != nil {
		return nil, err
	}
	if req.CoverLetterDocumentID != nil {
		if err := l.checkDocument(ctx, *req.CoverLetterDocumentID, candidateID, domain.DocumentCoverLetter); err != nil {
			return nil, err
		}
	}

	now := l.clock.now()
	app, err := domain.NewApplication(domain.NewApplicationParams{
		CandidateID:           candidateID,
		JobPostingID:          posting.ID,
		Department:            posting.Department,
		ResumeDocumentID:      req.ResumeDocumentID,
		CoverLetterDocumentID: req.CoverLetterDocumentID,
		SubmittedBy:           candidateID,
	}, now)
	if err != nil {
		return nil, err
	}

	err = l.store.Transaction(ctx, func(tx *infrastructure.Store) error {
		exists, err := tx.ApplicationExists(ctx, candidateID, posting.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.NewValidationError("job_posting_id", "candidate %s already applied to posting %d", candidateID, posting.ID)
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return err
		}
		if err := app.RequestEvaluation(candidateID, now); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, app.PullEvents(), now)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("application submitted",
		zap.String("application_ref", app.ReferenceCode),
		zap.String("candidate_id", candidateID),
		zap.Uint("job_posting_id", posting.ID),
		zap.String("department", posting.Department),
	)
	return app, nil
}

func (l *Lifecycle) checkDocument(ctx context.Context, id uint, candidateID string, want domain.DocumentType) error {
	doc, err := l.documents.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Type != want {
		return domain.NewValidationError("document", "document %d is a %s, expected %s", id, doc.Type, want)
	}
	if doc.CandidateID != candidateID {
		return domain.NewValidationError("document", "document %d does not belong to candidate %s", id, candidateID)
	}
	return nil
}

// Transition applies a manual status change.
func (l *Lifecycle) Transition(ctx context.Context, ref string, target domain.Status, actor, reason string) (*domain.Application, error) {
	if !target.Valid() {
		return nil, domain.NewValidationError("status", "unknown status %q", target)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, domain.NewValidationError("changed_by", "is required")
	}

	app, err := mutateApplication(ctx, l.store, l.clock, ref, 0,
		func(_ *infrastructure.Store, app *domain.Application, now time.Time) (bool, error) {
			return app.Transition(target, actor, reason, now)
		})
	if err != nil {
		return nil, err
	}

	l.logger.Info("application status changed",
		zap.String("application_ref", ref),
		zap.String("status", string(app.Status)),
		zap.String("changed_by", actor),
	)
	return app, nil
}

// Withdraw moves the application to WITHDRAWN on the candidate's behalf.
func (l *Lifecycle) Withdraw(ctx context.Context, ref, actor, reason string) (*domain.Application, error) {
	if reason == "" {
		reason = "withdrawn by candidate"
	}
	return l.Transition(ctx, ref, domain.StatusWithdrawn, actor, reason)
}

// AssignInterview records the interview created for the application.
func (l *Lifecycle) AssignInterview(ctx context.Context, ref, interviewID string) (*domain.Application, error) {
	return mutateApplication(ctx, l.store, l.clock, ref, 0,
		func(_ *infrastructure.Store, app *domain.Application, _ time.Time) (bool, error) {
			if err := app.AssignInterview(interviewID); err != nil {
				return false, err
			}
			return true, nil
		})
}

// RequestEvaluation queues a new AI evaluation for a SUBMITTED application,
// typically after a failed evaluation was reverted.
func (l *Lifecycle) RequestEvaluation(ctx context.Context, ref, actor string) (*domain.Application, error) {
	return mutateApplication(ctx, l.store, l.clock, ref, 0,
		func(tx *infrastructure.Store, app *domain.Application, now time.Time) (bool, error) {
			if err := app.RequestEvaluation(actor, now); err != nil {
				return false, err
			}
			// Only an event is produced; the row itself is untouched.
			return false, tx.AppendEvents(ctx, app.PullEvents(), now)
		})
}

// Get returns the application with its history.
func (l *Lifecycle) Get(ctx context.Context, ref string) (*domain.Application, error) {
	return l.store.GetApplication(ctx, ref)
}

// GetEvaluation returns the AI evaluation of the application.
func (l *Lifecycle) GetEvaluation(ctx context.Context, ref string) (*domain.Evaluation, error) {
	app, err := l.store.GetApplication(ctx, ref)
	if err != nil {
		return nil, err
	}
	eval, err := l.store.GetEvaluation(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("application %s: %w", ref, err)
	}
	return eval, nil
}
