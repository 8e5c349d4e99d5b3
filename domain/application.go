package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ActorSystem marks transitions applied by the platform itself.
	ActorSystem = "SYSTEM"
	// ActorAI marks transitions applied by the auto-decision engine.
	ActorAI = "AI"
)

// Application is the aggregate root of a candidate's application to a job posting.
// Status changes go through Transition or RevertEvaluation only.
type Application struct {
	ID                    uint   `gorm:"primaryKey"`
	ReferenceCode         string `gorm:"size:32;uniqueIndex;not null"`
	CandidateID           string `gorm:"size:64;not null;uniqueIndex:idx_candidate_posting"`
	JobPostingID          uint   `gorm:"not null;uniqueIndex:idx_candidate_posting"`
	Department            string `gorm:"size:128;index"`
	ResumeDocumentID      uint   `gorm:"not null"`
	CoverLetterDocumentID *uint
	Status                Status   `gorm:"size:32;not null;index"`
	AIScore               *float64 `gorm:"column:ai_score"`
	AIProcessed           bool     `gorm:"column:ai_processed;not null;default:false"`
	AutoDecision          bool     `gorm:"not null;default:false"`
	IsShortlisted         bool     `gorm:"not null;default:false"`
	InterviewID           *string  `gorm:"size:64"`
	SubmittedAt           time.Time
	LastStatusChangedAt   time.Time
	LastStatusChangedBy   string `gorm:"size:64"`
	ProcessedAt           *time.Time
	Version               int `gorm:"not null;default:1"`
	CreatedAt             time.Time
	UpdatedAt             time.Time

	History []StatusHistoryEntry `gorm:"foreignKey:ApplicationID"`

	newHistory []StatusHistoryEntry
	events     []DomainEvent
}

// StatusHistoryEntry is one append-only record of a status change.
type StatusHistoryEntry struct {
	ID            uint      `gorm:"primaryKey"`
	ApplicationID uint      `gorm:"not null;index:idx_history_app_time"`
	FromStatus    Status    `gorm:"size:32;not null"`
	ToStatus      Status    `gorm:"size:32;not null"`
	ChangedBy     string    `gorm:"size:64;not null"`
	Reason        string    `gorm:"type:text"`
	ChangedAt     time.Time `gorm:"not null;index:idx_history_app_time"`
}

func (StatusHistoryEntry) TableName() string { return "application_status_history" }

// NewApplicationParams carries what a submission needs to create an application.
type NewApplicationParams struct {
	CandidateID           string
	JobPostingID          uint
	Department            string
	ResumeDocumentID      uint
	CoverLetterDocumentID *uint
	SubmittedBy           string
}

// NewApplication creates an application in SUBMITTED with a fresh reference code.
func NewApplication(p NewApplicationParams, now time.Time) (*Application, error) {
	if strings.TrimSpace(p.CandidateID) == "" {
		return nil, NewValidationError("candidate_id", "is required")
	}
	if p.JobPostingID == 0 {
		return nil, NewValidationError("job_posting_id", "is required")
	}
	if p.ResumeDocumentID == 0 {
		return nil, NewValidationError("resume_document_id", "exactly one resume document is required")
	}

	actor := strings.TrimSpace(p.SubmittedBy)
	if actor == "" {
		actor = p.CandidateID
	}

	app := &Application{
		ReferenceCode:         NewReferenceCode(now),
		CandidateID:           p.CandidateID,
		JobPostingID:          p.JobPostingID,
		Department:            p.Department,
		ResumeDocumentID:      p.ResumeDocumentID,
		CoverLetterDocumentID: p.CoverLetterDocumentID,
		Status:                StatusSubmitted,
		SubmittedAt:           now,
		LastStatusChangedAt:   now,
		LastStatusChangedBy:   actor,
		Version:               1,
	}
	app.record(EventApplicationCreated, ApplicationCreatedPayload{
		ReferenceCode: app.ReferenceCode,
		CandidateID:   app.CandidateID,
		JobPostingID:  app.JobPostingID,
		Department:    app.Department,
		SubmittedAt:   now,
	})
	return app, nil
}

// NewReferenceCode returns a human readable code such as APP-20260417-3F9A0C12.
func NewReferenceCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("APP-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Transition moves the application to target. It reports false without touching
// anything when target equals the current status.
func (a *Application) Transition(target Status, actor, reason string, now time.Time) (bool, error) {
	if err := ValidateTransition(a.Status, target); err != nil {
		return false, err
	}
	if a.Status == target {
		return false, nil
	}

	a.apply(target, actor, reason, now)
	if target == StatusInterviewRequested {
		a.record(EventInterviewRequested, InterviewRequestedPayload{
			ReferenceCode: a.ReferenceCode,
			CandidateID:   a.CandidateID,
			JobPostingID:  a.JobPostingID,
			RequestedBy:   actor,
			RequestedAt:   now,
		})
	}
	return true, nil
}

// RevertEvaluation returns an application from UNDER_REVIEW to SUBMITTED after the
// AI evaluation could not be completed. It is the only path for that edge and it
// does nothing when the status has since moved away from UNDER_REVIEW.
func (a *Application) RevertEvaluation(reason string, now time.Time) bool {
	if a.Status != StatusUnderReview {
		return false
	}
	a.apply(StatusSubmitted, ActorSystem, reason, now)
	return true
}

func (a *Application) apply(target Status, actor, reason string, now time.Time) {
	from := a.Status
	a.Status = target
	a.LastStatusChangedAt = now
	a.LastStatusChangedBy = actor

	switch target {
	case StatusShortlisted:
		a.IsShortlisted = true
	case StatusRejected:
		a.IsShortlisted = false
	}
	if (target == StatusShortlisted || target == StatusRejected) && a.ProcessedAt == nil {
		processed := now
		a.ProcessedAt = &processed
	}

	entry := StatusHistoryEntry{
		ApplicationID: a.ID,
		FromStatus:    from,
		ToStatus:      target,
		ChangedBy:     actor,
		Reason:        reason,
		ChangedAt:     now,
	}
	a.History = append(a.History, entry)
	a.newHistory = append(a.newHistory, entry)

	a.record(EventApplicationStatusChanged, StatusChangedPayload{
		ReferenceCode: a.ReferenceCode,
		CandidateID:   a.CandidateID,
		JobPostingID:  a.JobPostingID,
		FromStatus:    from,
		ToStatus:      target,
		ChangedBy:     actor,
		Reason:        reason,
		AutoDecision:  actor == ActorAI,
		ChangedAt:     now,
	})
}

// RecordAIResult stores the outcome of an AI evaluation on the application.
func (a *Application) RecordAIResult(score float64, autoDecision bool) {
	s := score
	a.AIScore = &s
	a.AIProcessed = true
	a.AutoDecision = autoDecision
}

// AssignInterview links the application to an interview owned by the interview subsystem.
func (a *Application) AssignInterview(interviewID string) error {
	interviewID = strings.TrimSpace(interviewID)
	if interviewID == "" {
		return NewValidationError("interview_id", "is required")
	}
	if a.Status.Terminal() {
		return NewValidationError("status", "cannot assign an interview to a %s application", a.Status)
	}
	a.InterviewID = &interviewID
	return nil
}

// RequestEvaluation records that an AI evaluation should run for the application.
func (a *Application) RequestEvaluation(requestedBy string, now time.Time) error {
	if a.Status != StatusSubmitted {
		return NewValidationError("status", "evaluation can only be requested for SUBMITTED applications, got %s", a.Status)
	}
	if a.ResumeDocumentID == 0 {
		return NewValidationError("resume_document_id", "a resume is required before evaluation")
	}
	a.record(EventEvaluationRequested, EvaluationRequestedPayload{
		ReferenceCode:    a.ReferenceCode,
		ApplicationID:    a.ID,
		CandidateID:      a.CandidateID,
		JobPostingID:     a.JobPostingID,
		ResumeDocumentID: a.ResumeDocumentID,
		RequestedBy:      requestedBy,
		RequestedAt:      now,
	})
	return nil
}

// PendingHistory returns history entries appended since the aggregate was loaded.
func (a *Application) PendingHistory() []StatusHistoryEntry {
	out := make([]StatusHistoryEntry, len(a.newHistory))
	for i, e := range a.newHistory {
		e.ApplicationID = a.ID
		out[i] = e
	}
	return out
}

// PullEvents returns and clears the domain events recorded since the last pull.
func (a *Application) PullEvents() []DomainEvent {
	events := a.events
	a.events = nil
	for i := range events {
		events[i].AggregateID = a.ReferenceCode
	}
	return events
}

// MarkPersisted clears pending history after a successful save.
func (a *Application) MarkPersisted() {
	a.newHistory = nil
}

func (a *Application) record(t EventType, payload any) {
	a.events = append(a.events, DomainEvent{
		AggregateType: AggregateApplication,
		AggregateID:   a.ReferenceCode,
		Type:          t,
		Payload:       payload,
	})
}
