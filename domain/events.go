package domain

import "time"

// EventType names a domain event published through the outbox.
type EventType string

const (
	EventApplicationCreated       EventType = "ApplicationCreated"
	EventApplicationStatusChanged EventType = "ApplicationStatusChanged"
	EventInterviewRequested       EventType = "InterviewRequested"
	EventEvaluationRequested      EventType = "EvaluationRequested"
)

// AggregateApplication is the aggregate type of application events.
const AggregateApplication = "Application"

// DomainEvent is an event raised by an aggregate, not yet serialized.
type DomainEvent struct {
	AggregateType string
	AggregateID   string
	Type          EventType
	Payload       any
}

type ApplicationCreatedPayload struct {
	ReferenceCode string    `json:"reference_code"`
	CandidateID   string    `json:"candidate_id"`
	JobPostingID  uint      `json:"job_posting_id"`
	Department    string    `json:"department"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type StatusChangedPayload struct {
	ReferenceCode string    `json:"reference_code"`
	CandidateID   string    `json:"candidate_id"`
	JobPostingID  uint      `json:"job_posting_id"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	ChangedBy     string    `json:"changed_by"`
	Reason        string    `json:"reason,omitempty"`
	AutoDecision  bool      `json:"auto_decision"`
	ChangedAt     time.Time `json:"changed_at"`
}

type InterviewRequestedPayload struct {
	ReferenceCode string    `json:"reference_code"`
	CandidateID   string    `json:"candidate_id"`
	JobPostingID  uint      `json:"job_posting_id"`
	RequestedBy   string    `json:"requested_by"`
	RequestedAt   time.Time `json:"requested_at"`
}

// EvaluationRequestedPayload is what the evaluation worker consumes from the broker.
type EvaluationRequestedPayload struct {
	ReferenceCode    string    `json:"reference_code"`
	ApplicationID    uint      `json:"application_id"`
	CandidateID      string    `json:"candidate_id"`
	JobPostingID     uint      `json:"job_posting_id"`
	ResumeDocumentID uint      `json:"resume_document_id"`
	RequestedBy      string    `json:"requested_by"`
	RequestedAt      time.Time `json:"requested_at"`
}
