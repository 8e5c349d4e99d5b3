package domain

// Status is the lifecycle state of an application.
type Status string

const (
	StatusSubmitted          Status = "SUBMITTED"
	StatusUnderReview        Status = "UNDER_REVIEW"
	StatusShortlisted        Status = "SHORTLISTED"
	StatusInterviewRequested Status = "INTERVIEW_REQUESTED"
	StatusInterviewScheduled Status = "INTERVIEW_SCHEDULED"
	StatusInterviewCompleted Status = "INTERVIEW_COMPLETED"
	StatusOfferExtended      Status = "OFFER_EXTENDED"
	StatusHired              Status = "HIRED"
	StatusRejected           Status = "REJECTED"
	StatusWithdrawn          Status = "WITHDRAWN"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusSubmitted,
	StatusUnderReview,
	StatusShortlisted,
	StatusInterviewRequested,
	StatusInterviewScheduled,
	StatusInterviewCompleted,
	StatusOfferExtended,
	StatusHired,
	StatusRejected,
	StatusWithdrawn,
}

var transitions = map[Status][]Status{
	StatusSubmitted:          {StatusUnderReview, StatusRejected, StatusWithdrawn},
	StatusUnderReview:        {StatusShortlisted, StatusRejected, StatusWithdrawn},
	StatusShortlisted:        {StatusInterviewRequested, StatusRejected, StatusWithdrawn},
	StatusInterviewRequested: {StatusInterviewScheduled, StatusShortlisted, StatusRejected, StatusWithdrawn},
	StatusInterviewScheduled: {StatusInterviewCompleted, StatusInterviewRequested, StatusRejected, StatusWithdrawn},
	StatusInterviewCompleted: {StatusOfferExtended, StatusRejected, StatusWithdrawn},
	StatusOfferExtended:      {StatusHired, StatusRejected, StatusWithdrawn},
	StatusHired:              nil,
	StatusRejected:           nil,
	StatusWithdrawn:          nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusHired || s == StatusRejected || s == StatusWithdrawn
}

// Advanced reports whether s counts as a positive screening outcome:
// shortlisted or any status downstream of it except rejection and withdrawal.
func (s Status) Advanced() bool {
	switch s {
	case StatusShortlisted, StatusInterviewRequested, StatusInterviewScheduled,
		StatusInterviewCompleted, StatusOfferExtended, StatusHired:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from -> to.
// A self-transition is always allowed and is a no-op.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *InvalidTransitionError when from -> to is not an allowed edge.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &InvalidTransitionError{From: from, To: to}
}
