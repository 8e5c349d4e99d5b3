package service

import (
	"context"
	"time"

	"recruitment/domain"
	"recruitment/infrastructure"
)

// ProfileLookup fetches candidate profiles.
type ProfileLookup interface {
	GetProfile(ctx context.Context, candidateID string) (*domain.CandidateProfile, error)
}

// PostingLookup fetches job postings.
type PostingLookup interface {
	GetPosting(ctx context.Context, id uint) (*domain.JobPosting, error)
}

// DocumentLookup confirms uploaded documents exist and returns their content.
type DocumentLookup interface {
	GetDocument(ctx context.Context, id uint) (*domain.Document, error)
}

// Scorer is the AI scoring call.
type Scorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResult, error)
}

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg infrastructure.Message) error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func (c Clock) now() time.Time {
	if c == nil {
		return systemClock()
	}
	return c().UTC()
}
