package domain

import "time"

// PostingStatus is the publication state of a job posting.
type PostingStatus string

const (
	PostingDraft     PostingStatus = "DRAFT"
	PostingPublished PostingStatus = "PUBLISHED"
	PostingClosed    PostingStatus = "CLOSED"
)

// JobPosting is the part of a posting the application core reads.
type JobPosting struct {
	ID          uint          `gorm:"primaryKey"`
	Title       string        `gorm:"size:255;not null"`
	Department  string        `gorm:"size:128;not null;index"`
	Status      PostingStatus `gorm:"size:32;not null;default:'DRAFT'"`
	Description string        `gorm:"type:text;not null"`
	Rubric      string        `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AcceptsApplications reports whether new applications may be submitted.
func (p JobPosting) AcceptsApplications() bool {
	return p.Status == PostingPublished
}
