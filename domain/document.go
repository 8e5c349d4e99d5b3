package domain

import "time"

// DocumentType distinguishes resumes from cover letters.
type DocumentType string

const (
	DocumentResume      DocumentType = "RESUME"
	DocumentCoverLetter DocumentType = "COVER_LETTER"
)

// Document is an uploaded candidate file with its extracted text.
type Document struct {
	ID          uint         `gorm:"primaryKey"`
	CandidateID string       `gorm:"size:64;not null;index"`
	Type        DocumentType `gorm:"size:32;not null"`
	Filename    string       `gorm:"size:255"`
	Text        string       `gorm:"type:longtext;not null"`
	CreatedAt   time.Time
}

// CandidateProfile is the profile data returned by the profile service.
type CandidateProfile struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Headline    string   `json:"headline"`
	Experiences []string `json:"experiences"`
	Educations  []string `json:"educations"`
	Skills      []string `json:"skills"`
}

// Complete returns a ValidationError naming the first missing part of the profile.
func (p CandidateProfile) Complete() error {
	switch {
	case p.FirstName == "" || p.LastName == "":
		return NewValidationError("profile.name", "first and last name are required")
	case p.Email == "" && p.Phone == "":
		return NewValidationError("profile.contact", "an email or phone number is required")
	case len(p.Experiences) == 0:
		return NewValidationError("profile.experiences", "at least one experience entry is required")
	case len(p.Educations) == 0:
		return NewValidationError("profile.educations", "at least one education entry is required")
	case len(p.Skills) == 0:
		return NewValidationError("profile.skills", "at least one skill is required")
	}
	return nil
}
