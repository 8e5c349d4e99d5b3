package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Recommendation is the AI's suggested outcome.
type Recommendation string

const (
	RecommendAccept      Recommendation = "ACCEPT"
	RecommendReject      Recommendation = "REJECT"
	RecommendReview      Recommendation = "REVIEW"
	RecommendFurtherInfo Recommendation = "FURTHER_INFO"
)

// ParseRecommendation normalizes free-form model output to a Recommendation.
// Anything unrecognised becomes REVIEW.
func ParseRecommendation(s string) Recommendation {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "ACCEPT", "ACCEPTED", "SHORTLIST":
		return RecommendAccept
	case "REJECT", "REJECTED":
		return RecommendReject
	case "FURTHER_INFO", "FURTHER_INFORMATION", "MORE_INFO":
		return RecommendFurtherInfo
	default:
		return RecommendReview
	}
}

// ScoreRequest is the input of one AI scoring call.
type ScoreRequest struct {
	ApplicationRef  string
	Profile         CandidateProfile
	Posting         JobPosting
	ResumeText      string
	CoverLetterText string
}

// ScoreResult is what an AI scorer returns for one application.
type ScoreResult struct {
	OverallScore   float64            `json:"overall_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Recommendation Recommendation     `json:"recommendation"`
	Justification  string             `json:"justification"`
	Strengths      []string           `json:"strengths"`
	Weaknesses     []string           `json:"weaknesses"`
	ModelUsed      string             `json:"model_used"`
}

// Validate checks that all scores fall on [0,100].
func (r ScoreResult) Validate() error {
	if err := validateScore("overall_score", r.OverallScore); err != nil {
		return err
	}
	for name, score := range r.CategoryScores {
		if err := validateScore("category_scores."+name, score); err != nil {
			return err
		}
	}
	return nil
}

func validateScore(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return NewValidationError(field, "must be between 0 and 100, got %v", v)
	}
	return nil
}

// Evaluation is the AI assessment of one application, updated in place on re-evaluation.
type Evaluation struct {
	ID                    uint               `gorm:"primaryKey"`
	ApplicationID         uint               `gorm:"not null;uniqueIndex"`
	OverallScore          float64            `gorm:"not null"`
	CategoryScores        map[string]float64 `gorm:"serializer:json;type:text"`
	Recommendation        Recommendation     `gorm:"size:32;not null"`
	Justification         string             `gorm:"type:text"`
	Strengths             []string           `gorm:"serializer:json;type:text"`
	Weaknesses            []string           `gorm:"serializer:json;type:text"`
	ModelUsed             string             `gorm:"size:128"`
	ExceededAutoThreshold bool               `gorm:"not null;default:false"`
	EvaluatedAt           time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Apply copies a scoring result onto the evaluation.
func (e *Evaluation) Apply(r ScoreResult, exceeded bool, now time.Time) {
	e.OverallScore = r.OverallScore
	e.CategoryScores = r.CategoryScores
	e.Recommendation = r.Recommendation
	e.Justification = r.Justification
	e.Strengths = r.Strengths
	e.Weaknesses = r.Weaknesses
	e.ModelUsed = r.ModelUsed
	e.ExceededAutoThreshold = exceeded
	e.EvaluatedAt = now
}

func (e Evaluation) String() string {
	return fmt.Sprintf("evaluation(app=%d score=%.1f rec=%s)", e.ApplicationID, e.OverallScore, e.Recommendation)
}
