package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRecommendation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RecommendAccept, ParseRecommendation(" accept "))
	assert.Equal(t, RecommendReject, ParseRecommendation("Rejected"))
	assert.Equal(t, RecommendFurtherInfo, ParseRecommendation("further info"))
	assert.Equal(t, RecommendReview, ParseRecommendation("maybe"))
}

func TestScoreResultValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ScoreResult{OverallScore: 100, CategoryScores: map[string]float64{"skills": 0}}.Validate())
	assert.True(t, IsValidation(ScoreResult{OverallScore: 100.5}.Validate()))
	assert.True(t, IsValidation(ScoreResult{OverallScore: math.NaN()}.Validate()))
	assert.True(t, IsValidation(ScoreResult{OverallScore: 50, CategoryScores: map[string]float64{"skills": -3}}.Validate()))
}

func TestCandidateProfileComplete(t *testing.T) {
	t.Parallel()

	full := CandidateProfile{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		Experiences: []string{"Analyst"}, Educations: []string{"Home"}, Skills: []string{"math"},
	}
	assert.NoError(t, full.Complete())

	noSkills := full
	noSkills.Skills = nil
	assert.True(t, IsValidation(noSkills.Complete()))

	noContact := full
	noContact.Email = ""
	assert.True(t, IsValidation(noContact.Complete()))
}
