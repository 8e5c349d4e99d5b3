package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitment/domain"
)

func TestCleanJSONResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding prose", in: "Here you go: {\"a\":{\"b\":2}} hope it helps", want: `{"a":{"b":2}}`},
		{name: "no object", in: "  nothing  ", want: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONResponse(tt.in))
		})
	}
}

func TestParseScoreResponse(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{
		"overall_score": "84.456",
		"category_scores": {"technical_skills": 90, "experience": "77.1", "bogus": "n/a"},
		"recommendation": "accepted",
		"justification": " strong backend profile ",
		"strengths": ["go", "", "sql"],
		"weaknesses": []
	}` + "\n```"

	result, err := parseScoreResponse(raw, "gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, 84.46, result.OverallScore)
	assert.Equal(t, map[string]float64{"technical_skills": 90, "experience": 77.1}, result.CategoryScores)
	assert.Equal(t, domain.RecommendAccept, result.Recommendation)
	assert.Equal(t, "strong backend profile", result.Justification)
	assert.Equal(t, []string{"go", "sql"}, result.Strengths)
	assert.Empty(t, result.Weaknesses)
	assert.Equal(t, "gemini-2.5-flash", result.ModelUsed)
}

func TestParseScoreResponseRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":           "I cannot score this candidate.",
		"missing score":      `{"recommendation": "REVIEW"}`,
		"score above range":  `{"overall_score": 140}`,
		"negative category":  `{"overall_score": 50, "category_scores": {"experience": -3}}`,
		"non numeric string": `{"overall_score": "high"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseScoreResponse(raw, "m")
			assert.Error(t, err)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	prompt, err := buildPrompt(domain.ScoreRequest{
		ApplicationRef: "APP-20260417-ABCDEF12",
		Profile: domain.CandidateProfile{
			ID:        "cand-1",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Skills:    []string{"go"},
		},
		Posting: domain.JobPosting{
			Title:       "Backend Engineer",
			Department:  "engineering",
			Description: "Build services.",
			Rubric:      `{"technical_skills": 0.6, "experience": 0.4}`,
		},
		ResumeText: "Ten years of distributed systems.",
	})
	require.NoError(t, err)

	assert.NotContains(t, prompt, "{{")
	assert.Contains(t, prompt, "Backend Engineer")
	assert.Contains(t, prompt, "engineering")
	assert.Contains(t, prompt, `"technical_skills": 0.6`)
	assert.Contains(t, prompt, `"first_name": "Ada"`)
	assert.Contains(t, prompt, "Ten years of distributed systems.")
	assert.Contains(t, prompt, "Cover Letter:\nnone")
}

func TestBuildPromptDefaultRubric(t *testing.T) {
	t.Parallel()

	prompt, err := buildPrompt(domain.ScoreRequest{Posting: domain.JobPosting{Title: "Recruiter", Rubric: "{}"}})
	require.NoError(t, err)
	assert.Contains(t, prompt, "none provided")
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", TruncateForLog("  abc  ", 10))
	assert.Equal(t, "ab...", TruncateForLog("abcdef", 2))
	assert.Equal(t, "", TruncateForLog("abcdef", 0))
	assert.Equal(t, "日本...", TruncateForLog("日本語です", 2))
}
