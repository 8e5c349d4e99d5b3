package infrastructure

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"recruitment/domain"
)

//go:embed prompt.md
var promptTemplate string

const maxDocumentRunes = 12000

func buildPrompt(req domain.ScoreRequest) (string, error) {
	profileJSON, err := json.MarshalIndent(req.Profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidate profile: %w", err)
	}

	rubric := strings.TrimSpace(req.Posting.Rubric)
	if rubric == "" || rubric == "{}" {
		rubric = "none provided; use technical_skills, experience, achievements, cultural_fit"
	}

	replacer := strings.NewReplacer(
		"{{TITLE}}", req.Posting.Title,
		"{{DEPARTMENT}}", req.Posting.Department,
		"{{DESCRIPTION}}", req.Posting.Description,
		"{{RUBRIC}}", rubric,
		"{{PROFILE_JSON}}", string(profileJSON),
		"{{RESUME}}", orNone(TruncateForLog(req.ResumeText, maxDocumentRunes)),
		"{{COVER_LETTER}}", orNone(TruncateForLog(req.CoverLetterText, maxDocumentRunes)),
	)
	return replacer.Replace(promptTemplate), nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

// parseScoreResponse turns raw model output into a validated ScoreResult.
func parseScoreResponse(raw, model string) (domain.ScoreResult, error) {
	cleaned := cleanJSONResponse(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("parse model response: %w", err)
	}

	result := domain.ScoreResult{
		OverallScore:   normalizeScore(coerceFloat(data["overall_score"])),
		CategoryScores: map[string]float64{},
		Recommendation: domain.ParseRecommendation(coerceString(data["recommendation"])),
		Justification:  coerceString(data["justification"]),
		Strengths:      coerceStrings(data["strengths"]),
		Weaknesses:     coerceStrings(data["weaknesses"]),
		ModelUsed:      model,
	}
	if categories, ok := data["category_scores"].(map[string]any); ok {
		for name, v := range categories {
			score := coerceFloat(v)
			if math.IsNaN(score) {
				continue
			}
			result.CategoryScores[name] = normalizeScore(score)
		}
	}

	if err := result.Validate(); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("model %s returned invalid scores: %w", model, err)
	}
	return result, nil
}

// normalizeScore rounds to two decimals.
func normalizeScore(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end != -1 && end > start {
		content = content[start : end+1]
	}

	return strings.TrimSpace(content)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
