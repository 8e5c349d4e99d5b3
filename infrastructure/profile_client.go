package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recruitment/domain"
)

// ProfileClient fetches candidate profiles from the profile service.
type ProfileClient struct {
	baseURL string
	http    *http.Client
}

func NewProfileClient(cfg LookupConfig) *ProfileClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProfileClient{
		baseURL: strings.TrimRight(cfg.ProfileServiceURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// GetProfile returns the profile of candidateID. Transport failures, 5xx, 429 and
// 408 answers come back as DownstreamUnavailableError, a 404 as NotFoundError.
func (c *ProfileClient) GetProfile(ctx context.Context, candidateID string) (*domain.CandidateProfile, error) {
	endpoint := fmt.Sprintf("%s/api/candidates/%s/profile", c.baseURL, url.PathEscape(candidateID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewDownstreamError("profile service", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewDownstreamError("profile service", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewNotFoundError("candidate profile", candidateID)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return nil, domain.NewDownstreamError("profile service",
			fmt.Errorf("status %d: %s", resp.StatusCode, TruncateForLog(string(body), 200)))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("profile service returned status %d", resp.StatusCode)
	}

	var profile domain.CandidateProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode candidate profile: %w", err)
	}
	if profile.ID == "" {
		profile.ID = candidateID
	}
	return &profile, nil
}
