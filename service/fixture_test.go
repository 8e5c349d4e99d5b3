package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

const testDepartment = "engineering"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances one second per call so history entries are strictly ordered.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type profileStub struct {
	mu       sync.Mutex
	profiles map[string]*domain.CandidateProfile
	err      error
}

func (p *profileStub) GetProfile(_ context.Context, candidateID string) (*domain.CandidateProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	profile, ok := p.profiles[candidateID]
	if !ok {
		return nil, domain.NewNotFoundError("candidate profile", candidateID)
	}
	cp := *profile
	return &cp, nil
}

func completeProfile(id string) *domain.CandidateProfile {
	return &domain.CandidateProfile{
		ID:          id,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       id + "@example.com",
		Experiences: []string{"Backend engineer, 5 years"},
		Educations:  []string{"BSc Computer Science"},
		Skills:      []string{"Go", "MySQL"},
	}
}

type scorerStub struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResult, error)
}

func (s *scorerStub) Score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResult, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	return fn(ctx, req)
}

func (s *scorerStub) returns(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = func(context.Context, domain.ScoreRequest) (domain.ScoreResult, error) {
		return scoreResult(score), nil
	}
}

func (s *scorerStub) fails(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = func(context.Context, domain.ScoreRequest) (domain.ScoreResult, error) {
		return domain.ScoreResult{}, err
	}
}

func scoreResult(score float64) domain.ScoreResult {
	return domain.ScoreResult{
		OverallScore:   score,
		CategoryScores: map[string]float64{"technical_skills": score},
		Recommendation: domain.RecommendReview,
		Justification:  "stub",
		Strengths:      []string{"go"},
		ModelUsed:      "stub-model",
	}
}

type published struct {
	routingKey string
	msg        infrastructure.Message
}

type publisherStub struct {
	mu       sync.Mutex
	attempts map[string]int
	sent     []published
	failKeys map[string]error
	// onPublish runs before every attempt, e.g. to let the clock run.
	onPublish func()
}

func newPublisherStub() *publisherStub {
	return &publisherStub{attempts: map[string]int{}, failKeys: map[string]error{}}
}

func (p *publisherStub) Publish(_ context.Context, routingKey string, msg infrastructure.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onPublish != nil {
		p.onPublish()
	}
	p.attempts[msg.ID]++
	if err, ok := p.failKeys[routingKey]; ok {
		return err
	}
	p.sent = append(p.sent, published{routingKey: routingKey, msg: msg})
	return nil
}

func (p *publisherStub) fail(routingKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failKeys[routingKey] = errors.New("broker unavailable")
}

func (p *publisherStub) recover(routingKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failKeys, routingKey)
}

type fixture struct {
	store      *infrastructure.Store
	clock      *testClock
	profiles   *profileStub
	scorer     *scorerStub
	thresholds *ThresholdResolver
	lifecycle  *Lifecycle
	reconciler *Reconciler
	settings   *Settings
	posting    *domain.JobPosting
	draft      *domain.JobPosting
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := infrastructure.OpenDatabase(infrastructure.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "recruitment.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := &fixture{
		store:    infrastructure.NewStore(db),
		clock:    &testClock{t: time.Date(2026, 4, 17, 9, 0, 0, 0, time.UTC)},
		profiles: &profileStub{profiles: map[string]*domain.CandidateProfile{}},
		scorer:   &scorerStub{},
	}
	f.scorer.returns(50)

	defaults := domain.Thresholds{
		AutoAccept:        80,
		AutoReject:        40,
		Review:            60,
		AutoAcceptEnabled: true,
		AutoRejectEnabled: true,
	}
	f.thresholds = NewThresholdResolver(defaults, time.Minute, nil)
	f.lifecycle = NewLifecycle(f.store, f.profiles, f.store, f.store, f.clock.Now, nil)
	f.settings = NewSettings(f.store, f.thresholds, nil)
	f.reconciler = NewReconciler(ReconcilerDeps{
		Store:      f.store,
		Profiles:   f.profiles,
		Postings:   f.store,
		Documents:  f.store,
		Scorer:     f.scorer,
		Thresholds: f.thresholds,
		Timeout:    time.Second,
		Clock:      f.clock.Now,
	})

	ctx := context.Background()
	f.posting = &domain.JobPosting{Title: "Backend Engineer", Department: testDepartment, Status: domain.PostingPublished, Description: "Go services"}
	require.NoError(t, f.store.CreatePosting(ctx, f.posting))
	f.draft = &domain.JobPosting{Title: "Recruiter", Department: "people", Status: domain.PostingDraft, Description: "Hiring"}
	require.NoError(t, f.store.CreatePosting(ctx, f.draft))
	return f
}

func (f *fixture) document(t *testing.T, candidateID string, typ domain.DocumentType) *domain.Document {
	t.Helper()
	doc := &domain.Document{CandidateID: candidateID, Type: typ, Filename: "cv.txt", Text: "Go engineer"}
	require.NoError(t, f.store.CreateDocument(context.Background(), doc))
	return doc
}

// submit creates a SUBMITTED application for a fresh candidate.
func (f *fixture) submit(t *testing.T, candidateID string) *domain.Application {
	t.Helper()
	f.profiles.profiles[candidateID] = completeProfile(candidateID)
	resume := f.document(t, candidateID, domain.DocumentResume)
	app, err := f.lifecycle.Submit(context.Background(), SubmitRequest{
		CandidateID:      candidateID,
		JobPostingID:     f.posting.ID,
		ResumeDocumentID: resume.ID,
	})
	require.NoError(t, err)
	return app
}

func (f *fixture) configure(t *testing.T, department string, accept, reject float64, active bool) {
	t.Helper()
	_, err := f.settings.Upsert(context.Background(), SettingsInput{
		Department:          department,
		AutoAcceptThreshold: accept,
		AutoRejectThreshold: reject,
		ReviewThreshold:     (accept + reject) / 2,
		IsActive:            active,
		IsAutoAcceptEnabled: true,
		IsAutoRejectEnabled: true,
		UpdatedBy:           "admin",
	})
	require.NoError(t, err)
}

func (f *fixture) load(t *testing.T, ref string) *domain.Application {
	t.Helper()
	app, err := f.store.GetApplication(context.Background(), ref)
	require.NoError(t, err)
	return app
}

func transitionsOf(app *domain.Application) [][2]domain.Status {
	out := make([][2]domain.Status, 0, len(app.History))
	for _, h := range app.History {
		out = append(out, [2]domain.Status{h.FromStatus, h.ToStatus})
	}
	return out
}

func eventTypes(events []domain.OutboxEvent) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

// jsonField returns the raw JSON of one top-level field of an outbox payload.
func jsonField(t *testing.T, payload, field string) string {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(payload), &fields))
	raw, ok := fields[field]
	require.True(t, ok, "payload has no field %q", field)
	return string(raw)
}
