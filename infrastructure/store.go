package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recruitment/domain"
)

// Store is the gorm-backed repository. A Store obtained inside Transaction is bound
// to that transaction; every write made through it commits or rolls back together.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and tooling.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn in one database transaction. Returning an error rolls back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error, entity string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError(entity, key)
	}
	return fmt.Errorf("load %s %v: %w", entity, key, err)
}

func orderedHistory(db *gorm.DB) *gorm.DB {
	return db.Order("changed_at ASC, id ASC")
}

// ApplicationExists reports whether the candidate already applied to the posting.
func (s *Store) ApplicationExists(ctx context.Context, candidateID string, postingID uint) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&domain.Application{}).
		Where("candidate_id = ? AND job_posting_id = ?", candidateID, postingID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check existing application: %w", err)
	}
	return count > 0, nil
}

// CreateApplication inserts a new application row.
func (s *Store) CreateApplication(ctx context.Context, app *domain.Application) error {
	err := s.conn(ctx).Omit(clause.Associations).Create(app).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.NewValidationError("job_posting_id",
			"candidate %s already applied to posting %d", app.CandidateID, app.JobPostingID)
	}
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetApplication loads an application and its history by reference code.
func (s *Store) GetApplication(ctx context.Context, ref string) (*domain.Application, error) {
	var app domain.Application
	err := s.conn(ctx).Preload("History", orderedHistory).
		First(&app, "reference_code = ?", ref).Error
	if err != nil {
		return nil, notFound(err, "application", ref)
	}
	return &app, nil
}

// GetApplicationByID loads an application and its history by surrogate id.
func (s *Store) GetApplicationByID(ctx context.Context, id uint) (*domain.Application, error) {
	var app domain.Application
	err := s.conn(ctx).Preload("History", orderedHistory).First(&app, id).Error
	if err != nil {
		return nil, notFound(err, "application", id)
	}
	return &app, nil
}

// LockApplication loads an application with a row lock held until the transaction ends.
// On SQLite the lock clause is ignored and the single-writer database serializes instead.
func (s *Store) LockApplication(ctx context.Context, ref string) (*domain.Application, error) {
	var app domain.Application
	err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("History", orderedHistory).
		First(&app, "reference_code = ?", ref).Error
	if err != nil {
		return nil, notFound(err, "application", ref)
	}
	return &app, nil
}

// SaveApplication writes the mutable columns guarded by the version column and appends
// pending history entries. A stale version returns domain.ErrConflict.
func (s *Store) SaveApplication(ctx context.Context, app *domain.Application, now time.Time) error {
	res := s.conn(ctx).Model(&domain.Application{}).
		Where("id = ? AND version = ?", app.ID, app.Version).
		Updates(map[string]any{
			"status":                 app.Status,
			"ai_score":               app.AIScore,
			"ai_processed":           app.AIProcessed,
			"auto_decision":          app.AutoDecision,
			"is_shortlisted":         app.IsShortlisted,
			"interview_id":           app.InterviewID,
			"last_status_changed_at": app.LastStatusChangedAt,
			"last_status_changed_by": app.LastStatusChangedBy,
			"processed_at":           app.ProcessedAt,
			"version":                app.Version + 1,
			"updated_at":             now,
		})
	if res.Error != nil {
		return fmt.Errorf("update application %s: %w", app.ReferenceCode, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update application %s: %w", app.ReferenceCode, domain.ErrConflict)
	}

	if entries := app.PendingHistory(); len(entries) > 0 {
		if err := s.conn(ctx).Create(&entries).Error; err != nil {
			return fmt.Errorf("append status history: %w", err)
		}
	}

	app.Version++
	app.UpdatedAt = now
	app.MarkPersisted()
	return nil
}

// AppendEvents serializes domain events into the outbox table.
func (s *Store) AppendEvents(ctx context.Context, events []domain.DomainEvent, now time.Time) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]domain.OutboxEvent, 0, len(events))
	for _, evt := range events {
		row, err := domain.NewOutboxEvent(evt, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := s.conn(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}

// ClaimOutbox leases up to limit unprocessed events to owner, oldest first. Rows
// leased by another owner are skipped until their lease expires.
func (s *Store) ClaimOutbox(ctx context.Context, owner string, limit int, leaseTTL time.Duration, now time.Time) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("claim limit must be greater than zero")
	}

	var claimed []domain.OutboxEvent
	err := s.Transaction(ctx, func(tx *Store) error {
		var ids []uint
		err := tx.conn(ctx).Model(&domain.OutboxEvent{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("processed = ?", false).
			Where("(lease_until IS NULL OR lease_until < ?)", now).
			Order("creation_time ASC, id ASC").
			Limit(limit).
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("select claimable events: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		err = tx.conn(ctx).Model(&domain.OutboxEvent{}).
			Where("id IN ?", ids).
			Where("processed = ?", false).
			Where("(lease_until IS NULL OR lease_until < ?)", now).
			Updates(map[string]any{
				"lease_owner": owner,
				"lease_until": now.Add(leaseTTL),
			}).Error
		if err != nil {
			return fmt.Errorf("lease events: %w", err)
		}

		return tx.conn(ctx).
			Where("id IN ? AND lease_owner = ?", ids, owner).
			Order("creation_time ASC, id ASC").
			Find(&claimed).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	return claimed, nil
}

// ReleaseOutbox clears the lease of unprocessed events still held by owner.
func (s *Store) ReleaseOutbox(ctx context.Context, owner string, ids []uint) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.conn(ctx).Model(&domain.OutboxEvent{}).
		Where("id IN ? AND lease_owner = ? AND processed = ?", ids, owner, false).
		Updates(map[string]any{"lease_owner": nil, "lease_until": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("release outbox leases: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// SaveOutboxResult persists the delivery outcome of one event.
func (s *Store) SaveOutboxResult(ctx context.Context, evt *domain.OutboxEvent) error {
	err := s.conn(ctx).Model(evt).
		Select("processed", "retry_count", "processed_at", "error_message", "lease_owner", "lease_until").
		Updates(evt).Error
	if err != nil {
		return fmt.Errorf("save outbox event %d: %w", evt.ID, err)
	}
	return nil
}

// GetOutboxEvent loads one outbox row.
func (s *Store) GetOutboxEvent(ctx context.Context, id uint) (*domain.OutboxEvent, error) {
	var evt domain.OutboxEvent
	if err := s.conn(ctx).First(&evt, id).Error; err != nil {
		return nil, notFound(err, "outbox event", id)
	}
	return &evt, nil
}

// ListOutbox returns events for an aggregate in creation order.
func (s *Store) ListOutbox(ctx context.Context, aggregateID string) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	err := s.conn(ctx).Where("aggregate_id = ?", aggregateID).
		Order("creation_time ASC, id ASC").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list outbox for %s: %w", aggregateID, err)
	}
	return events, nil
}

// DeadLettered returns events that stopped retrying after maxRetries failures.
func (s *Store) DeadLettered(ctx context.Context, maxRetries, limit int) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	err := s.conn(ctx).
		Where("processed = ? AND retry_count >= ? AND error_message IS NOT NULL", true, maxRetries).
		Order("creation_time DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list dead-lettered events: %w", err)
	}
	return events, nil
}

// PendingOutboxCount counts undelivered events.
func (s *Store) PendingOutboxCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&domain.OutboxEvent{}).Where("processed = ?", false).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return count, nil
}

// GetEvaluation loads the evaluation of an application.
func (s *Store) GetEvaluation(ctx context.Context, applicationID uint) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	if err := s.conn(ctx).First(&eval, "application_id = ?", applicationID).Error; err != nil {
		return nil, notFound(err, "evaluation", applicationID)
	}
	return &eval, nil
}

// SaveEvaluation inserts a new evaluation or updates the existing row in place.
func (s *Store) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	var err error
	if eval.ID == 0 {
		err = s.conn(ctx).Create(eval).Error
	} else {
		err = s.conn(ctx).Save(eval).Error
	}
	if err != nil {
		return fmt.Errorf("save evaluation for application %d: %w", eval.ApplicationID, err)
	}
	return nil
}

// GetSettings loads AI settings for a department.
func (s *Store) GetSettings(ctx context.Context, department string) (*domain.AISettings, error) {
	var settings domain.AISettings
	if err := s.conn(ctx).First(&settings, "department = ?", department).Error; err != nil {
		return nil, notFound(err, "ai settings", department)
	}
	return &settings, nil
}

// LockSettings loads AI settings for a department with a row lock.
func (s *Store) LockSettings(ctx context.Context, department string) (*domain.AISettings, error) {
	var settings domain.AISettings
	err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&settings, "department = ?", department).Error
	if err != nil {
		return nil, notFound(err, "ai settings", department)
	}
	return &settings, nil
}

// SaveSettings validates and writes department settings.
func (s *Store) SaveSettings(ctx context.Context, settings *domain.AISettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	var err error
	if settings.ID == 0 {
		err = s.conn(ctx).Create(settings).Error
	} else {
		err = s.conn(ctx).Save(settings).Error
	}
	if err != nil {
		return fmt.Errorf("save ai settings for %s: %w", settings.Department, err)
	}
	return nil
}

// ListSettings returns settings of all departments ordered by name.
func (s *Store) ListSettings(ctx context.Context) ([]domain.AISettings, error) {
	var settings []domain.AISettings
	if err := s.conn(ctx).Order("department ASC").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("list ai settings: %w", err)
	}
	return settings, nil
}

// DepartmentOutcomes aggregates AI scores of evaluated applications by outcome.
func (s *Store) DepartmentOutcomes(ctx context.Context, department string) (domain.OutcomeStats, error) {
	var rows []struct {
		Status domain.Status
		Mean   float64
		Count  int64
	}
	err := s.conn(ctx).Model(&domain.Application{}).
		Select("status, AVG(ai_score) AS mean, COUNT(*) AS count").
		Where("department = ? AND ai_processed = ? AND ai_score IS NOT NULL", department, true).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return domain.OutcomeStats{}, fmt.Errorf("aggregate outcomes for %s: %w", department, err)
	}

	stats := domain.OutcomeStats{Department: department}
	for _, r := range rows {
		stats.Add(r.Status, r.Mean, r.Count)
	}
	return stats, nil
}

// GetPosting loads a job posting.
func (s *Store) GetPosting(ctx context.Context, id uint) (*domain.JobPosting, error) {
	var posting domain.JobPosting
	if err := s.conn(ctx).First(&posting, id).Error; err != nil {
		return nil, notFound(err, "job posting", id)
	}
	return &posting, nil
}

// CreatePosting inserts a job posting.
func (s *Store) CreatePosting(ctx context.Context, posting *domain.JobPosting) error {
	if err := s.conn(ctx).Create(posting).Error; err != nil {
		return fmt.Errorf("create job posting: %w", err)
	}
	return nil
}

// GetDocument loads an uploaded document.
func (s *Store) GetDocument(ctx context.Context, id uint) (*domain.Document, error) {
	var doc domain.Document
	if err := s.conn(ctx).First(&doc, id).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &doc, nil
}

// CreateDocument inserts an uploaded document.
func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if err := s.conn(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}
