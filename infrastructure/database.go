package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"recruitment/domain"
)

// OpenDatabase connects to MySQL or SQLite, migrates the schema and seeds postings when empty.
func OpenDatabase(cfg DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	logger = orNop(logger)

	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DSN), gcfg)
	case "sqlite":
		db, err = openSQLite(cfg.DSN, gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Seed {
		if err := seedPostings(db, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("connected to database and migrated schema", zap.String("driver", cfg.Driver))
	return db, nil
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.JobPosting{},
		&domain.Document{},
		&domain.Application{},
		&domain.StatusHistoryEntry{},
		&domain.Evaluation{},
		&domain.AISettings{},
		&domain.OutboxEvent{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func seedPostings(db *gorm.DB, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&domain.JobPosting{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count job postings: %w", err)
	}
	if count > 0 {
		return nil
	}

	postings := []domain.JobPosting{
		{
			Title:      "Backend Engineer",
			Department: "engineering",
			Status:     domain.PostingPublished,
			Description: "Backend engineer with focus on Go, MySQL, RabbitMQ and AI/LLM integration. " +
				"Experience with RESTful APIs, database management and cloud technologies is required.",
			Rubric: `{"technical_skills":40,"experience":25,"achievements":20,"cultural_fit":15}`,
		},
		{
			Title:       "Talent Acquisition Partner",
			Department:  "people",
			Status:      domain.PostingDraft,
			Description: "Own the hiring pipeline for engineering and product roles.",
			Rubric:      `{"experience":40,"communication":40,"cultural_fit":20}`,
		},
	}
	if err := db.Create(&postings).Error; err != nil {
		return fmt.Errorf("seed job postings: %w", err)
	}

	logger.Info("seeded initial job postings", zap.Int("count", len(postings)))
	return nil
}
