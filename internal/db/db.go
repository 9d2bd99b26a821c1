package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"care-pulse-backend/config"
	"care-pulse-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Zero means "not configured", not "no pooling": SetMaxIdleConns(0)
	// would close every connection the moment it goes idle, which tears
	// down shared in-memory sqlite databases between statements.
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.User{},
		&model.LogEntry{},
		&model.CarePulseDetail{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			log.Printf("Warning: failed to apply some postgres DDL: %v. Continuing without them.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// applyPostgresDDL adds indexes the escalation scan relies on. The partial
// index covers exactly the rows the poller's conditional update touches.
func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		// Effective-time ordering used by the recent-logs projection.
		"CREATE INDEX IF NOT EXISTS idx_log_entries_user_effective ON log_entries " +
			"(user_id, COALESCE(occurred_at, created_at) DESC) WHERE log_type = 'care_pulse';",

		// Unescalated care pulses only; the poller predicate prunes on this.
		"CREATE INDEX IF NOT EXISTS idx_log_entries_unescalated ON log_entries (user_id) " +
			"WHERE log_type = 'care_pulse' " +
			"AND COALESCE((metadata ->> 'requires_immediate_action')::boolean, false) = false;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
