package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/models"
)

const appDirName = "claygrounds-desktop"

// Init opens the local store and runs auto-migration. An empty URL stores a
// SQLite file under the user config directory; postgres:// URLs are accepted
// for shared installs.
func Init(cfg config.DatabaseConfig, debug bool, log *logrus.Entry) (*gorm.DB, error) {
	log = log.WithField("svc", "database")

	dialector, err := dialectorFor(cfg.URL, log)
	if err != nil {
		return nil, err
	}

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Warn)
	if debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.WithFields(logrus.Fields{
		"max_open":     cfg.MaxOpenConns,
		"max_idle":     cfg.MaxIdleConns,
		"max_lifetime": cfg.ConnMaxLifetime,
	}).Debug("Database connection pool configured")

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	log.Info("Database initialized successfully")
	return db, nil
}

func dialectorFor(databaseURL string, log *logrus.Entry) (gorm.Dialector, error) {
	switch {
	case databaseURL == "":
		path, err := defaultSQLitePath()
		if err != nil {
			return nil, err
		}
		log.Infof("Using database at: %s", path)
		return sqlite.Open(path), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "postgresql://"), strings.HasPrefix(databaseURL, "postgres://"):
		return postgres.Open(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported database URL format: %s", databaseURL)
	}
}

func defaultSQLitePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	appDir := filepath.Join(configDir, appDirName)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return filepath.Join(appDir, "claygrounds.db"), nil
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ProgressSummary{},
		&models.SavedCredentials{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
