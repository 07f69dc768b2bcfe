package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tgvault/tgvault/internal/models"
)

// DB is the global database instance
var DB *gorm.DB

// Initialize opens the database and runs migrations. A DATABASE_URL selects
// postgres; otherwise a local sqlite file is used.
func Initialize(databaseURL, sqlitePath string) error {
	var dialector gorm.Dialector

	if databaseURL != "" {
		// Some providers hand out postgres:// URLs; the pgx driver wants postgresql://
		if strings.HasPrefix(databaseURL, "postgres://") {
			databaseURL = "postgresql://" + strings.TrimPrefix(databaseURL, "postgres://")
		}
		dialector = postgres.Open(databaseURL)
	} else {
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.File{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	DB = db
	return nil
}

// Close closes the underlying database connection.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
