package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flanksource/defect-track/models"
)

var (
	gormInstance *gorm.DB
	gormOnce     sync.Once
	gormMutex    sync.RWMutex
)

// GetGormDB returns the singleton GORM database instance
func GetGormDB() (*gorm.DB, error) {
	var err error
	gormOnce.Do(func() {
		gormInstance, err = newGormDB()
	})
	if err != nil {
		return nil, err
	}
	return gormInstance, nil
}

// ResetGormDB resets the singleton instance (mainly for testing)
func ResetGormDB() {
	gormMutex.Lock()
	defer gormMutex.Unlock()

	if gormInstance != nil {
		sqlDB, _ := gormInstance.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		gormInstance = nil
	}
	gormOnce = sync.Once{}
}

func newGormDB() (*gorm.DB, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".cache", "defect-track")
	return NewGormDBWithPath(dataDir)
}

// NewGormDBWithPath creates a new GORM database instance in the specified directory
func NewGormDBWithPath(dataDir string) (*gorm.DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "defects.db")

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Reduce log noise
	}

	// Use the pure-Go modernc.org/sqlite driver (registered as "sqlite"
	// via the blank import in scan_stats.go); the default mattn driver
	// requires cgo, which is disabled for this build.
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dbPath}), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database with GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure SQLite for better concurrency
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := db.AutoMigrate(&models.DefectRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	return db, nil
}
