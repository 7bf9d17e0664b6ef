package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flanksource/defect-track/models"
)

// ErrDefectNotFound is returned when a fingerprint has no record.
var ErrDefectNotFound = errors.New("defect not found")

// DefectStore persists defect records in SQLite, keyed by fingerprint.
// Records are only ever upserted, never deleted: FIXED records stay
// around as audit history.
type DefectStore struct {
	db *gorm.DB
}

// NewDefectStore creates a store on the shared database instance.
func NewDefectStore() (*DefectStore, error) {
	db, err := GetGormDB()
	if err != nil {
		return nil, fmt.Errorf("failed to open defect database: %w", err)
	}
	return &DefectStore{db: db}, nil
}

// NewDefectStoreWithDB creates a store on an explicit database, used by
// tests and embedders that manage their own instance.
func NewDefectStoreWithDB(db *gorm.DB) *DefectStore {
	return &DefectStore{db: db}
}

// ProjectDefects returns every record of the project, fixed and
// suppressed ones included, ordered by file and line for stable output.
func (s *DefectStore) ProjectDefects(ctx context.Context, project string) ([]models.DefectRecord, error) {
	var records []models.DefectRecord
	err := s.db.WithContext(ctx).
		Where("project = ?", project).
		Order("file_path, line_num").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load defects for %s: %w", project, err)
	}
	return records, nil
}

// Defect returns a single record by fingerprint.
func (s *DefectStore) Defect(ctx context.Context, project, fingerprint string) (*models.DefectRecord, error) {
	var rec models.DefectRecord
	err := s.db.WithContext(ctx).
		Where("project = ? AND fingerprint = ?", project, fingerprint).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDefectNotFound, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load defect %s: %w", fingerprint, err)
	}
	return &rec, nil
}

// UpsertDefects writes the records in one transaction, inserting new
// fingerprints and replacing existing ones. Replaying the same set is a
// no-op, which is what makes scan reconciliation retryable.
func (s *DefectStore) UpsertDefects(ctx context.Context, records []models.DefectRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			UpdateAll: true,
		}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d defects: %w", len(records), err)
	}
	return nil
}

// CountByStatus returns how many records of the project currently carry
// the given flag.
func (s *DefectStore) CountByStatus(ctx context.Context, project string, flag models.Status) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.DefectRecord{}).
		Where("project = ? AND status & ? != 0", project, int(flag)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count defects for %s: %w", project, err)
	}
	return count, nil
}
