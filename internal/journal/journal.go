// Package journal persists a record of patch negotiations to a local sqlite
// database for operator telemetry. It never feeds back into the negotiation
// itself; losing it costs history, not correctness.
package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PatchRequestRecord is one row per patch request the gateway answered.
type PatchRequestRecord struct {
	ID              uint64 `gorm:"primaryKey"`
	RemoteAddr      string
	ReportedVersion int
	TargetVersion   int
	ChangeCount     int
	UpToDate        bool
	CreatedAt       time.Time
}

// Journal wraps the request history database.
type Journal struct {
	db *gorm.DB
}

// Open creates or opens the sqlite journal at filename and runs migrations.
func Open(filename string, debug bool) (*Journal, error) {
	// By default only log errors but enable full SQL query prints with debug mode.
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error opening journal database: %w", err)
	}

	if err := db.AutoMigrate(&PatchRequestRecord{}); err != nil {
		return nil, fmt.Errorf("error auto migrating journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	database, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("error getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error closing journal database: %w", err)
	}
	return nil
}

// RecordPatchRequest persists one negotiation outcome.
func (j *Journal) RecordPatchRequest(record *PatchRequestRecord) error {
	return j.db.Create(record).Error
}

// RecentRequests returns up to limit records, newest first.
func (j *Journal) RecentRequests(limit int) ([]PatchRequestRecord, error) {
	var records []PatchRequestRecord
	err := j.db.Order("id desc").Limit(limit).Find(&records).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return records, nil
}

// CountByTargetVersion returns how many requests each target version has
// served, keyed by version identifier.
func (j *Journal) CountByTargetVersion() (map[int]int64, error) {
	type row struct {
		TargetVersion int
		Total         int64
	}
	var rows []row
	err := j.db.Model(&PatchRequestRecord{}).
		Select("target_version, count(*) as total").
		Group("target_version").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int64, len(rows))
	for _, r := range rows {
		counts[r.TargetVersion] = r.Total
	}
	return counts, nil
}
