package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IndexingReport records the outcome of one indexing run or listing request.
type IndexingReport struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// ReportUUID is the externally visible report reference.
	ReportUUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_indexing_reports_uuid" json:"reportUuid"`

	Kind   string `gorm:"type:varchar(32);not null;index:idx_indexing_reports_kind" json:"kind"` // 'index_genomes', 'index_taxa', 'index_docs', 'listing'
	Core   string `gorm:"type:varchar(255);not null;index:idx_indexing_reports_core" json:"core"`
	Status string `gorm:"type:varchar(20);not null;index:idx_indexing_reports_status" json:"status"`

	// Counts, failures and listing window as JSON documents.
	Counts   JSON `gorm:"type:jsonb" json:"counts,omitempty"`
	Failures JSON `gorm:"type:jsonb" json:"failures,omitempty"`
	Listing  JSON `gorm:"type:jsonb" json:"listing,omitempty"`

	FailureCount int `gorm:"not null;default:0" json:"failureCount"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name.
func (IndexingReport) TableName() string {
	return "indexing_reports"
}

// BeforeCreate hook to ensure required fields.
func (r *IndexingReport) BeforeCreate(tx *gorm.DB) error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Kind, validation.Required, validation.In("index_genomes", "index_taxa", "index_docs", "listing")),
		validation.Field(&r.Core, validation.Required),
		validation.Field(&r.Status, validation.Required),
	); err != nil {
		return fmt.Errorf("invalid indexing report: %w", err)
	}
	if r.ReportUUID == uuid.Nil {
		r.ReportUUID = uuid.New()
	}
	return nil
}

// GetIndexingReportByUUID retrieves a report by its reference.
func GetIndexingReportByUUID(db *gorm.DB, id uuid.UUID) (*IndexingReport, error) {
	var r IndexingReport
	if err := db.Where("report_uuid = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListIndexingReports returns the most recent reports, optionally for one
// core only.
func ListIndexingReports(db *gorm.DB, core string, limit int) ([]IndexingReport, error) {
	var reports []IndexingReport
	query := db.Order("created_at DESC, id DESC").Limit(limit)
	if core != "" {
		query = query.Where("core = ?", core)
	}
	err := query.Find(&reports).Error
	return reports, err
}

// DeleteIndexingReportsBefore removes reports created before cutoff and
// returns how many were removed.
func DeleteIndexingReportsBefore(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Where("created_at < ?", cutoff).Delete(&IndexingReport{})
	return result.RowsAffected, result.Error
}
