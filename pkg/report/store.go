package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/kbase/kbsolrutil/pkg/models"
)

// Store persists reports in a relational database.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewStore creates a store, migrating the reports table.
func NewStore(db *gorm.DB, logger hclog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return nil, fmt.Errorf("failed to migrate report tables: %w", err)
	}
	return &Store{db: db, logger: logger.Named("report-store")}, nil
}

// Publish implements Sink. The reference is the report UUID.
func (s *Store) Publish(ctx context.Context, r *Report) (string, error) {
	row, err := toModel(r)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	ref := row.ReportUUID.String()
	s.logger.Debug("saved report", "ref", ref, "kind", r.Kind, "core", r.Core)
	return ref, nil
}

// Prune deletes reports older than retention. Reports only refer to index
// runs, never to indexed documents, so pruning leaves the cores untouched.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := models.DeleteIndexingReportsBefore(s.db.WithContext(ctx), time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned reports", "deleted", n, "retention", retention)
	}
	return n, nil
}

// Get loads a report by reference.
func (s *Store) Get(ctx context.Context, ref string) (*Report, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid report reference %q: %w", ref, err)
	}
	row, err := models.GetIndexingReportByUUID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", ref, err)
	}
	return fromModel(row)
}

func toModel(r *Report) (*models.IndexingReport, error) {
	row := &models.IndexingReport{
		Kind:         string(r.Kind),
		Core:         r.Core,
		Status:       r.Status,
		FailureCount: len(r.Failures),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}

	var err error
	if row.Counts, err = marshal(r.Counts); err != nil {
		return nil, err
	}
	if len(r.Failures) > 0 {
		if row.Failures, err = marshal(r.Failures); err != nil {
			return nil, err
		}
	}
	if r.Listing != nil {
		if row.Listing, err = marshal(r.Listing); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func fromModel(row *models.IndexingReport) (*Report, error) {
	r := &Report{
		Kind:       Kind(row.Kind),
		Core:       row.Core,
		Status:     row.Status,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if err := unmarshal(row.Counts, &r.Counts); err != nil {
		return nil, err
	}
	if err := unmarshal(row.Failures, &r.Failures); err != nil {
		return nil, err
	}
	if err := unmarshal(row.Listing, &r.Listing); err != nil {
		return nil, err
	}
	return r, nil
}

func marshal(v any) (models.JSON, error) {
	j, err := models.NewJSON(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return j, nil
}

func unmarshal(j models.JSON, v any) error {
	if err := j.Decode(v); err != nil {
		return fmt.Errorf("failed to decode report: %w", err)
	}
	return nil
}
