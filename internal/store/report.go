package store

import (
	"context"

	"github.com/phrazzld/scry-reports/internal/domain"
)

// ReportStore persists reports keyed by sn.
type ReportStore interface {
	// Save writes the report. It is an idempotent upsert: saving the same sn
	// again replaces the stored copy.
	Save(ctx context.Context, report *domain.Report) error

	// Get loads a report by sn.
	// Returns ErrReportNotFound if no report with that sn was saved.
	Get(ctx context.Context, sn string) (*domain.Report, error)
}
