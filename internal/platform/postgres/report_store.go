package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/platform/logger"
	"github.com/phrazzld/scry-reports/internal/store"
)

// ReportStore implements store.ReportStore. A report row and its feature
// rows are written in one transaction.
type ReportStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates a report store. If logger is nil, slog.Default is used.
func NewReportStore(db *sql.DB, l *slog.Logger) *ReportStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if l == nil {
		l = slog.Default()
	}
	return &ReportStore{db: db, logger: l.With("component", "report_store")}
}

const upsertReportQuery = `
	INSERT INTO reports (sn, owner_id, kind, state, finished, recognition, narrative, content, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (sn) DO UPDATE SET
		state = EXCLUDED.state,
		finished = EXCLUDED.finished,
		recognition = EXCLUDED.recognition,
		narrative = EXCLUDED.narrative,
		content = EXCLUDED.content,
		updated_at = EXCLUDED.updated_at
`

const deleteFeaturesQuery = `DELETE FROM report_features WHERE report_sn = $1`

const insertFeatureQuery = `
	INSERT INTO report_features (report_sn, position, name, title, score, level, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Save upserts the report by sn and replaces its feature rows.
func (s *ReportStore) Save(ctx context.Context, r *domain.Report) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	snap := r.Snapshot()

	recognition, err := marshalNullable(snap.Recognition)
	if err != nil {
		return store.WrapOp("save", snap.SN, fmt.Errorf("failed to encode recognition: %w", err))
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertReportQuery,
			snap.SN,
			snap.OwnerID,
			string(snap.Kind),
			string(snap.State),
			snap.Finished,
			recognition,
			snap.Narrative,
			snap.Content,
			snap.CreatedAt,
			snap.UpdatedAt,
		); err != nil {
			return MapError(err)
		}

		if _, err := tx.ExecContext(ctx, deleteFeaturesQuery, snap.SN); err != nil {
			return MapError(err)
		}

		if snap.Features == nil {
			return nil
		}
		for i, f := range snap.Features.Scores {
			if _, err := tx.ExecContext(ctx, insertFeatureQuery,
				snap.SN, i, f.Name, f.Title, f.Score, f.Level, f.Description,
			); err != nil {
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to save report", "sn", snap.SN, "error", err)
		return store.WrapOp("save", snap.SN, err)
	}

	log.Debug("report saved", "sn", snap.SN, "state", snap.State)
	return nil
}

const getReportQuery = `
	SELECT sn, owner_id, kind, state, finished, recognition, narrative, content, created_at, updated_at
	FROM reports
	WHERE sn = $1
`

const getFeaturesQuery = `
	SELECT name, title, score, level, description
	FROM report_features
	WHERE report_sn = $1
	ORDER BY position
`

// Get loads a report and its features. Returns store.ErrReportNotFound for
// an unknown sn.
func (s *ReportStore) Get(ctx context.Context, sn string) (*domain.Report, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		snap        domain.ReportSnapshot
		kind, state string
		recognition []byte
	)
	err := s.db.QueryRowContext(ctx, getReportQuery, sn).Scan(
		&snap.SN,
		&snap.OwnerID,
		&kind,
		&state,
		&snap.Finished,
		&recognition,
		&snap.Narrative,
		&snap.Content,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("report not found", "sn", sn)
			return nil, store.ErrReportNotFound
		}
		log.Error("failed to load report", "sn", sn, "error", err)
		return nil, store.WrapOp("get", sn, MapError(err))
	}
	snap.Kind = domain.ReportKind(kind)
	snap.State = domain.ReportState(state)

	if len(recognition) > 0 {
		snap.Recognition = &domain.RecognizedArtifact{}
		if err := json.Unmarshal(recognition, snap.Recognition); err != nil {
			return nil, store.WrapOp("get", sn, fmt.Errorf("%w: recognition: %w", store.ErrInvalidEntity, err))
		}
	}

	features, err := s.features(ctx, sn)
	if err != nil {
		return nil, store.WrapOp("get", sn, err)
	}
	snap.Features = features

	r, err := domain.RestoreReport(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	return r, nil
}

func (s *ReportStore) features(ctx context.Context, sn string) (*domain.ScoredFeatures, error) {
	rows, err := s.db.QueryContext(ctx, getFeaturesQuery, sn)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scores []domain.FeatureScore
	for rows.Next() {
		var f domain.FeatureScore
		if err := rows.Scan(&f.Name, &f.Title, &f.Score, &f.Level, &f.Description); err != nil {
			return nil, err
		}
		scores = append(scores, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(scores) == 0 {
		return nil, nil
	}
	return &domain.ScoredFeatures{Scores: scores}, nil
}

func marshalNullable(v *domain.RecognizedArtifact) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
