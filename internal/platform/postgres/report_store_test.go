package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/platform/postgres"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*postgres.ReportStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return postgres.NewReportStore(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func completedReport(t *testing.T) *domain.Report {
	t.Helper()

	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r, err := domain.RestoreReport(domain.ReportSnapshot{
		SN:        "11111111-2222-3333-4444-555555555555",
		OwnerID:   "owner-1",
		Kind:      domain.ReportKindArtifact,
		State:     domain.ReportStateCompleted,
		Finished:  true,
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
		Recognition: &domain.RecognizedArtifact{
			Label:        "tongue",
			Observations: []domain.Observation{{Name: "coating", Value: "thick", Confidence: 0.8}},
		},
		Features: &domain.ScoredFeatures{Scores: []domain.FeatureScore{
			{Name: "dampness", Title: "Dampness", Score: 62, Level: "moderate"},
			{Name: "heat", Score: 20, Level: "low"},
		}},
		Narrative: "Some dampness.",
		Content:   "# Artifact Report\n",
	})
	require.NoError(t, err)
	return r
}

func TestReportStore_Save(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	r := completedReport(t)
	snap := r.Snapshot()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reports")).
		WithArgs(snap.SN, "owner-1", "artifact", "completed", true,
			sqlmock.AnyArg(), "Some dampness.", "# Artifact Report\n", snap.CreatedAt, snap.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_features")).
		WithArgs(snap.SN).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_features")).
		WithArgs(snap.SN, 0, "dampness", "Dampness", float64(62), "moderate", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_features")).
		WithArgs(snap.SN, 1, "heat", "", float64(20), "low", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStore_SaveRollsBackOnError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	r := completedReport(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reports")).
		WillReturnError(newPgError("23514"))
	mock.ExpectRollback()

	err := s.Save(context.Background(), r)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)

	var storeErr *store.OpError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "save", storeErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStore_Get(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	want := completedReport(t).Snapshot()

	mock.ExpectQuery(regexp.QuoteMeta("FROM reports")).
		WithArgs(want.SN).
		WillReturnRows(sqlmock.NewRows([]string{
			"sn", "owner_id", "kind", "state", "finished", "recognition",
			"narrative", "content", "created_at", "updated_at",
		}).AddRow(
			want.SN, want.OwnerID, "artifact", "completed", true,
			[]byte(`{"label":"tongue","observations":[{"name":"coating","value":"thick","confidence":0.8}]}`),
			want.Narrative, want.Content, want.CreatedAt, want.UpdatedAt,
		))
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_features")).
		WithArgs(want.SN).
		WillReturnRows(sqlmock.NewRows([]string{"name", "title", "score", "level", "description"}).
			AddRow("dampness", "Dampness", 62.0, "moderate", "").
			AddRow("heat", "", 20.0, "low", ""))

	got, err := s.Get(context.Background(), want.SN)
	require.NoError(t, err)
	assert.Equal(t, want, got.Snapshot())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStore_GetNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reports")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrReportNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestReportStore_GetQueryError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reports")).
		WillReturnError(errors.New("connection reset"))

	_, err := s.Get(context.Background(), "sn")
	require.Error(t, err)
	assert.False(t, store.IsNotFoundError(err))
}

func TestMigrationFiles(t *testing.T) {
	t.Parallel()

	files, err := postgres.MigrationFiles()
	require.NoError(t, err)
	assert.Contains(t, files, "00001_create_reports.sql")
}

func TestMigrate_UnknownCommand(t *testing.T) {
	t.Parallel()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	err = postgres.Migrate(context.Background(), db, "sideways", nil)
	assert.ErrorContains(t, err, "unknown migration command")
}
