//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/platform/postgres"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/phrazzld/scry-reports/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStore_Integration(t *testing.T) {
	db := testdb.Open(t)
	s := postgres.NewReportStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	snap := domain.ReportSnapshot{
		SN:        uuid.NewString(),
		OwnerID:   "owner-integration",
		Kind:      domain.ReportKindQuestionnaire,
		State:     domain.ReportStateCompleted,
		Finished:  true,
		CreatedAt: now,
		UpdatedAt: now,
		Features: &domain.ScoredFeatures{Scores: []domain.FeatureScore{
			{Name: "dampness", Title: "Dampness", Score: 40, Level: "moderate"},
		}},
		Narrative: "Mild dampness.",
		Content:   "# Questionnaire Report\n",
	}
	t.Cleanup(func() {
		testdb.Exec(t, db, "DELETE FROM reports WHERE sn = '"+snap.SN+"'")
	})

	r, err := domain.RestoreReport(snap)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, r))

	// saving again replaces the feature rows instead of duplicating them
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, snap.SN)
	require.NoError(t, err)
	gotSnap := got.Snapshot()
	assert.Equal(t, snap.OwnerID, gotSnap.OwnerID)
	assert.Equal(t, domain.ReportStateCompleted, gotSnap.State)
	assert.True(t, gotSnap.Finished)
	require.NotNil(t, gotSnap.Features)
	assert.Len(t, gotSnap.Features.Scores, 1)
	assert.Equal(t, snap.Narrative, gotSnap.Narrative)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrReportNotFound)
}
