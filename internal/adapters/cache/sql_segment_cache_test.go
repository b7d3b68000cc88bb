package cache

import (
	"context"
	"database/sql/driver"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/db/dbtest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var segmentCols = []string{
	"segment_id", "from_location_id", "to_location_id", "distance_km",
	"duration_minutes", "source", "stale", "updated_at",
}

func TestUpsertSegmentIfUnchanged_SkippedWriteIsReported(t *testing.T) {
	read := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var (
		query string
		args  []driver.NamedValue
	)
	db := dbtest.Open(func(_ context.Context, q string, a []driver.NamedValue) (dbtest.Reply, error) {
		query, args = q, a
		// The conflicting row was re-stamped, so the update is skipped.
		return dbtest.Reply{Columns: segmentCols}, nil
	})
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLSegmentCache(db)
	seen := &domain.RoadSegment{FromLocationID: "A", ToLocationID: "B", UpdatedAt: read}

	_, err := s.UpsertSegmentIfUnchanged(context.Background(), domain.RoadSegment{
		FromLocationID: "A", ToLocationID: "B", DistanceKm: 10, Source: domain.SourceProvider, UpdatedAt: read.Add(time.Minute),
	}, seen)
	assert.ErrorIs(t, err, domain.ErrSegmentChanged)

	assert.Contains(t, query, "WHERE road_segments.updated_at = $9 AND road_segments.stale = $10")
	require.Len(t, args, 10)
	assert.Equal(t, read, args[8].Value)
	assert.Equal(t, false, args[9].Value)
}

func TestUpsertSegmentIfUnchanged_NilSeenOnlyInserts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var query string
	db := dbtest.Open(func(_ context.Context, q string, a []driver.NamedValue) (dbtest.Reply, error) {
		query = q
		return dbtest.Reply{Columns: segmentCols, Rows: [][]driver.Value{{
			a[0].Value, "A", "B", 10.0, int64(12), "provider", false, now,
		}}}, nil
	})
	t.Cleanup(func() { _ = db.Close() })

	out, err := NewSQLSegmentCache(db).UpsertSegmentIfUnchanged(context.Background(), domain.RoadSegment{
		FromLocationID: "A", ToLocationID: "B", DistanceKm: 10, Source: domain.SourceProvider, UpdatedAt: now,
	}, nil)
	require.NoError(t, err)

	assert.True(t, strings.Contains(query, "DO NOTHING"))
	assert.NotEmpty(t, out.SegmentID)
	require.NotNil(t, out.DurationMinutes)
	assert.Equal(t, 12, *out.DurationMinutes)
	assert.Equal(t, now, out.UpdatedAt)
}
