package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/obs"
	"strings"

	"github.com/google/uuid"
)

// SQLSegmentCache is a Postgres-backed store of directed road segments.
type SQLSegmentCache struct {
	DB *sql.DB
}

func NewSQLSegmentCache(db *sql.DB) *SQLSegmentCache {
	return &SQLSegmentCache{DB: db}
}

const segmentColumns = `segment_id, from_location_id, to_location_id, distance_km,
	duration_minutes, source, stale, updated_at`

// Fetch the entry for one ordered pair.
func (s *SQLSegmentCache) GetSegment(
	ctx context.Context,
	fromLocationID, toLocationID string,
) (_ *domain.RoadSegment, err error) {
	defer obs.Time(ctx, "segment.cache.GetSegment")(&err)

	if s.DB == nil {
		return nil, errors.New("segment cache: db is nil")
	}

	q := `SELECT ` + segmentColumns + `
	FROM road_segments
	WHERE from_location_id = $1 AND to_location_id = $2;
	`

	seg, err := scanSegment(s.DB.QueryRowContext(ctx, q, fromLocationID, toLocationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment %s->%s: %w", fromLocationID, toLocationID, err)
	}
	return seg, nil
}

// Insert or refresh the entry for an ordered pair. The segment id of an
// existing row is kept and stale is cleared unless the caller sets it.
func (s *SQLSegmentCache) UpsertSegment(
	ctx context.Context,
	seg domain.RoadSegment,
) (_ *domain.RoadSegment, err error) {
	defer obs.Time(ctx, "segment.cache.UpsertSegment")(&err)

	q := `
	INSERT INTO road_segments (` + segmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	ON CONFLICT (from_location_id, to_location_id) DO UPDATE
	SET ` + segmentUpdateSet + `
	RETURNING ` + segmentColumns + `;
	`

	return s.upsert(ctx, q, seg)
}

// Same as UpsertSegment, but only while the row still carries the
// updated_at and stale flag of seen. A nil seen only inserts.
func (s *SQLSegmentCache) UpsertSegmentIfUnchanged(
	ctx context.Context,
	seg domain.RoadSegment,
	seen *domain.RoadSegment,
) (_ *domain.RoadSegment, err error) {
	defer obs.Time(ctx, "segment.cache.UpsertSegmentIfUnchanged")(&err)

	if seen == nil {
		q := `
		INSERT INTO road_segments (` + segmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		ON CONFLICT (from_location_id, to_location_id) DO NOTHING
		RETURNING ` + segmentColumns + `;
		`
		return s.upsert(ctx, q, seg)
	}

	q := `
	INSERT INTO road_segments (` + segmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	ON CONFLICT (from_location_id, to_location_id) DO UPDATE
	SET ` + segmentUpdateSet + `
	WHERE road_segments.updated_at = $9 AND road_segments.stale = $10
	RETURNING ` + segmentColumns + `;
	`
	return s.upsert(ctx, q, seg, seen.UpdatedAt, seen.Stale)
}

const segmentUpdateSet = `distance_km = EXCLUDED.distance_km,
		duration_minutes = EXCLUDED.duration_minutes,
		source = EXCLUDED.source,
		stale = EXCLUDED.stale,
		updated_at = EXCLUDED.updated_at`

// upsert runs q with the segment as $1..$8 followed by extra. A skipped
// conflicting write returns no row and maps to domain.ErrSegmentChanged.
func (s *SQLSegmentCache) upsert(ctx context.Context, q string, seg domain.RoadSegment, extra ...any) (*domain.RoadSegment, error) {
	if s.DB == nil {
		return nil, errors.New("segment cache: db is nil")
	}

	if strings.TrimSpace(seg.FromLocationID) == "" || strings.TrimSpace(seg.ToLocationID) == "" {
		return nil, errors.New("upsert segment: location ids must not be empty")
	}

	if seg.SegmentID == "" {
		seg.SegmentID = uuid.NewString()
	}

	var updatedAt any
	if !seg.UpdatedAt.IsZero() {
		updatedAt = seg.UpdatedAt
	}

	args := append([]any{
		seg.SegmentID,
		seg.FromLocationID,
		seg.ToLocationID,
		seg.DistanceKm,
		nullInt(seg.DurationMinutes),
		string(seg.Source),
		seg.Stale,
		updatedAt,
	}, extra...)

	out, err := scanSegment(s.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upsert segment %s->%s: %w", seg.FromLocationID, seg.ToLocationID, domain.ErrSegmentChanged)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert segment %s->%s: %w", seg.FromLocationID, seg.ToLocationID, err)
	}
	return out, nil
}

// Flag every entry touching the location as stale.
func (s *SQLSegmentCache) MarkStaleByLocation(ctx context.Context, locationID string) (_ int, err error) {
	defer obs.Time(ctx, "segment.cache.MarkStaleByLocation")(&err)

	if s.DB == nil {
		return 0, errors.New("segment cache: db is nil")
	}

	res, err := s.DB.ExecContext(ctx, `
	UPDATE road_segments
	SET stale = TRUE, updated_at = now()
	WHERE from_location_id = $1 OR to_location_id = $1;
	`, locationID)
	if err != nil {
		return 0, fmt.Errorf("mark stale location=%q: %w", locationID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark stale location=%q: rows affected: %w", locationID, err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSegment(row rowScanner) (*domain.RoadSegment, error) {
	var (
		seg      domain.RoadSegment
		duration sql.NullInt64
		source   string
	)
	if err := row.Scan(
		&seg.SegmentID,
		&seg.FromLocationID,
		&seg.ToLocationID,
		&seg.DistanceKm,
		&duration,
		&source,
		&seg.Stale,
		&seg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	seg.Source = domain.SegmentSource(source)
	if duration.Valid {
		d := int(duration.Int64)
		seg.DurationMinutes = &d
	}
	return &seg, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
