package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/obs"
)

// Postgres-backed implementation of the LocationRepository port.
type SQLLocationRepository struct{ DB *sql.DB }

func NewSQLLocationRepository(db *sql.DB) *SQLLocationRepository {
	return &SQLLocationRepository{DB: db}
}

func (r *SQLLocationRepository) GetLocation(ctx context.Context, id string) (_ *domain.Location, err error) {
	defer obs.Time(ctx, "locations.GetLocation")(&err)

	if r.DB == nil {
		return nil, errors.New("location repository: DB is nil")
	}

	loc, err := scanLocation(r.DB.QueryRowContext(ctx,
		`SELECT id, lat, lng FROM locations WHERE id = $1;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location id=%q: %w", id, err)
	}
	return loc, nil
}

// Return the locations found among ids.
func (r *SQLLocationRepository) GetLocations(ctx context.Context, ids []string) (_ map[string]domain.Location, err error) {
	defer obs.Time(ctx, "locations.GetLocations")(&err)

	if r.DB == nil {
		return nil, errors.New("location repository: DB is nil")
	}

	if len(ids) == 0 {
		return map[string]domain.Location{}, nil
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, lat, lng FROM locations WHERE id = ANY($1::text[]);`, ids)
	if err != nil {
		return nil, fmt.Errorf("get locations: query locations table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Location, len(ids))
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("get locations: scan row: %w", err)
		}
		out[loc.ID] = *loc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get locations: row iteration: %w", err)
	}

	return out, nil
}

func (r *SQLLocationRepository) UpdateCoordinates(ctx context.Context, id string, lat, lng float64) (_ *domain.Location, err error) {
	defer obs.Time(ctx, "locations.UpdateCoordinates")(&err)

	if r.DB == nil {
		return nil, errors.New("location repository: DB is nil")
	}

	loc, err := scanLocation(r.DB.QueryRowContext(ctx, `
	UPDATE locations
	SET lat = $2, lng = $3, updated_at = now()
	WHERE id = $1
	RETURNING id, lat, lng;
	`, id, lat, lng))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update coordinates id=%q: %w", id, err)
	}
	return loc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*domain.Location, error) {
	var (
		loc      domain.Location
		lat, lng sql.NullFloat64
	)
	if err := row.Scan(&loc.ID, &lat, &lng); err != nil {
		return nil, err
	}
	loc.Lat = floatPtr(lat)
	loc.Lng = floatPtr(lng)
	return &loc, nil
}
