package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/facility-enrich/internal/db"
	"github.com/sells-group/facility-enrich/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS facilities (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	locality           TEXT NOT NULL DEFAULT '',
	country            TEXT NOT NULL DEFAULT '',
	country_code       TEXT NOT NULL DEFAULT '',
	lat                DOUBLE PRECISION,
	lng                DOUBLE PRECISION,
	location           geometry(Point, 4326),
	doctors            INTEGER,
	capacity           INTEGER,
	area               DOUBLE PRECISION,
	year_established   INTEGER,
	region             TEXT,
	facility_type      TEXT,
	operator_type      TEXT,
	description        TEXT,
	specialties        TEXT,
	procedures         TEXT,
	equipment          TEXT,
	enrichment_status  TEXT NOT NULL DEFAULT 'idle',
	last_enrichment_at TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_facilities_enrichment_status ON facilities(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_facilities_location ON facilities USING GIST (location);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateFacility inserts f and returns its new id.
func (s *PostgresStore) CreateFacility(ctx context.Context, f *model.Facility) (int64, error) {
	status := f.EnrichmentStatus
	if status == "" {
		status = model.StatusIdle
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO facilities (name, locality, country, country_code,
			lat, lng, doctors, capacity, area, year_established,
			region, facility_type, operator_type, description, specialties, procedures, equipment,
			enrichment_status, last_enrichment_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		f.Name, f.Locality, f.Country, f.CountryCode,
		f.Lat, f.Lng, f.Doctors, f.Capacity, f.Area, f.YearEstablished,
		f.Region, f.FacilityType, f.OperatorType, f.Description, f.Specialties, f.Procedures, f.Equipment,
		string(status), f.LastEnrichmentAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert facility")
	}
	return id, nil
}

func (s *PostgresStore) GetFacility(ctx context.Context, id int64) (*model.Facility, error) {
	var f model.Facility
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = $1`, id,
	).Scan(
		&f.ID, &f.Name, &f.Locality, &f.Country, &f.CountryCode,
		&f.Lat, &f.Lng, &f.Doctors, &f.Capacity, &f.Area, &f.YearEstablished,
		&f.Region, &f.FacilityType, &f.OperatorType, &f.Description, &f.Specialties, &f.Procedures, &f.Equipment,
		&status, &f.LastEnrichmentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get facility %d", id)
		}
		return nil, eris.Wrapf(err, "postgres: get facility %d", id)
	}
	f.EnrichmentStatus = model.EnrichmentStatus(status)
	return &f, nil
}

// UpdateFields writes patch in one UPDATE. Any coordinate in the patch
// refreshes the PostGIS location column in the same statement; a lone lat or
// lng is paired with the stored other half.
func (s *PostgresStore) UpdateFields(ctx context.Context, id int64, patch model.Patch) error {
	cols, args, err := setArgs(patch)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(cols)+2)
	params := []any{id}
	placeholder := make(map[string]string, len(cols))
	for i, col := range cols {
		params = append(params, args[i])
		placeholder[col] = fmt.Sprintf("$%d", len(params))
		sets = append(sets, fmt.Sprintf("%s = %s", col, placeholder[col]))
	}
	if lat, lng, ok := coordinates(patch); ok {
		point, err := encodePoint(lat, lng)
		if err != nil {
			return err
		}
		params = append(params, point)
		sets = append(sets, fmt.Sprintf("location = ST_GeomFromEWKB($%d)", len(params)))
	} else if p, ok := placeholder["lat"]; ok {
		sets = append(sets, fmt.Sprintf("location = ST_SetSRID(ST_MakePoint(lng, %s), 4326)", p))
	} else if p, ok := placeholder["lng"]; ok {
		sets = append(sets, fmt.Sprintf("location = ST_SetSRID(ST_MakePoint(%s, lat), 4326)", p))
	}
	sets = append(sets, "updated_at = now()")

	tag, err := s.pool.Exec(ctx,
		`UPDATE facilities SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		params...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update fields %v of facility %d", cols, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update facility %d", id)
	}
	return nil
}

func (s *PostgresStore) SetEnrichmentStatus(ctx context.Context, id int64, status model.EnrichmentStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE facilities SET enrichment_status = $2, last_enrichment_at = $3 WHERE id = $1`,
		id, string(status), at.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s on facility %d", status, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: set status on facility %d", id)
	}
	return nil
}

func (s *PostgresStore) ClaimEnrichment(ctx context.Context, id int64, expected model.EnrichmentStatus, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE facilities SET enrichment_status = $3, last_enrichment_at = $4 WHERE id = $1 AND enrichment_status = $2`,
		id, string(expected), string(model.StatusEnriching), at.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim facility %d", id)
	}
	return tag.RowsAffected() == 1, nil
}

// encodePoint renders a WGS84 point as EWKB for the location column.
func encodePoint(lat, lng float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode location")
	}
	return data, nil
}
