package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/facility-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facilities (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL,
	locality           TEXT NOT NULL DEFAULT '',
	country            TEXT NOT NULL DEFAULT '',
	country_code       TEXT NOT NULL DEFAULT '',
	lat                REAL,
	lng                REAL,
	doctors            INTEGER,
	capacity           INTEGER,
	area               REAL,
	year_established   INTEGER,
	region             TEXT,
	facility_type      TEXT,
	operator_type      TEXT,
	description        TEXT,
	specialties        TEXT,
	procedures         TEXT,
	equipment          TEXT,
	enrichment_status  TEXT NOT NULL DEFAULT 'idle',
	last_enrichment_at INTEGER,
	updated_at         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_facilities_enrichment_status ON facilities(enrichment_status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateFacility inserts f and returns its new id.
func (s *SQLiteStore) CreateFacility(ctx context.Context, f *model.Facility) (int64, error) {
	status := f.EnrichmentStatus
	if status == "" {
		status = model.StatusIdle
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO facilities (name, locality, country, country_code,
			lat, lng, doctors, capacity, area, year_established,
			region, facility_type, operator_type, description, specialties, procedures, equipment,
			enrichment_status, last_enrichment_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.Locality, f.Country, f.CountryCode,
		f.Lat, f.Lng, f.Doctors, f.Capacity, f.Area, f.YearEstablished,
		f.Region, f.FacilityType, f.OperatorType, f.Description, f.Specialties, f.Procedures, f.Equipment,
		string(status), toMillis(f.LastEnrichmentAt), time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert facility")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return id, nil
}

func (s *SQLiteStore) GetFacility(ctx context.Context, id int64) (*model.Facility, error) {
	var (
		f         model.Facility
		status    string
		attempted sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`, id,
	).Scan(
		&f.ID, &f.Name, &f.Locality, &f.Country, &f.CountryCode,
		&f.Lat, &f.Lng, &f.Doctors, &f.Capacity, &f.Area, &f.YearEstablished,
		&f.Region, &f.FacilityType, &f.OperatorType, &f.Description, &f.Specialties, &f.Procedures, &f.Equipment,
		&status, &attempted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get facility %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get facility %d", id)
	}
	f.EnrichmentStatus = model.EnrichmentStatus(status)
	if attempted.Valid {
		t := time.UnixMilli(attempted.Int64).UTC()
		f.LastEnrichmentAt = &t
	}
	return &f, nil
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, id int64, patch model.Patch) error {
	cols, args, err := setArgs(patch)
	if err != nil {
		return err
	}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UnixMilli(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE facilities SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update fields %v of facility %d", cols, id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) SetEnrichmentStatus(ctx context.Context, id int64, status model.EnrichmentStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE facilities SET enrichment_status = ?, last_enrichment_at = ? WHERE id = ?`,
		string(status), at.UnixMilli(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s on facility %d", status, id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) ClaimEnrichment(ctx context.Context, id int64, expected model.EnrichmentStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE facilities SET enrichment_status = ?, last_enrichment_at = ? WHERE id = ? AND enrichment_status = ?`,
		string(model.StatusEnriching), at.UnixMilli(), id, string(expected),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim facility %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: facility %d", id)
	}
	return nil
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
