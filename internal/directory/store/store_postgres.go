package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"medidir/internal/directory"
	"medidir/pkg/platform/sentinel"
	txcontext "medidir/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists the directory in PostgreSQL. All mutations run in a
// single transaction; uniqueness and referential integrity are delegated to
// the database and surfaced as sentinel errors.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewPostgres constructs a PostgreSQL-backed directory store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("medidir/directory/store"),
	}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// withTx runs fn inside one transaction, made visible to nested store calls
// through the context.
func (s *PostgresStore) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapConstraintError translates driver constraint violations into sentinel
// errors by violation kind, so callers never compare provider codes.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Name() {
	case "unique_violation":
		return fmt.Errorf("constraint %s: %w", pqErr.Constraint, sentinel.ErrConflict)
	case "foreign_key_violation":
		return fmt.Errorf("constraint %s: %w", pqErr.Constraint, sentinel.ErrInvalidReference)
	}
	return err
}

// EnsureSchema applies the embedded DDL. Safe to run repeatedly.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListSpecialties(ctx context.Context) ([]directory.Specialty, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT id, name FROM specialties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	defer rows.Close()

	specialties := make([]directory.Specialty, 0)
	for rows.Next() {
		var sp directory.Specialty
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, fmt.Errorf("scan specialty: %w", err)
		}
		specialties = append(specialties, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate specialties: %w", err)
	}
	return specialties, nil
}

func (s *PostgresStore) ListCities(ctx context.Context) ([]directory.City, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT id, name, state FROM cities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	cities := make([]directory.City, 0)
	for rows.Next() {
		var c directory.City
		if err := rows.Scan(&c.ID, &c.Name, &c.State); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return cities, nil
}

// UpsertSpecialty inserts the specialty if its name is new and returns the row
// either way, so re-seeding never duplicates rows.
func (s *PostgresStore) UpsertSpecialty(ctx context.Context, name string) (directory.Specialty, error) {
	sp := directory.Specialty{Name: name}
	// DO UPDATE on the natural key makes RETURNING yield the existing row, so
	// concurrent seeders all land on the same id.
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO specialties (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&sp.ID)
	if err != nil {
		return directory.Specialty{}, fmt.Errorf("upsert specialty: %w", err)
	}
	return sp, nil
}

// UpsertCity inserts the city if its (name, state) pair is new and returns the
// row either way.
func (s *PostgresStore) UpsertCity(ctx context.Context, name, state string) (directory.City, error) {
	c := directory.City{Name: name, State: state}
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO cities (name, state)
		VALUES ($1, $2)
		ON CONFLICT (name, state) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name, state).Scan(&c.ID)
	if err != nil {
		return directory.City{}, fmt.Errorf("upsert city: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CreateDoctor(ctx context.Context, input NewDoctor) (*directory.Doctor, error) {
	ctx, span := s.tracer.Start(ctx, "store.CreateDoctor")
	defer span.End()

	var doctor *directory.Doctor
	err := s.withTx(ctx, func(ctx context.Context) error {
		var doctorID int64
		err := s.execer(ctx).QueryRowContext(ctx, `
			INSERT INTO doctors (name, registration_number)
			VALUES ($1, $2)
			RETURNING id
		`, input.Name, input.RegistrationNumber).Scan(&doctorID)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", mapConstraintError(err))
		}

		if err := s.linkAll(ctx, doctorID, input); err != nil {
			return err
		}

		doctor, err = s.getDoctor(ctx, doctorID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return doctor, nil
}

func (s *PostgresStore) GetDoctor(ctx context.Context, id int64) (*directory.Doctor, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetDoctor")
	defer span.End()
	return s.getDoctor(ctx, id)
}

func (s *PostgresStore) getDoctor(ctx context.Context, id int64) (*directory.Doctor, error) {
	var d directory.Doctor
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, name, registration_number FROM doctors WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.RegistrationNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("doctor %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find doctor: %w", err)
	}

	doctors := []directory.Doctor{d}
	if err := s.resolveRelations(ctx, doctors); err != nil {
		return nil, err
	}
	return &doctors[0], nil
}

// ListDoctors returns one page plus the total row count. Count and page run in
// parallel on separate connections; the pair is not a snapshot read, which is
// acceptable staleness for a directory listing.
func (s *PostgresStore) ListDoctors(ctx context.Context, page Page) ([]directory.Doctor, int, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListDoctors")
	defer span.End()

	var (
		total   int
		doctors []directory.Doctor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
			return fmt.Errorf("count doctors: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, `
			SELECT id, name, registration_number FROM doctors
			ORDER BY id
			LIMIT $1 OFFSET $2
		`, page.Limit, page.Offset)
		if err != nil {
			return fmt.Errorf("list doctors: %w", err)
		}
		defer rows.Close()
		doctors, err = scanDoctors(rows)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, 0, err
	}

	if err := s.resolveRelations(ctx, doctors); err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	return doctors, total, nil
}

func (s *PostgresStore) SearchDoctors(ctx context.Context, filter SearchFilter) ([]directory.Doctor, error) {
	ctx, span := s.tracer.Start(ctx, "store.SearchDoctors")
	defer span.End()

	query, args := buildDoctorSearch(filter)
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search doctors: %w", err)
	}
	defer rows.Close()

	doctors, err := scanDoctors(rows)
	if err != nil {
		return nil, err
	}
	if err := s.resolveRelations(ctx, doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}

// ReplaceDoctor atomically updates the scalar attributes and resets both
// relation sets to exactly the given ids. A relation id with no backing row
// aborts the whole transaction; no partial relinking is observable.
func (s *PostgresStore) ReplaceDoctor(ctx context.Context, id int64, input NewDoctor) (*directory.Doctor, error) {
	ctx, span := s.tracer.Start(ctx, "store.ReplaceDoctor")
	defer span.End()

	var doctor *directory.Doctor
	err := s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE doctors SET name = $2, registration_number = $3 WHERE id = $1
		`, id, input.Name, input.RegistrationNumber)
		if err != nil {
			return fmt.Errorf("update doctor: %w", mapConstraintError(err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update doctor: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("doctor %d: %w", id, sentinel.ErrNotFound)
		}

		if err := s.reconcileLinks(ctx, "doctor_specialties", "specialty_id", id, input.SpecialtyIDs); err != nil {
			return err
		}
		if err := s.reconcileLinks(ctx, "doctor_cities", "city_id", id, input.CityIDs); err != nil {
			return err
		}

		doctor, err = s.getDoctor(ctx, id)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return doctor, nil
}

func (s *PostgresStore) DeleteDoctor(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "store.DeleteDoctor")
	defer span.End()

	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete doctor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("doctor %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

// linkAll inserts join rows for every id in both target sets. Used on create,
// where no existing rows need diffing.
func (s *PostgresStore) linkAll(ctx context.Context, doctorID int64, input NewDoctor) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO doctor_specialties (doctor_id, specialty_id)
		SELECT $1, unnest($2::int[])
	`, doctorID, pq.Array(input.SpecialtyIDs))
	if err != nil {
		return fmt.Errorf("link specialties: %w", mapConstraintError(err))
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO doctor_cities (doctor_id, city_id)
		SELECT $1, unnest($2::int[])
	`, doctorID, pq.Array(input.CityIDs))
	if err != nil {
		return fmt.Errorf("link cities: %w", mapConstraintError(err))
	}
	return nil
}

// reconcileLinks makes the join table hold exactly target for one doctor:
// delete rows outside the target set, insert the missing ones. Rows already in
// both sets are untouched, so the outcome matches clear-then-relink without
// rewriting unchanged rows.
func (s *PostgresStore) reconcileLinks(ctx context.Context, table, column string, doctorID int64, target []int64) error {
	_, err := s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE doctor_id = $1 AND %s <> ALL($2::int[])
	`, table, column), doctorID, pq.Array(target))
	if err != nil {
		return fmt.Errorf("unlink removed %s: %w", column, err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (doctor_id, %s)
		SELECT $1, unnest($2::int[])
		ON CONFLICT DO NOTHING
	`, table, column), doctorID, pq.Array(target))
	if err != nil {
		return fmt.Errorf("link added %s: %w", column, mapConstraintError(err))
	}
	return nil
}

func scanDoctors(rows *sql.Rows) ([]directory.Doctor, error) {
	doctors := make([]directory.Doctor, 0)
	for rows.Next() {
		var d directory.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.RegistrationNumber); err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctors: %w", err)
	}
	return doctors, nil
}

// resolveRelations populates Specialties and Cities for every doctor in one
// batch query per relation.
func (s *PostgresStore) resolveRelations(ctx context.Context, doctors []directory.Doctor) error {
	if len(doctors) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(doctors))
	for i := range doctors {
		ids = append(ids, doctors[i].ID)
		doctors[i].Specialties = make([]directory.Specialty, 0)
		doctors[i].Cities = make([]directory.City, 0)
	}
	byID := make(map[int64]*directory.Doctor, len(doctors))
	for i := range doctors {
		byID[doctors[i].ID] = &doctors[i]
	}

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT ds.doctor_id, s.id, s.name
		FROM doctor_specialties ds
		JOIN specialties s ON s.id = ds.specialty_id
		WHERE ds.doctor_id = ANY($1::int[])
		ORDER BY s.id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("resolve specialties: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doctorID int64
		var sp directory.Specialty
		if err := rows.Scan(&doctorID, &sp.ID, &sp.Name); err != nil {
			return fmt.Errorf("scan doctor specialty: %w", err)
		}
		if d, ok := byID[doctorID]; ok {
			d.Specialties = append(d.Specialties, sp)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate doctor specialties: %w", err)
	}

	cityRows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT dc.doctor_id, c.id, c.name, c.state
		FROM doctor_cities dc
		JOIN cities c ON c.id = dc.city_id
		WHERE dc.doctor_id = ANY($1::int[])
		ORDER BY c.id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("resolve cities: %w", err)
	}
	defer cityRows.Close()
	for cityRows.Next() {
		var doctorID int64
		var c directory.City
		if err := cityRows.Scan(&doctorID, &c.ID, &c.Name, &c.State); err != nil {
			return fmt.Errorf("scan doctor city: %w", err)
		}
		if d, ok := byID[doctorID]; ok {
			d.Cities = append(d.Cities, c)
		}
	}
	if err := cityRows.Err(); err != nil {
		return fmt.Errorf("iterate doctor cities: %w", err)
	}
	return nil
}
