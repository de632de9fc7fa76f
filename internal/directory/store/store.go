// Package store persists the practitioner directory. The Postgres
// implementation is authoritative; the in-memory one mirrors its semantics for
// tests.
package store

import (
	"context"

	"medidir/internal/directory"
)

// NewDoctor carries the validated attributes and target relation id sets for a
// create or replace. Both id sets are treated as the complete desired
// membership, not a delta.
type NewDoctor struct {
	Name               string
	RegistrationNumber string
	SpecialtyIDs       []int64
	CityIDs            []int64
}

// Page is an offset/limit window over the stable id ordering.
type Page struct {
	Offset int
	Limit  int
}

// SearchFilter holds the optional substring filters for doctor search. An
// empty field contributes no constraint; present fields are ANDed together.
// Matching is case-insensitive and literal in every implementation; wildcard
// characters in filter values match themselves.
type SearchFilter struct {
	Name      string
	Specialty string
	City      string
}

// CitySeed is one (name, state) pair of city reference data.
type CitySeed struct {
	Name  string
	State string
}

// Store is the record store contract. Implementations return sentinel errors
// (pkg/platform/sentinel) for not-found, conflict, and invalid-reference
// outcomes so handlers can map them without driver knowledge.
type Store interface {
	Ping(ctx context.Context) error

	ListSpecialties(ctx context.Context) ([]directory.Specialty, error)
	ListCities(ctx context.Context) ([]directory.City, error)

	// UpsertSpecialty and UpsertCity insert-or-return by natural key and never
	// produce duplicate rows. Reference data only.
	UpsertSpecialty(ctx context.Context, name string) (directory.Specialty, error)
	UpsertCity(ctx context.Context, name, state string) (directory.City, error)

	CreateDoctor(ctx context.Context, input NewDoctor) (*directory.Doctor, error)
	GetDoctor(ctx context.Context, id int64) (*directory.Doctor, error)
	ListDoctors(ctx context.Context, page Page) ([]directory.Doctor, int, error)
	SearchDoctors(ctx context.Context, filter SearchFilter) ([]directory.Doctor, error)
	ReplaceDoctor(ctx context.Context, id int64, input NewDoctor) (*directory.Doctor, error)
	DeleteDoctor(ctx context.Context, id int64) error
}

// DefaultSpecialties is the fixed specialty reference list used by seeding.
var DefaultSpecialties = []string{"Cardiologia", "Dermatologia", "Pediatria", "Clínica Geral"}

// DefaultCities is the fixed city reference list used by seeding.
var DefaultCities = []CitySeed{
	{Name: "São Paulo", State: "SP"},
	{Name: "Apucarana", State: "PR"},
	{Name: "Rio de Janeiro", State: "RJ"},
}

// Seed idempotently ensures the given reference data exists. Running it twice
// leaves exactly one row per distinct name and per distinct (name, state) pair.
func Seed(ctx context.Context, s Store, specialties []string, cities []CitySeed) error {
	for _, name := range specialties {
		if _, err := s.UpsertSpecialty(ctx, name); err != nil {
			return err
		}
	}
	for _, c := range cities {
		if _, err := s.UpsertCity(ctx, c.Name, c.State); err != nil {
			return err
		}
	}
	return nil
}
