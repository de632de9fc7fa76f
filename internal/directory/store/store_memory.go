package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"medidir/internal/directory"
	"medidir/pkg/platform/sentinel"
)

// InMemoryStore mirrors the Postgres semantics for handler tests and local
// runs without a database: same sentinel errors, same case-insensitive
// substring search, same id ordering.
type InMemoryStore struct {
	mu sync.RWMutex

	specialties map[int64]directory.Specialty
	cities      map[int64]directory.City
	doctors     map[int64]memDoctor

	nextSpecialtyID int64
	nextCityID      int64
	nextDoctorID    int64
}

type memDoctor struct {
	id                 int64
	name               string
	registrationNumber string
	specialtyIDs       map[int64]struct{}
	cityIDs            map[int64]struct{}
}

// NewInMemory constructs an empty in-memory directory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		specialties: make(map[int64]directory.Specialty),
		cities:      make(map[int64]directory.City),
		doctors:     make(map[int64]memDoctor),
	}
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) ListSpecialties(context.Context) ([]directory.Specialty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.Specialty, 0, len(s.specialties))
	for _, sp := range s.specialties {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListCities(context.Context) ([]directory.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.City, 0, len(s.cities))
	for _, c := range s.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) UpsertSpecialty(_ context.Context, name string) (directory.Specialty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.specialties {
		if sp.Name == name {
			return sp, nil
		}
	}
	s.nextSpecialtyID++
	sp := directory.Specialty{ID: s.nextSpecialtyID, Name: name}
	s.specialties[sp.ID] = sp
	return sp, nil
}

func (s *InMemoryStore) UpsertCity(_ context.Context, name, state string) (directory.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cities {
		if c.Name == name && c.State == state {
			return c, nil
		}
	}
	s.nextCityID++
	c := directory.City{ID: s.nextCityID, Name: name, State: state}
	s.cities[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) CreateDoctor(_ context.Context, input NewDoctor) (*directory.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.doctors {
		if d.registrationNumber == input.RegistrationNumber {
			return nil, fmt.Errorf("registration number %s: %w", input.RegistrationNumber, sentinel.ErrConflict)
		}
	}
	if err := s.checkReferences(input); err != nil {
		return nil, err
	}

	s.nextDoctorID++
	d := memDoctor{
		id:                 s.nextDoctorID,
		name:               input.Name,
		registrationNumber: input.RegistrationNumber,
		specialtyIDs:       toSet(input.SpecialtyIDs),
		cityIDs:            toSet(input.CityIDs),
	}
	s.doctors[d.id] = d
	return s.render(d), nil
}

func (s *InMemoryStore) GetDoctor(_ context.Context, id int64) (*directory.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor %d: %w", id, sentinel.ErrNotFound)
	}
	return s.render(d), nil
}

func (s *InMemoryStore) ListDoctors(_ context.Context, page Page) ([]directory.Doctor, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedDoctors()
	total := len(all)

	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	out := make([]directory.Doctor, 0, end-start)
	for _, d := range all[start:end] {
		out = append(out, *s.render(d))
	}
	return out, total, nil
}

func (s *InMemoryStore) SearchDoctors(_ context.Context, filter SearchFilter) ([]directory.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]directory.Doctor, 0)
	for _, d := range s.sortedDoctors() {
		if !s.matches(d, filter) {
			continue
		}
		out = append(out, *s.render(d))
	}
	return out, nil
}

func (s *InMemoryStore) ReplaceDoctor(_ context.Context, id int64, input NewDoctor) (*directory.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor %d: %w", id, sentinel.ErrNotFound)
	}
	for _, other := range s.doctors {
		if other.id != id && other.registrationNumber == input.RegistrationNumber {
			return nil, fmt.Errorf("registration number %s: %w", input.RegistrationNumber, sentinel.ErrConflict)
		}
	}
	// Reference check happens before any mutation so a bad id leaves the
	// doctor untouched, matching the transactional store.
	if err := s.checkReferences(input); err != nil {
		return nil, err
	}

	d.name = input.Name
	d.registrationNumber = input.RegistrationNumber
	d.specialtyIDs = toSet(input.SpecialtyIDs)
	d.cityIDs = toSet(input.CityIDs)
	s.doctors[id] = d
	return s.render(d), nil
}

func (s *InMemoryStore) DeleteDoctor(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[id]; !ok {
		return fmt.Errorf("doctor %d: %w", id, sentinel.ErrNotFound)
	}
	delete(s.doctors, id)
	return nil
}

func (s *InMemoryStore) checkReferences(input NewDoctor) error {
	for _, id := range input.SpecialtyIDs {
		if _, ok := s.specialties[id]; !ok {
			return fmt.Errorf("specialty %d: %w", id, sentinel.ErrInvalidReference)
		}
	}
	for _, id := range input.CityIDs {
		if _, ok := s.cities[id]; !ok {
			return fmt.Errorf("city %d: %w", id, sentinel.ErrInvalidReference)
		}
	}
	return nil
}

func (s *InMemoryStore) matches(d memDoctor, filter SearchFilter) bool {
	if filter.Name != "" && !containsFold(d.name, filter.Name) {
		return false
	}
	if filter.Specialty != "" {
		found := false
		for id := range d.specialtyIDs {
			if containsFold(s.specialties[id].Name, filter.Specialty) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.City != "" {
		found := false
		for id := range d.cityIDs {
			if containsFold(s.cities[id].Name, filter.City) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) sortedDoctors() []memDoctor {
	out := make([]memDoctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// render resolves a doctor's relation sets into the public entity, ordered by
// id as the Postgres store does.
func (s *InMemoryStore) render(d memDoctor) *directory.Doctor {
	out := &directory.Doctor{
		ID:                 d.id,
		Name:               d.name,
		RegistrationNumber: d.registrationNumber,
		Specialties:        make([]directory.Specialty, 0, len(d.specialtyIDs)),
		Cities:             make([]directory.City, 0, len(d.cityIDs)),
	}
	for id := range d.specialtyIDs {
		out.Specialties = append(out.Specialties, s.specialties[id])
	}
	sort.Slice(out.Specialties, func(i, j int) bool { return out.Specialties[i].ID < out.Specialties[j].ID })
	for id := range d.cityIDs {
		out.Cities = append(out.Cities, s.cities[id])
	}
	sort.Slice(out.Cities, func(i, j int) bool { return out.Cities[i].ID < out.Cities[j].ID })
	return out
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
