package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medidir/internal/directory/store"
	"medidir/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *store.InMemoryStore

	cardiologia, pediatria, dermatologia int64
	saoPaulo, apucarana                  int64
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()

	cardio, err := s.store.UpsertSpecialty(s.ctx, "Cardiologia")
	s.Require().NoError(err)
	s.cardiologia = cardio.ID
	ped, err := s.store.UpsertSpecialty(s.ctx, "Pediatria")
	s.Require().NoError(err)
	s.pediatria = ped.ID
	derm, err := s.store.UpsertSpecialty(s.ctx, "Dermatologia")
	s.Require().NoError(err)
	s.dermatologia = derm.ID

	sp, err := s.store.UpsertCity(s.ctx, "São Paulo", "SP")
	s.Require().NoError(err)
	s.saoPaulo = sp.ID
	apu, err := s.store.UpsertCity(s.ctx, "Apucarana", "PR")
	s.Require().NoError(err)
	s.apucarana = apu.ID
}

func (s *InMemoryStoreSuite) newDoctor(name, registration string, specialtyIDs, cityIDs []int64) store.NewDoctor {
	return store.NewDoctor{
		Name:               name,
		RegistrationNumber: registration,
		SpecialtyIDs:       specialtyIDs,
		CityIDs:            cityIDs,
	}
}

func (s *InMemoryStoreSuite) TestSeedIsIdempotent() {
	for i := 0; i < 2; i++ {
		err := store.Seed(s.ctx, s.store, store.DefaultSpecialties, store.DefaultCities)
		s.Require().NoError(err)
	}

	specialties, err := s.store.ListSpecialties(s.ctx)
	s.Require().NoError(err)
	names := make(map[string]int)
	for _, sp := range specialties {
		names[sp.Name]++
	}
	for _, name := range store.DefaultSpecialties {
		s.Equal(1, names[name], "specialty %q should exist exactly once", name)
	}

	cities, err := s.store.ListCities(s.ctx)
	s.Require().NoError(err)
	pairs := make(map[store.CitySeed]int)
	for _, c := range cities {
		pairs[store.CitySeed{Name: c.Name, State: c.State}]++
	}
	for _, c := range store.DefaultCities {
		s.Equal(1, pairs[c], "city %v should exist exactly once", c)
	}
}

func (s *InMemoryStoreSuite) TestCreateResolvesRelations() {
	doctor, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana Souza", "CRM-12345",
		[]int64{s.cardiologia, s.pediatria}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	s.Equal("Ana Souza", doctor.Name)
	s.Equal([]int64{s.cardiologia, s.pediatria}, doctor.SpecialtyIDs())
	s.Equal([]int64{s.saoPaulo}, doctor.CityIDs())
	s.Equal("São Paulo", doctor.Cities[0].Name)
}

func (s *InMemoryStoreSuite) TestDuplicateRegistrationNumberConflicts() {
	_, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana", "CRM-12345",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	_, err = s.store.CreateDoctor(s.ctx, s.newDoctor("Beatriz", "CRM-12345",
		[]int64{s.pediatria}, []int64{s.apucarana}))
	s.ErrorIs(err, sentinel.ErrConflict)

	_, total, err := s.store.ListDoctors(s.ctx, store.Page{Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total, "exactly one row should remain for the registration number")
}

func (s *InMemoryStoreSuite) TestCreateWithUnknownReferenceFails() {
	_, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana", "CRM-12345",
		[]int64{9999}, []int64{s.saoPaulo}))
	s.ErrorIs(err, sentinel.ErrInvalidReference)

	_, total, err := s.store.ListDoctors(s.ctx, store.Page{Limit: 10})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *InMemoryStoreSuite) TestPagination() {
	const n = 7
	for i := 0; i < n; i++ {
		_, err := s.store.CreateDoctor(s.ctx, s.newDoctor(
			"Doctor "+string(rune('A'+i)), "CRM-000"+string(rune('0'+i)),
			[]int64{s.cardiologia}, []int64{s.saoPaulo}))
		s.Require().NoError(err)
	}

	page1, total, err := s.store.ListDoctors(s.ctx, store.Page{Offset: 0, Limit: 3})
	s.Require().NoError(err)
	s.Equal(n, total)
	s.Len(page1, 3)

	page3, total, err := s.store.ListDoctors(s.ctx, store.Page{Offset: 6, Limit: 3})
	s.Require().NoError(err)
	s.Equal(n, total)
	s.Len(page3, 1)

	// Stable id ordering: page boundaries never skip or repeat.
	s.Less(page1[0].ID, page1[1].ID)
	s.Greater(page3[0].ID, page1[2].ID)

	empty, total, err := s.store.ListDoctors(s.ctx, store.Page{Offset: 100, Limit: 3})
	s.Require().NoError(err)
	s.Equal(n, total)
	s.Empty(empty)
}

func (s *InMemoryStoreSuite) TestReplaceRelinksExactly() {
	doctor, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana", "CRM-12345",
		[]int64{s.cardiologia, s.pediatria}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	updated, err := s.store.ReplaceDoctor(s.ctx, doctor.ID, s.newDoctor("Ana", "CRM-12345",
		[]int64{s.pediatria, s.dermatologia}, []int64{s.apucarana}))
	s.Require().NoError(err)

	s.Equal([]int64{s.pediatria, s.dermatologia}, updated.SpecialtyIDs())
	s.Equal([]int64{s.apucarana}, updated.CityIDs())
}

func (s *InMemoryStoreSuite) TestReplaceWithUnknownReferenceLeavesSetIntact() {
	doctor, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana", "CRM-12345",
		[]int64{s.cardiologia, s.pediatria}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	_, err = s.store.ReplaceDoctor(s.ctx, doctor.ID, s.newDoctor("Ana", "CRM-12345",
		[]int64{s.pediatria, 9999}, []int64{s.saoPaulo}))
	s.ErrorIs(err, sentinel.ErrInvalidReference)

	current, err := s.store.GetDoctor(s.ctx, doctor.ID)
	s.Require().NoError(err)
	s.Equal([]int64{s.cardiologia, s.pediatria}, current.SpecialtyIDs(),
		"failed relink must not leave partial changes")
}

func (s *InMemoryStoreSuite) TestReplaceMissingDoctor() {
	_, err := s.store.ReplaceDoctor(s.ctx, 9999, s.newDoctor("Ghost", "CRM-99999",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestReplaceConflictsWithOtherDoctor() {
	_, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana", "CRM-11111",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)
	other, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Beatriz", "CRM-22222",
		[]int64{s.pediatria}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	_, err = s.store.ReplaceDoctor(s.ctx, other.ID, s.newDoctor("Beatriz", "CRM-11111",
		[]int64{s.pediatria}, []int64{s.saoPaulo}))
	s.ErrorIs(err, sentinel.ErrConflict)

	// Keeping its own registration number is not a conflict.
	_, err = s.store.ReplaceDoctor(s.ctx, other.ID, s.newDoctor("Beatriz B.", "CRM-22222",
		[]int64{s.pediatria}, []int64{s.saoPaulo}))
	s.NoError(err)
}

func (s *InMemoryStoreSuite) TestSearchConjunction() {
	_, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana Cardoso", "CRM-11111",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)
	_, err = s.store.CreateDoctor(s.ctx, s.newDoctor("Ana Pereira", "CRM-22222",
		[]int64{s.pediatria}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	results, err := s.store.SearchDoctors(s.ctx, store.SearchFilter{Name: "Ana", Specialty: "Cardio"})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal("Ana Cardoso", results[0].Name)

	results, err = s.store.SearchDoctors(s.ctx, store.SearchFilter{City: "São Paulo"})
	s.Require().NoError(err)
	s.Len(results, 2)

	results, err = s.store.SearchDoctors(s.ctx, store.SearchFilter{})
	s.Require().NoError(err)
	s.Len(results, 2, "no filters should return every doctor")

	results, err = s.store.SearchDoctors(s.ctx, store.SearchFilter{Specialty: "Neuro"})
	s.Require().NoError(err)
	s.Empty(results, "a filter matching no specialty matches no doctor, not all")
}

func (s *InMemoryStoreSuite) TestSearchIsCaseInsensitive() {
	_, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana Cardoso", "CRM-11111",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	results, err := s.store.SearchDoctors(s.ctx, store.SearchFilter{Name: "ana card"})
	s.Require().NoError(err)
	s.Len(results, 1)

	results, err = s.store.SearchDoctors(s.ctx, store.SearchFilter{Specialty: "cardio"})
	s.Require().NoError(err)
	s.Len(results, 1)
}

func (s *InMemoryStoreSuite) TestSearchMatchesWildcardCharactersLiterally() {
	_, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Unit 103", "CRM-11111",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)
	_, err = s.store.CreateDoctor(s.ctx, s.newDoctor("Unit 10_", "CRM-22222",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	results, err := s.store.SearchDoctors(s.ctx, store.SearchFilter{Name: "10_"})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal("Unit 10_", results[0].Name)

	results, err = s.store.SearchDoctors(s.ctx, store.SearchFilter{Name: "%"})
	s.Require().NoError(err)
	s.Empty(results)
}

func (s *InMemoryStoreSuite) TestDeleteKeepsReferenceData() {
	doctor, err := s.store.CreateDoctor(s.ctx, s.newDoctor("Ana", "CRM-12345",
		[]int64{s.cardiologia}, []int64{s.saoPaulo}))
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteDoctor(s.ctx, doctor.ID))

	_, err = s.store.GetDoctor(s.ctx, doctor.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	specialties, err := s.store.ListSpecialties(s.ctx)
	s.Require().NoError(err)
	s.Len(specialties, 3, "specialty rows survive doctor deletion")
	cities, err := s.store.ListCities(s.ctx)
	s.Require().NoError(err)
	s.Len(cities, 2, "city rows survive doctor deletion")

	s.ErrorIs(s.store.DeleteDoctor(s.ctx, doctor.ID), sentinel.ErrNotFound)
}
