package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDoctorSearchNoFilters(t *testing.T) {
	sql, args := buildDoctorSearch(SearchFilter{})
	assert.Equal(t, "SELECT d.id, d.name, d.registration_number FROM doctors d ORDER BY d.id", sql)
	assert.Empty(t, args)
}

func TestBuildDoctorSearchNameOnly(t *testing.T) {
	sql, args := buildDoctorSearch(SearchFilter{Name: "Ana"})
	assert.Contains(t, sql, "d.name ILIKE '%' || $1 || '%'")
	assert.NotContains(t, sql, "doctor_specialties")
	assert.NotContains(t, sql, "doctor_cities")
	assert.Equal(t, []any{"Ana"}, args)
}

func TestBuildDoctorSearchAllFilters(t *testing.T) {
	sql, args := buildDoctorSearch(SearchFilter{Name: "Ana", Specialty: "Cardio", City: "Paulo"})

	assert.Contains(t, sql, "d.name ILIKE '%' || $1 || '%'")
	assert.Contains(t, sql, "s.name ILIKE '%' || $2 || '%'")
	assert.Contains(t, sql, "c.name ILIKE '%' || $3 || '%'")
	assert.Equal(t, []any{"Ana", "Cardio", "Paulo"}, args)

	// Each join-table predicate is existence-quantified so a doctor row
	// appears at most once per result set.
	assert.Equal(t, 2, countOccurrences(sql, "EXISTS ("))
	assert.Contains(t, sql, "ORDER BY d.id")
}

func TestBuildDoctorSearchEscapesPatternMetacharacters(t *testing.T) {
	sql, args := buildDoctorSearch(SearchFilter{Name: `10_%\`, Specialty: `a_b`, City: `c%d`})

	// Wildcard characters in filter input match themselves, not anything.
	assert.Equal(t, []any{`10\_\%\\`, `a\_b`, `c\%d`}, args)
	assert.Equal(t, 3, countOccurrences(sql, `ESCAPE '\'`))
}

func TestBuildDoctorSearchPlaceholdersFollowPresence(t *testing.T) {
	sql, args := buildDoctorSearch(SearchFilter{City: "Rio"})
	assert.Contains(t, sql, "c.name ILIKE '%' || $1 || '%'")
	assert.Equal(t, []any{"Rio"}, args)
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
