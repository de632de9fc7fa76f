package store

import (
	"fmt"
	"strings"
)

// searchQuery composes the doctor search statement from optional predicates.
// Each present filter contributes one conjunct; zero filters yields the
// unfiltered listing. Matching is existence-quantified over the join tables,
// not a literal join, so a doctor appears at most once per result set.
type searchQuery struct {
	conds []string
	args  []any
}

// add appends a condition whose single %d verb is replaced with the positional
// placeholder of arg.
func (q *searchQuery) add(cond string, arg any) {
	q.args = append(q.args, arg)
	q.conds = append(q.conds, fmt.Sprintf(cond, len(q.args)))
}

// SQL renders the full SELECT with its WHERE conjunction and stable ordering.
func (q *searchQuery) SQL() string {
	var b strings.Builder
	b.WriteString(`SELECT d.id, d.name, d.registration_number FROM doctors d`)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	b.WriteString(" ORDER BY d.id")
	return b.String()
}

// likeEscaper neutralizes LIKE pattern metacharacters in filter input so `%`
// and `_` match themselves instead of acting as wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// buildDoctorSearch translates a SearchFilter into SQL and args. Substring
// matching is literal and case-insensitive: filter values are LIKE-escaped
// and wrapped in `%` bounds at the pattern level, with an explicit ESCAPE
// clause so the escaping holds regardless of server settings.
func buildDoctorSearch(filter SearchFilter) (string, []any) {
	var q searchQuery
	if filter.Name != "" {
		q.add(`d.name ILIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(filter.Name))
	}
	if filter.Specialty != "" {
		q.add(`EXISTS (
			SELECT 1 FROM doctor_specialties ds
			JOIN specialties s ON s.id = ds.specialty_id
			WHERE ds.doctor_id = d.id AND s.name ILIKE '%%' || $%d || '%%' ESCAPE '\')`, escapeLike(filter.Specialty))
	}
	if filter.City != "" {
		q.add(`EXISTS (
			SELECT 1 FROM doctor_cities dc
			JOIN cities c ON c.id = dc.city_id
			WHERE dc.doctor_id = d.id AND c.name ILIKE '%%' || $%d || '%%' ESCAPE '\')`, escapeLike(filter.City))
	}
	return q.SQL(), q.args
}
