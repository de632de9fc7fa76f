// Package directory holds the practitioner directory domain model: doctors,
// the specialties they hold, and the cities they practice in.
package directory

// Specialty is a named medical specialization. Reference data, unique by name.
type Specialty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// City is a municipality. Reference data, unique by (name, state).
type City struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Doctor is a practitioner record with its resolved relations.
type Doctor struct {
	ID                 int64       `json:"id"`
	Name               string      `json:"name"`
	RegistrationNumber string      `json:"registrationNumber"`
	Specialties        []Specialty `json:"specialties"`
	Cities             []City      `json:"cities"`
}

// SpecialtyIDs returns the ids of the doctor's associated specialties.
func (d *Doctor) SpecialtyIDs() []int64 {
	ids := make([]int64, 0, len(d.Specialties))
	for _, s := range d.Specialties {
		ids = append(ids, s.ID)
	}
	return ids
}

// CityIDs returns the ids of the doctor's associated cities.
func (d *Doctor) CityIDs() []int64 {
	ids := make([]int64, 0, len(d.Cities))
	for _, c := range d.Cities {
		ids = append(ids, c.ID)
	}
	return ids
}
