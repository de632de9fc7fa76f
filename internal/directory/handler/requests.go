package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"medidir/internal/directory/store"
	"medidir/pkg/domainerrors"
	"medidir/pkg/platform/sliceutil"
)

// doctorRequest is the create/replace body. Tags mirror the input contract:
// name at least 3 chars, registration number at least 4, at least one
// specialty and one city, all relation ids positive.
type doctorRequest struct {
	Name               string  `json:"name" validate:"required,min=3"`
	RegistrationNumber string  `json:"registrationNumber" validate:"required,min=4"`
	Specialties        []int64 `json:"specialties" validate:"required,min=1,dive,gt=0"`
	Cities             []int64 `json:"cities" validate:"required,min=1,dive,gt=0"`
}

// toNewDoctor converts the validated body into the store input, deduplicating
// the relation id sets so repeated ids cannot inflate join inserts.
func (r doctorRequest) toNewDoctor() store.NewDoctor {
	return store.NewDoctor{
		Name:               r.Name,
		RegistrationNumber: r.RegistrationNumber,
		SpecialtyIDs:       sliceutil.Dedupe(r.Specialties),
		CityIDs:            sliceutil.Dedupe(r.Cities),
	}
}

// fieldError is one entry of the field-level validation detail.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest runs struct validation and flattens failures into
// field-level detail for the 400 response.
func validateRequest(r doctorRequest) []fieldError {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Field: "body", Rule: "invalid"}}
	}
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		out = append(out, fieldError{Field: fe.Field(), Rule: rule})
	}
	return out
}

// pathID parses the {id} route parameter.
func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domainerrors.New(domainerrors.CodeBadRequest, "id must be a positive integer")
	}
	return id, nil
}

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// pagination coerces page/limit query parameters, defaulting page=1 and
// limit=10 and clamping limit to 1..100. Non-numeric input is a 400.
func pagination(r *http.Request) (page, limit int, err error) {
	page, err = queryInt(r, "page", defaultPage)
	if err != nil {
		return 0, 0, err
	}
	limit, err = queryInt(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domainerrors.New(domainerrors.CodeBadRequest, fmt.Sprintf("%s must be an integer", key))
	}
	return v, nil
}
