package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"medidir/internal/directory"
	"medidir/pkg/domainerrors"
)

// listMeta is the pagination envelope of the doctors listing.
type listMeta struct {
	Page       int `json:"page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type doctorList struct {
	Data []directory.Doctor `json:"data"`
	Meta listMeta           `json:"meta"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type validationResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error to its fixed response shape. Unrecognized
// errors surface as a generic 500; callers log the detail.
func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	status := domainerrors.ToHTTPStatus(code)

	message := "internal server error"
	var de *domainerrors.Error
	if errors.As(err, &de) && code != domainerrors.CodeInternal {
		message = de.Message
	}
	writeJSON(w, status, messageResponse{Message: message})
}

func writeValidationError(w http.ResponseWriter, fields []fieldError) {
	writeJSON(w, http.StatusBadRequest, validationResponse{
		Error:  string(domainerrors.CodeValidation),
		Fields: fields,
	})
}
