package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"medidir/internal/directory/store"
	"medidir/internal/platform/metrics"
	"medidir/internal/platform/middleware"
	"medidir/pkg/domainerrors"
	"medidir/pkg/platform/sentinel"
)

// Handler serves the directory API. It holds no per-request state; all side
// effects go through the store.
type Handler struct {
	logger  *slog.Logger
	store   store.Store
	metrics *metrics.Metrics
}

// New creates a directory Handler. metrics may be nil, which disables
// recording (handler tests rely on this).
func New(s store.Store, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		store:   s,
		metrics: m,
	}
}

// Register mounts the directory routes under /api/v1.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.Latency(h.metrics))

	api.Get("/health", h.handleHealth)
	api.Get("/specialties", h.handleListSpecialties)
	api.Get("/cities", h.handleListCities)
	api.Get("/doctors", h.handleListDoctors)
	api.Get("/search/doctors", h.handleSearchDoctors)
	api.Get("/doctors/{id}", h.handleGetDoctor)
	api.Post("/doctors", h.handleCreateDoctor)
	api.Put("/doctors/{id}", h.handleReplaceDoctor)
	api.Delete("/doctors/{id}", h.handleDeleteDoctor)

	r.Mount("/api/v1", api)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "connected"})
}

func (h *Handler) handleListSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.store.ListSpecialties(r.Context())
	if err != nil {
		h.logInternal(r, "list specialties", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specialties)
}

func (h *Handler) handleListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.store.ListCities(r.Context())
	if err != nil {
		h.logInternal(r, "list cities", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (h *Handler) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	doctors, total, err := h.store.ListDoctors(r.Context(), store.Page{
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		h.logInternal(r, "list doctors", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doctorList{
		Data: doctors,
		Meta: listMeta{
			Page:       page,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

func (h *Handler) handleSearchDoctors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SearchFilter{
		Name:      q.Get("name"),
		Specialty: q.Get("specialty"),
		City:      q.Get("city"),
	}

	doctors, err := h.store.SearchDoctors(r.Context(), filter)
	if err != nil {
		h.logInternal(r, "search doctors", err)
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementSearches()
	}
	writeJSON(w, http.StatusOK, doctors)
}

func (h *Handler) handleGetDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	doctor, err := h.store.GetDoctor(r.Context(), id)
	if err != nil {
		writeError(w, h.mapStoreError(r, "get doctor", err))
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

func (h *Handler) handleCreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req doctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(r.Context(), "invalid create doctor request",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if fields := validateRequest(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	doctor, err := h.store.CreateDoctor(r.Context(), req.toNewDoctor())
	if err != nil {
		writeError(w, h.mapStoreError(r, "create doctor", err))
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementDoctorsCreated()
	}
	writeJSON(w, http.StatusCreated, doctor)
}

func (h *Handler) handleReplaceDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req doctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(r.Context(), "invalid replace doctor request",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if fields := validateRequest(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	doctor, err := h.store.ReplaceDoctor(r.Context(), id, req.toNewDoctor())
	if err != nil {
		writeError(w, h.mapStoreError(r, "replace doctor", err))
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

func (h *Handler) handleDeleteDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.DeleteDoctor(r.Context(), id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// DELETE of a missing doctor is a bare 404, no body.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logInternal(r, "delete doctor", err)
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementDoctorsDeleted()
	}
	w.WriteHeader(http.StatusNoContent)
}

// mapStoreError translates store sentinels into domain errors and logs
// anything unrecognized as internal.
func (h *Handler) mapStoreError(r *http.Request, op string, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerrors.New(domainerrors.CodeNotFound, "doctor not found")
	case errors.Is(err, sentinel.ErrConflict):
		return domainerrors.New(domainerrors.CodeConflict, "registration number already registered")
	case errors.Is(err, sentinel.ErrInvalidReference):
		return domainerrors.New(domainerrors.CodeInvalidReference, "unknown specialty or city id")
	default:
		h.logInternal(r, op, err)
		return domainerrors.Wrap(domainerrors.CodeInternal, op, err)
	}
}

func (h *Handler) logInternal(r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "store operation failed",
		"op", op,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
