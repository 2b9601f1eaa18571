package report

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
)

const defaultPollutant = "pm25"

// Handler serves the reporting endpoints.
type Handler struct {
	store  *Store
	logger zerolog.Logger
}

// NewHandler creates a reporting handler.
func NewHandler(store *Store, logger zerolog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Router builds the chi router for the reporting API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(60, time.Minute))
	r.Use(h.requestLogger)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/pollutants", h.pollutants)
		r.Get("/latest", h.latest)
		r.Get("/series", h.series)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) pollutants(w http.ResponseWriter, r *http.Request) {
	pollutants, err := h.store.Pollutants(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pollutants": pollutants})
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	pollutant := r.URL.Query().Get("pollutant")
	if pollutant == "" {
		pollutant = defaultPollutant
	}

	values, err := h.store.Latest(r.Context(), pollutant)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pollutant": pollutant, "latest": values})
}

func (h *Handler) series(w http.ResponseWriter, r *http.Request) {
	countryID, err := strconv.ParseInt(r.URL.Query().Get("country_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "country_id is required"})
		return
	}
	pollutant := r.URL.Query().Get("pollutant")
	if pollutant == "" {
		pollutant = defaultPollutant
	}

	points, err := h.store.Series(r.Context(), countryID, pollutant)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"country_id": countryID,
		"pollutant":  pollutant,
		"series":     points,
	})
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("report query failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
