// Package api serves the tracked-flight snapshot and manual flight
// management over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
	"github.com/tubloo/hacs-flight-status-tracker/internal/scheduler"
	"github.com/tubloo/hacs-flight-status-tracker/internal/store/postgres"
)

type Store interface {
	CreateFlight(ctx context.Context, rec domain.FlightRecord) error
	GetFlight(ctx context.Context, key string) (domain.FlightRecord, error)
	DeleteFlight(ctx context.Context, key string) error
	DeleteManualFlights(ctx context.Context) (int64, error)
}

// Snapshots exposes the rebuild loop's published state.
type Snapshots interface {
	Snapshot() (scheduler.Snapshot, bool)
	Flight(key string) (domain.FlightRecord, bool)
}

// Triggers accepts rebuild requests without blocking.
type Triggers interface {
	TryEmit(t domain.Trigger) bool
}

// Directory fills airport timezones for manual entries.
type Directory interface {
	GetAirport(ctx context.Context, iata string) (*domain.Airport, error)
}

// ForceRefresher marks the next rebuild as forced. It is called directly so
// a full trigger buffer cannot lose the request.
type ForceRefresher interface {
	RequestForceRefresh()
}

// HealthChecker is pinged by verbose /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	store     Store
	snapshots Snapshots
	triggers  Triggers
	directory Directory
	forcer    ForceRefresher
	checks    map[string]HealthChecker
	clock     func() time.Time
	logger    zerolog.Logger
}

func NewHandler(store Store, snapshots Snapshots, triggers Triggers) *Handler {
	return &Handler{
		store:     store,
		snapshots: snapshots,
		triggers:  triggers,
		checks:    make(map[string]HealthChecker),
		clock:     time.Now,
		logger:    log.WithComponent("api"),
	}
}

func (h *Handler) WithDirectory(d Directory) *Handler {
	h.directory = d
	return h
}

func (h *Handler) WithForceRefresher(f ForceRefresher) *Handler {
	h.forcer = f
	return h
}

// WithHealthCheck adds a named component to verbose /health responses.
func (h *Handler) WithHealthCheck(name string, c HealthChecker) *Handler {
	h.checks[name] = c
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/flights" && r.Method == http.MethodGet:
		h.listFlights(w, r)

	case path == "/flights" && r.Method == http.MethodPost:
		h.createFlight(w, r)

	case path == "/flights" && r.Method == http.MethodDelete:
		h.clearManualFlights(w, r)

	case strings.HasPrefix(path, "/flights/") && r.Method == http.MethodGet:
		h.getFlight(w, r)

	case strings.HasPrefix(path, "/flights/") && r.Method == http.MethodDelete:
		h.deleteFlight(w, r)

	case path == "/refresh" && r.Method == http.MethodPost:
		h.refresh(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || len(h.checks) == 0 {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string, len(h.checks)),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = "unhealthy: " + err.Error()
		} else {
			resp.Components[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) listFlights(w http.ResponseWriter, r *http.Request) {
	resp := ListFlightsResponse{Flights: []domain.FlightRecord{}}
	if snap, ok := h.snapshots.Snapshot(); ok {
		if snap.Flights != nil {
			resp.Flights = snap.Flights
		}
		resp.BuiltAt = formatTime(snap.BuiltAt)
		if snap.NextRefresh != nil {
			resp.NextRefresh = formatTime(*snap.NextRefresh)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createFlight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateFlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	normalizeCreateFlight(&req)
	if err := validateCreateFlight(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.DepTZ = h.resolveTZ(r.Context(), req.DepAirport, req.DepTZ)
	req.ArrTZ = h.resolveTZ(r.Context(), req.ArrAirport, req.ArrTZ)

	rec, err := buildRecord(req, location(req.DepTZ), location(req.ArrTZ))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateFlight(r.Context(), rec); err != nil {
		if errors.Is(err, postgres.ErrDuplicate) {
			writeError(w, http.StatusConflict, "flight already exists")
			return
		}
		h.logger.Error().Err(err).Str("flight_key", rec.FlightKey).Msg("create flight failed")
		writeError(w, http.StatusInternalServerError, "failed to create flight")
		return
	}

	h.trigger(domain.TriggerFlightAdded, rec.FlightKey)
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) getFlight(w http.ResponseWriter, r *http.Request) {
	key, ok := flightKeyFromPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if rec, ok := h.snapshots.Flight(key); ok {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	// Stored but outside the tracked window or not yet rebuilt.
	rec, err := h.store.GetFlight(r.Context(), key)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "flight not found")
			return
		}
		h.logger.Error().Err(err).Str("flight_key", key).Msg("get flight failed")
		writeError(w, http.StatusInternalServerError, "failed to get flight")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteFlight(w http.ResponseWriter, r *http.Request) {
	key, ok := flightKeyFromPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.store.DeleteFlight(r.Context(), key); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "flight not found")
			return
		}
		h.logger.Error().Err(err).Str("flight_key", key).Msg("delete flight failed")
		writeError(w, http.StatusInternalServerError, "failed to delete flight")
		return
	}

	h.trigger(domain.TriggerFlightRemoved, key)
	w.WriteHeader(http.StatusNoContent)
}

// clearManualFlights removes every manually entered flight.
func (h *Handler) clearManualFlights(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteManualFlights(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("clear manual flights failed")
		writeError(w, http.StatusInternalServerError, "failed to clear flights")
		return
	}

	h.logger.Info().Int64("deleted", n).Msg("manual flights cleared")
	if n > 0 {
		h.trigger(domain.TriggerFlightRemoved, "")
	}
	writeJSON(w, http.StatusOK, ClearFlightsResponse{Deleted: n})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if h.forcer != nil {
		h.forcer.RequestForceRefresh()
	}
	h.trigger(domain.TriggerForceRefresh, "")
	writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "accepted"})
}

func (h *Handler) trigger(reason domain.TriggerReason, key string) {
	t := domain.Trigger{Reason: reason, FlightKey: key, At: h.clock().UTC()}
	if !h.triggers.TryEmit(t) {
		h.logger.Debug().Str("reason", string(reason)).Msg("rebuild already pending")
	}
}

// resolveTZ prefers the explicit zone and falls back to the directory.
func (h *Handler) resolveTZ(ctx context.Context, iata, tz string) string {
	if tz != "" || h.directory == nil {
		return tz
	}
	ap, err := h.directory.GetAirport(ctx, iata)
	if err != nil {
		h.logger.Debug().Err(err).Str("iata", iata).Msg("airport timezone unknown")
		return ""
	}
	return ap.TZ
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := normalize.LoadZone(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// flightKeyFromPath extracts the key from /flights/{key}.
func flightKeyFromPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "flights" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Warn().Err(err).Str("component", "api").Msg("json encode error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
