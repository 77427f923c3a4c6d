// Package api serves the frost-risk HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/frostbyte/frostrisk/internal/assess"
	"github.com/frostbyte/frostrisk/internal/frost"
	"github.com/frostbyte/frostrisk/internal/store"
)

type Server struct {
	assessor *assess.Assessor
	store    *store.Store
	clock    clockwork.Clock
	port     string
	loc      *time.Location
	log      *zap.Logger
}

func NewServer(assessor *assess.Assessor, st *store.Store, clock clockwork.Clock, port string, loc *time.Location, log *zap.Logger) *Server {
	return &Server{
		assessor: assessor,
		store:    st,
		clock:    clock,
		port:     port,
		loc:      loc,
		log:      log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/frost-risk", s.handleFrostRisk)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stations", s.handleAPIStations)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleFrostRisk answers GET /frost-risk with a GeoJSON feature. Query
// parameters: date (2006-01-02, default today), station (CIMIS station
// number), lat/lon (nearest-station fallback), crop, variety, stage.
func (s *Server) handleFrostRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()

	date := s.clock.Now().In(s.loc)
	if v := q.Get("date"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		date = parsed
	}

	crop := q.Get("crop")
	if crop == "" {
		crop = "almond"
	}
	variety := q.Get("variety")
	if variety == "" {
		variety = "nonpareil"
	}

	stageName := q.Get("stage")
	if stageName == "" {
		stageName = string(frost.StagePinkbud)
	}
	stage, ok := frost.ParseStage(stageName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown stage "+strconv.Quote(stageName))
		return
	}

	req := assess.Request{
		StationID: q.Get("station"),
		Date:      date,
		Crop:      crop,
		Variety:   variety,
		Stage:     stage,
	}
	if latStr, lonStr := q.Get("lat"), q.Get("lon"); latStr != "" && lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			writeError(w, http.StatusBadRequest, "invalid lat/lon")
			return
		}
		req.Latitude = &lat
		req.Longitude = &lon
	}

	assessment, err := s.assessor.Assess(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("assessment failed", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, NewFeature(assessment))
}

type stationHealth struct {
	StationID       string `json:"stationId"`
	LastObservation string `json:"lastObservation,omitempty"`
	StaleHours      int    `json:"staleHours"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	now := s.clock.Now().UTC()
	var stations []stationHealth
	if active, err := s.store.GetActiveStations(); err == nil {
		for _, st := range active {
			h := stationHealth{StationID: st.StationID}
			if at, err := s.store.LastObservationAt(st.StationID); err == nil && !at.IsZero() {
				h.LastObservation = at.UTC().Format(time.RFC3339)
				h.StaleHours = int(now.Sub(at).Hours())
			}
			stations = append(stations, h)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"schema_version": version,
		"time":           now.Format(time.RFC3339),
		"stations":       stations,
	})
}

func (s *Server) handleAPIStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		s.log.Error("list stations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

// statusForError maps the engine's failure taxonomy onto HTTP. Requests the
// caller can fix are 4xx; upstream weather-source trouble surfaces as a
// gateway error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, frost.ErrInvalidDate), errors.Is(err, frost.ErrUnknownStageParameters):
		return http.StatusBadRequest
	case errors.Is(err, frost.ErrOutOfDomain):
		return http.StatusUnprocessableEntity
	case errors.Is(err, frost.ErrInsufficientData):
		return http.StatusNotFound
	case errors.Is(err, frost.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, frost.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
