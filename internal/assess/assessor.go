// Package assess assembles frost-risk assessments: it resolves the station,
// sources the station-day observations, runs the physics chain, and evaluates
// every phenological stage.
package assess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/frostbyte/frostrisk/internal/cache"
	"github.com/frostbyte/frostrisk/internal/frost"
	"github.com/frostbyte/frostrisk/internal/metrics"
	"github.com/frostbyte/frostrisk/internal/models"
	"github.com/frostbyte/frostrisk/internal/store"
)

// WeatherSource fetches hourly records for a station-day when the store has
// too few.
type WeatherSource interface {
	FetchHourly(ctx context.Context, stationID string, date time.Time) ([]models.Observation, string, error)
}

type Config struct {
	// DefaultStationID anchors requests that name no station and no
	// coordinates.
	DefaultStationID string
	// OrchardDeltaC is the calibration offset between wet-bulb and blossom
	// tissue temperature.
	OrchardDeltaC float64
	Cooling       frost.CoolingConfig
	Breakpoints   frost.Breakpoints
}

func DefaultConfig() Config {
	return Config{
		DefaultStationID: "145",
		OrchardDeltaC:    1.0,
		Cooling:          frost.DefaultCoolingConfig(),
		Breakpoints:      frost.DefaultBreakpoints(),
	}
}

// Request asks for an assessment of one station-day. Station resolution, in
// order: explicit StationID, nearest active station to the coordinates, the
// configured default.
type Request struct {
	StationID string
	Latitude  *float64
	Longitude *float64
	Date      time.Time
	Crop      string
	Variety   string
	Stage     frost.Stage
}

type Assessor struct {
	store  *store.Store
	source WeatherSource
	params *frost.ParamTable
	cache  *cache.Cache
	clock  clockwork.Clock
	loc    *time.Location
	cfg    Config
	log    *zap.Logger
}

func New(st *store.Store, source WeatherSource, params *frost.ParamTable, c *cache.Cache, clock clockwork.Clock, loc *time.Location, cfg Config, log *zap.Logger) *Assessor {
	return &Assessor{
		store:  st,
		source: source,
		params: params,
		cache:  c,
		clock:  clock,
		loc:    loc,
		cfg:    cfg,
		log:    log,
	}
}

// Assess computes or retrieves the frost-risk assessment for a request.
// Results are shared across concurrent identical requests and cached per
// station-day; selecting a different stage reuses the cached physics.
func (a *Assessor) Assess(ctx context.Context, req Request) (*frost.Assessment, error) {
	localDate := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, a.loc)
	today := a.clock.Now().In(a.loc)
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, a.loc)
	if localDate.After(todayDate) {
		return nil, fmt.Errorf("%w: %s", frost.ErrInvalidDate, localDate.Format("2006-01-02"))
	}

	// Reject unknown stage parameters before any upstream work.
	if _, err := a.params.Lookup(req.Crop, req.Variety, req.Stage); err != nil {
		return nil, err
	}

	station, err := a.resolveStation(req)
	if err != nil {
		return nil, err
	}

	key := cache.Key{
		StationID: station.StationID,
		Date:      localDate.Format("2006-01-02"),
		Crop:      req.Crop,
		Variety:   req.Variety,
	}
	result, err := a.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*frost.Assessment, error) {
		asmt, err := a.compute(ctx, station, localDate, req)
		if err != nil {
			metrics.AssessmentErrors.WithLabelValues(errorReason(err)).Inc()
			return nil, err
		}
		metrics.AssessmentsComputed.WithLabelValues(string(asmt.Headline().Level)).Inc()
		return asmt, nil
	})
	if err != nil {
		return nil, err
	}

	if result.Selected != req.Stage {
		reselected, ok := result.Reselect(req.Stage)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s stage %q", frost.ErrUnknownStageParameters, req.Crop, req.Variety, req.Stage)
		}
		return reselected, nil
	}
	return result, nil
}

func (a *Assessor) resolveStation(req Request) (*models.Station, error) {
	stationID := req.StationID
	if stationID == "" && req.Latitude != nil && req.Longitude != nil {
		nearest, err := a.store.NearestStation(*req.Latitude, *req.Longitude)
		if err != nil {
			return nil, err
		}
		if nearest != nil {
			return nearest, nil
		}
	}
	if stationID == "" {
		stationID = a.cfg.DefaultStationID
	}

	station, err := a.store.GetStation(stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		// Unknown to the store; assess against the bare ID anyway.
		station = &models.Station{StationID: stationID}
	}
	return station, nil
}

func (a *Assessor) compute(ctx context.Context, station *models.Station, date time.Time, req Request) (*frost.Assessment, error) {
	raw, err := a.observations(ctx, station.StationID, date)
	if err != nil {
		return nil, err
	}

	summary, obs, err := frost.BuildDay(date, raw)
	if err != nil {
		return nil, err
	}
	if err := a.store.UpsertDailySummary(summary); err != nil {
		a.log.Warn("upsert daily summary", zap.String("station", station.StationID), zap.Error(err))
	}

	// The evening window is defined in station local hours.
	localObs := make([]models.Observation, len(obs))
	copy(localObs, obs)
	for i := range localObs {
		localObs[i].ObservedAt = localObs[i].ObservedAt.In(a.loc)
	}
	cooling, err := frost.EstimateCooling(a.cfg.Cooling, localObs)
	if err != nil {
		return nil, err
	}

	// The exposure temperature is the colder of the observed daily minimum
	// and the extrapolated overnight minimum.
	minObs := coldestObservation(obs)
	exposure := minObs.AirTemp.Float64
	if cooling.PredictedMinC < exposure {
		exposure = cooling.PredictedMinC
	}

	humidity, dewPoint := nightMoisture(minObs, obs)
	psychro, err := frost.Psychrometrics(exposure, humidity, dewPoint)
	if err != nil {
		return nil, err
	}
	blossom := psychro.WetBulb - a.cfg.OrchardDeltaC

	stageParams, err := a.params.StagesFor(req.Crop, req.Variety)
	if err != nil {
		return nil, err
	}

	stages := make(map[frost.Stage]frost.StageRisk, len(stageParams))
	for stage, p := range stageParams {
		prob := frost.DamageProbability(p, blossom)
		lt10, lt90 := frost.LethalTemps(p)
		stages[stage] = frost.StageRisk{
			Stage:       stage,
			Probability: prob,
			Index:       frost.ProbabilityIndex(prob),
			Level:       a.cfg.Breakpoints.Classify(prob),
			LT10:        lt10,
			LT90:        lt90,
			A:           p.A,
			B:           p.B,
		}
	}

	return &frost.Assessment{
		StationID:   station.StationID,
		StationName: station.Name,
		Latitude:    station.Latitude,
		Longitude:   station.Longitude,
		Date:        date,
		Crop:        req.Crop,
		Variety:     req.Variety,
		Selected:    req.Stage,
		Stages:      stages,
		BlossomTemp: blossom,
		AirTempMin:  summary.AirTempMin.Float64,
		Summary:     summary,
		Cooling:     cooling,
		Psychro:     psychro,
		Hourly:      hourlySlice(obs),
		ComputedAt:  a.clock.Now().UTC(),
	}, nil
}

// observations is store-first: the upstream API is only consulted when the
// local copy of the day is too thin to assess.
func (a *Assessor) observations(ctx context.Context, stationID string, date time.Time) ([]models.Observation, error) {
	stored, err := a.store.GetObservationsForDate(stationID, date)
	if err != nil {
		return nil, err
	}
	if len(stored) >= frost.MinHourlyRecords {
		return stored, nil
	}

	fetched, _, err := a.source.FetchHourly(ctx, stationID, date)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return stored, nil
	}
	if n, err := a.store.InsertObservations(fetched); err != nil {
		a.log.Warn("persist fetched observations", zap.String("station", stationID), zap.Error(err))
	} else {
		metrics.ObservationsIngested.WithLabelValues(stationID).Add(float64(n))
	}
	return fetched, nil
}

func coldestObservation(obs []models.Observation) models.Observation {
	coldest := obs[0]
	for _, o := range obs[1:] {
		if o.AirTemp.Float64 < coldest.AirTemp.Float64 {
			coldest = o
		}
	}
	return coldest
}

// nightMoisture picks the humidity and measured dew point accompanying the
// exposure temperature: the coldest hour's own values when present, otherwise
// the wettest hour of the day.
func nightMoisture(minObs models.Observation, obs []models.Observation) (float64, *float64) {
	var dewPoint *float64
	if minObs.DewPoint.Valid {
		v := minObs.DewPoint.Float64
		dewPoint = &v
	}
	if minObs.Humidity.Valid {
		return minObs.Humidity.Float64, dewPoint
	}

	best := -1.0
	for _, o := range obs {
		if o.Humidity.Valid && o.Humidity.Float64 > best {
			best = o.Humidity.Float64
		}
	}
	return best, dewPoint
}

func hourlySlice(obs []models.Observation) []frost.HourlyObservation {
	out := make([]frost.HourlyObservation, 0, len(obs))
	for _, o := range obs {
		out = append(out, frost.HourlyObservation{
			Time:      o.ObservedAt,
			AirTemp:   nullablePtr(o.AirTemp.Float64, o.AirTemp.Valid),
			Humidity:  nullablePtr(o.Humidity.Float64, o.Humidity.Valid),
			DewPoint:  nullablePtr(o.DewPoint.Float64, o.DewPoint.Valid),
			WindSpeed: nullablePtr(o.WindSpeed.Float64, o.WindSpeed.Valid),
		})
	}
	return out
}

func nullablePtr(v float64, valid bool) *float64 {
	if !valid {
		return nil
	}
	return &v
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, frost.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, frost.ErrOutOfDomain):
		return "out_of_domain"
	case errors.Is(err, frost.ErrUnknownStageParameters):
		return "unknown_parameters"
	case errors.Is(err, frost.ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, frost.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}
