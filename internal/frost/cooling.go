package frost

import (
	"fmt"
	"math"
	"time"

	"github.com/frostbyte/frostrisk/internal/models"
)

// Confidence qualifies how a cooling estimate's decay rate was obtained.
type Confidence string

const (
	// ConfidenceMeasured means wind and humidity observations modulated the
	// decay rate.
	ConfidenceMeasured Confidence = "measured"
	// ConfidenceDerived means the rate was fitted from the temperature trend
	// alone because wind or humidity was missing.
	ConfidenceDerived Confidence = "derived"
)

// CoolingConfig holds the policy constants of the nocturnal cooling model.
// The calibration of the original system was not available to verify
// bit-exactly, so everything here is tunable rather than hard-coded.
type CoolingConfig struct {
	BaseDecayRate   float64 // 1/h, clear-calm-dry reference rate
	WindDamping     float64 // per m/s; mixing suppresses the inversion
	HumidityDamping float64 // per unit RH fraction; moisture retains heat
	FloorC          float64 // °C, lower bound against runaway extrapolation
	HorizonHours    float64 // forecast horizon to sunrise
	EveningHour     int     // local hour from which observations anchor the curve
	MinDecayRate    float64 // 1/h, clamp for trend-fitted rates
	MaxDecayRate    float64 // 1/h
}

// DefaultCoolingConfig returns the shipped policy constants.
func DefaultCoolingConfig() CoolingConfig {
	return CoolingConfig{
		BaseDecayRate:   0.22,
		WindDamping:     0.35,
		HumidityDamping: 0.9,
		FloorC:          -15.0,
		HorizonHours:    8.0,
		EveningHour:     18,
		MinDecayRate:    0.02,
		MaxDecayRate:    0.60,
	}
}

// CoolingEstimate is the predicted minimum nocturnal temperature for one
// station-day, produced once per assessment request.
type CoolingEstimate struct {
	PredictedMinC float64
	DecayRate     float64 // 1/h
	AnchorTempC   float64
	AnchorTime    time.Time
	HorizonHours  float64
	Confidence    Confidence
}

// EstimateCooling extrapolates the overnight minimum from the evening
// observation sequence using an exponential decay toward the configured
// floor, anchored at the last observed evening temperature:
//
//	T(h) = floor + (T0 - floor) · exp(-k·h)
//
// Wind and humidity both slow radiative cooling, so when measured they
// damp the decay rate; without them the rate is fitted from the observed
// evening temperature trend and the estimate is marked "derived". The curve
// is monotonically non-increasing and never falls below the floor. Identical
// inputs always reproduce the same estimate.
func EstimateCooling(cfg CoolingConfig, obs []models.Observation) (CoolingEstimate, error) {
	evening := eveningWindow(cfg, obs)
	if len(evening) == 0 {
		return CoolingEstimate{}, fmt.Errorf("%w: no evening observations to anchor cooling curve", ErrInsufficientData)
	}

	anchor := evening[len(evening)-1]
	t0 := anchor.AirTemp.Float64

	est := CoolingEstimate{
		AnchorTempC:  t0,
		AnchorTime:   anchor.ObservedAt,
		HorizonHours: cfg.HorizonHours,
	}

	wind, haveWind := meanField(evening, func(o models.Observation) (float64, bool) {
		return o.WindSpeed.Float64, o.WindSpeed.Valid
	})
	rh, haveRH := meanField(evening, func(o models.Observation) (float64, bool) {
		return o.Humidity.Float64, o.Humidity.Valid
	})

	if haveWind && haveRH {
		est.DecayRate = cfg.BaseDecayRate / ((1 + cfg.WindDamping*wind) * (1 + cfg.HumidityDamping*rh/100))
		est.Confidence = ConfidenceMeasured
	} else {
		est.DecayRate = trendDecayRate(cfg, evening, t0)
		est.Confidence = ConfidenceDerived
	}

	est.PredictedMinC = coolingCurve(cfg.FloorC, t0, est.DecayRate, cfg.HorizonHours)
	return est, nil
}

// Curve evaluates the estimate's cooling curve h hours past the anchor.
func (e CoolingEstimate) Curve(floorC, h float64) float64 {
	return coolingCurve(floorC, e.AnchorTempC, e.DecayRate, h)
}

func coolingCurve(floor, t0, k, h float64) float64 {
	if t0 <= floor {
		// Already below the floor: no further extrapolated cooling.
		return t0
	}
	if h < 0 {
		h = 0
	}
	return floor + (t0-floor)*math.Exp(-k*h)
}

// eveningWindow returns the observations from the configured evening hour
// onward, falling back to the last quarter of the day when the batch ends
// early.
func eveningWindow(cfg CoolingConfig, obs []models.Observation) []models.Observation {
	var evening []models.Observation
	for _, o := range obs {
		if !o.AirTemp.Valid {
			continue
		}
		if o.ObservedAt.Hour() >= cfg.EveningHour {
			evening = append(evening, o)
		}
	}
	if len(evening) > 0 {
		return evening
	}
	// Partial day: anchor on whatever the tail of the record shows.
	n := len(obs) / 4
	if n == 0 {
		n = len(obs)
	}
	for _, o := range obs[len(obs)-n:] {
		if o.AirTemp.Valid {
			evening = append(evening, o)
		}
	}
	return evening
}

// trendDecayRate fits the decay rate from the observed evening temperature
// drop alone, for nights where wind or humidity is unavailable.
func trendDecayRate(cfg CoolingConfig, evening []models.Observation, t0 float64) float64 {
	if len(evening) < 2 || t0 <= cfg.FloorC {
		return cfg.BaseDecayRate
	}
	first := evening[0]
	last := evening[len(evening)-1]
	hours := last.ObservedAt.Sub(first.ObservedAt).Hours()
	if hours <= 0 {
		return cfg.BaseDecayRate
	}
	dropPerHour := (first.AirTemp.Float64 - last.AirTemp.Float64) / hours
	k := dropPerHour / (t0 - cfg.FloorC)
	if k < cfg.MinDecayRate {
		return cfg.MinDecayRate
	}
	if k > cfg.MaxDecayRate {
		return cfg.MaxDecayRate
	}
	return k
}

func meanField(obs []models.Observation, get func(models.Observation) (float64, bool)) (float64, bool) {
	var sum float64
	var n int
	for _, o := range obs {
		if v, ok := get(o); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
