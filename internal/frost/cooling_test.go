package frost

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/frostbyte/frostrisk/internal/models"
)

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func hourlyObs(t *testing.T, station string, day time.Time, temps map[int]float64, wind, rh *float64) []models.Observation {
	t.Helper()
	var obs []models.Observation
	for hour := 0; hour < 24; hour++ {
		temp, ok := temps[hour]
		if !ok {
			continue
		}
		o := models.Observation{
			StationID:  station,
			ObservedAt: day.Add(time.Duration(hour) * time.Hour),
			AirTemp:    nf(temp),
		}
		if wind != nil {
			o.WindSpeed = nf(*wind)
		}
		if rh != nil {
			o.Humidity = nf(*rh)
		}
		obs = append(obs, o)
	}
	return obs
}

func eveningTemps() map[int]float64 {
	temps := make(map[int]float64)
	for h := 0; h < 18; h++ {
		temps[h] = 10.0
	}
	temps[18] = 8.0
	temps[19] = 6.5
	temps[20] = 5.0
	temps[21] = 4.0
	temps[22] = 3.2
	temps[23] = 2.5
	return temps
}

func TestEstimateCoolingMeasured(t *testing.T) {
	day := time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC)
	wind, rh := 0.5, 80.0
	obs := hourlyObs(t, "145", day, eveningTemps(), &wind, &rh)

	cfg := DefaultCoolingConfig()
	est, err := EstimateCooling(cfg, obs)
	if err != nil {
		t.Fatalf("EstimateCooling() error = %v", err)
	}
	if est.Confidence != ConfidenceMeasured {
		t.Errorf("Confidence = %v, want %v", est.Confidence, ConfidenceMeasured)
	}
	if est.AnchorTempC != 2.5 {
		t.Errorf("AnchorTempC = %v, want 2.5", est.AnchorTempC)
	}
	if est.PredictedMinC >= est.AnchorTempC {
		t.Errorf("PredictedMinC = %v, want below anchor %v", est.PredictedMinC, est.AnchorTempC)
	}
	if est.PredictedMinC < cfg.FloorC {
		t.Errorf("PredictedMinC = %v fell below floor %v", est.PredictedMinC, cfg.FloorC)
	}
}

func TestEstimateCoolingWindSlowsCooling(t *testing.T) {
	day := time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC)
	rh := 60.0
	calm, windy := 0.2, 6.0

	calmObs := hourlyObs(t, "145", day, eveningTemps(), &calm, &rh)
	windyObs := hourlyObs(t, "145", day, eveningTemps(), &windy, &rh)

	cfg := DefaultCoolingConfig()
	calmEst, err := EstimateCooling(cfg, calmObs)
	if err != nil {
		t.Fatal(err)
	}
	windyEst, err := EstimateCooling(cfg, windyObs)
	if err != nil {
		t.Fatal(err)
	}
	if windyEst.PredictedMinC <= calmEst.PredictedMinC {
		t.Errorf("windy min %v not warmer than calm min %v", windyEst.PredictedMinC, calmEst.PredictedMinC)
	}
}

func TestEstimateCoolingDerivedWithoutWind(t *testing.T) {
	day := time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC)
	obs := hourlyObs(t, "145", day, eveningTemps(), nil, nil)

	est, err := EstimateCooling(DefaultCoolingConfig(), obs)
	if err != nil {
		t.Fatal(err)
	}
	if est.Confidence != ConfidenceDerived {
		t.Errorf("Confidence = %v, want %v", est.Confidence, ConfidenceDerived)
	}
}

func TestEstimateCoolingNoObservations(t *testing.T) {
	_, err := EstimateCooling(DefaultCoolingConfig(), nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("error = %v, want ErrInsufficientData", err)
	}
}

func TestCoolingCurveMonotoneAndFloored(t *testing.T) {
	cfg := DefaultCoolingConfig()
	est := CoolingEstimate{AnchorTempC: 3.0, DecayRate: 0.25}

	prev := est.Curve(cfg.FloorC, 0)
	if prev != 3.0 {
		t.Fatalf("Curve(0) = %v, want anchor 3.0", prev)
	}
	for h := 0.5; h <= 48; h += 0.5 {
		cur := est.Curve(cfg.FloorC, h)
		if cur > prev {
			t.Fatalf("curve increased from %v to %v at h=%v", prev, cur, h)
		}
		if cur < cfg.FloorC {
			t.Fatalf("curve fell below floor: %v at h=%v", cur, h)
		}
		prev = cur
	}
}

func TestCoolingCurveAnchorBelowFloor(t *testing.T) {
	est := CoolingEstimate{AnchorTempC: -20.0, DecayRate: 0.25}
	if got := est.Curve(-15.0, 8); got != -20.0 {
		t.Errorf("Curve() = %v, want anchor -20.0 when already below floor", got)
	}
}
