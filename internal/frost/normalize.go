package frost

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/frostbyte/frostrisk/internal/models"
)

// MinHourlyRecords is the minimum number of distinct hours a station-day
// needs before an assessment is attempted. Computing a nocturnal minimum
// from a handful of readings would be guesswork.
const MinHourlyRecords = 12

// BuildDay canonicalizes a raw hourly batch for one station-day: orders
// records by time, drops duplicates and records without a usable air
// temperature, clamps humidity into [0,100], and reduces the survivors to a
// DailySummary. Missing dew points stay NULL so downstream derives them.
//
// Returns ErrInsufficientData when fewer than MinHourlyRecords distinct
// hours survive validation.
func BuildDay(date time.Time, raw []models.Observation) (models.DailySummary, []models.Observation, error) {
	obs := make([]models.Observation, 0, len(raw))
	for _, o := range raw {
		if !o.AirTemp.Valid {
			continue
		}
		if o.Humidity.Valid {
			o.Humidity.Float64 = clampPercent(o.Humidity.Float64)
		}
		obs = append(obs, o)
	}

	sort.Slice(obs, func(i, j int) bool { return obs[i].ObservedAt.Before(obs[j].ObservedAt) })

	// Timestamps must be strictly increasing within the day; keep the first
	// record for any repeated hour.
	deduped := obs[:0]
	for i, o := range obs {
		if i > 0 && !o.ObservedAt.After(deduped[len(deduped)-1].ObservedAt) {
			continue
		}
		deduped = append(deduped, o)
	}
	obs = deduped

	if len(obs) < MinHourlyRecords {
		return models.DailySummary{}, nil, fmt.Errorf(
			"%w: %d of %d required hourly records for %s",
			ErrInsufficientData, len(obs), MinHourlyRecords, date.Format("2006-01-02"))
	}

	summary := summarize(date, obs)
	return summary, obs, nil
}

func summarize(date time.Time, obs []models.Observation) models.DailySummary {
	s := models.DailySummary{
		StationID:        obs[0].StationID,
		Date:             time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		ObservationCount: len(obs),
	}

	var windSum float64
	var windCount int
	var etoSum float64
	var etoCount int

	for _, o := range obs {
		accumulateMinMax(&s.AirTempMin, &s.AirTempMax, o.AirTemp)
		accumulateMinMax(&s.DewPointMin, &s.DewPointMax, o.DewPoint)
		accumulateMinMax(&s.HumidityMin, &s.HumidityMax, o.Humidity)
		if o.WindSpeed.Valid {
			windSum += o.WindSpeed.Float64
			windCount++
		}
		if o.ETo.Valid {
			etoSum += o.ETo.Float64
			etoCount++
		}
	}

	if windCount > 0 {
		s.WindSpeedAvg = sql.NullFloat64{Float64: windSum / float64(windCount), Valid: true}
	}
	if etoCount > 0 {
		s.ETo = sql.NullFloat64{Float64: etoSum, Valid: true}
	}
	return s
}

func accumulateMinMax(min, max *sql.NullFloat64, v sql.NullFloat64) {
	if !v.Valid {
		return
	}
	if !min.Valid || v.Float64 < min.Float64 {
		*min = sql.NullFloat64{Float64: v.Float64, Valid: true}
	}
	if !max.Valid || v.Float64 > max.Float64 {
		*max = sql.NullFloat64{Float64: v.Float64, Valid: true}
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
