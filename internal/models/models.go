package models

import (
	"database/sql"
	"time"
)

type Station struct {
	StationID string
	Name      string
	Latitude  float64
	Longitude float64
	Elevation float64
	Active    bool
}

// Observation is one hourly CIMIS record for a station. CIMIS reports many
// items as optional; anything the provider omitted stays NULL rather than
// being defaulted.
type Observation struct {
	ID             int64
	StationID      string
	ObservedAt     time.Time
	AirTemp        sql.NullFloat64 // °C
	Humidity       sql.NullFloat64 // %
	DewPoint       sql.NullFloat64 // °C
	WindSpeed      sql.NullFloat64 // m/s
	SolarRadiation sql.NullFloat64 // W/m²
	ETo            sql.NullFloat64 // mm
	RawJSON        string
	CreatedAt      time.Time
}

// DailySummary aggregates one station-day of hourly observations. Closed
// (past) days are immutable; the current day is recomputed on refresh.
type DailySummary struct {
	StationID        string
	Date             time.Time
	AirTempMin       sql.NullFloat64
	AirTempMax       sql.NullFloat64
	DewPointMin      sql.NullFloat64
	DewPointMax      sql.NullFloat64
	HumidityMin      sql.NullFloat64
	HumidityMax      sql.NullFloat64
	WindSpeedAvg     sql.NullFloat64
	ETo              sql.NullFloat64
	ObservationCount int
}
