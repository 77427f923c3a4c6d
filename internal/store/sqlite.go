package store

import (
	"database/sql"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/frostbyte/frostrisk/internal/models"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
	log *zap.Logger
}

func New(db *sql.DB, loc *time.Location, log *zap.Logger) *Store {
	return &Store{db: db, loc: loc, log: log}
}

func (s *Store) UpsertStation(st models.Station) error {
	_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, latitude, longitude, elevation, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			elevation = excluded.elevation,
			active = excluded.active
	`, st.StationID, st.Name, st.Latitude, st.Longitude, st.Elevation, st.Active)
	return err
}

func (s *Store) GetActiveStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT station_id, name, latitude, longitude, elevation, active FROM stations WHERE active = TRUE ORDER BY station_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.Elevation, &st.Active); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func (s *Store) GetStation(stationID string) (*models.Station, error) {
	row := s.db.QueryRow(`SELECT station_id, name, latitude, longitude, elevation, active FROM stations WHERE station_id = ?`, stationID)
	var st models.Station
	err := row.Scan(&st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.Elevation, &st.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// NearestStation returns the active station closest to a coordinate by
// great-circle distance. The station set is small enough to scan in Go.
func (s *Store) NearestStation(lat, lon float64) (*models.Station, error) {
	stations, err := s.GetActiveStations()
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, nil
	}

	best := 0
	bestDist := haversineKm(lat, lon, stations[0].Latitude, stations[0].Longitude)
	for i := 1; i < len(stations); i++ {
		d := haversineKm(lat, lon, stations[i].Latitude, stations[i].Longitude)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return &stations[best], nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func (s *Store) InsertObservation(obs models.Observation) error {
	_, err := s.db.Exec(`
		INSERT INTO observations (station_id, observed_at, temp, humidity, dewpoint, wind_speed, solar_radiation, eto, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO UPDATE SET
			temp = excluded.temp,
			humidity = excluded.humidity,
			dewpoint = excluded.dewpoint,
			wind_speed = excluded.wind_speed,
			solar_radiation = excluded.solar_radiation,
			eto = excluded.eto,
			raw_json = excluded.raw_json
	`, obs.StationID, obs.ObservedAt, obs.AirTemp, obs.Humidity, obs.DewPoint, obs.WindSpeed, obs.SolarRadiation, obs.ETo, obs.RawJSON)
	return err
}

// InsertObservations writes a batch in one transaction and reports how many
// rows were attempted. Re-fetching a day overwrites earlier rows, so updated
// QC values from upstream replace provisional ones.
func (s *Store) InsertObservations(batch []models.Observation) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO observations (station_id, observed_at, temp, humidity, dewpoint, wind_speed, solar_radiation, eto, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO UPDATE SET
			temp = excluded.temp,
			humidity = excluded.humidity,
			dewpoint = excluded.dewpoint,
			wind_speed = excluded.wind_speed,
			solar_radiation = excluded.solar_radiation,
			eto = excluded.eto,
			raw_json = excluded.raw_json
	`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i, obs := range batch {
		if _, err := stmt.Exec(obs.StationID, obs.ObservedAt, obs.AirTemp, obs.Humidity, obs.DewPoint, obs.WindSpeed, obs.SolarRadiation, obs.ETo, obs.RawJSON); err != nil {
			tx.Rollback()
			return i, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// GetObservationsForDate returns the hourly records for one station local
// calendar day, ordered by time.
func (s *Store) GetObservationsForDate(stationID string, date time.Time) ([]models.Observation, error) {
	localDate := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	start := localDate.UTC()
	end := localDate.AddDate(0, 0, 1).UTC()

	rows, err := s.db.Query(`
		SELECT id, station_id, observed_at, temp, humidity, dewpoint, wind_speed, solar_radiation, eto, raw_json, created_at
		FROM observations
		WHERE station_id = ? AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at ASC
	`, stationID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		var obs models.Observation
		if err := rows.Scan(&obs.ID, &obs.StationID, &obs.ObservedAt, &obs.AirTemp, &obs.Humidity, &obs.DewPoint, &obs.WindSpeed, &obs.SolarRadiation, &obs.ETo, &obs.RawJSON, &obs.CreatedAt); err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

func (s *Store) UpsertDailySummary(ds models.DailySummary) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_summaries (date, station_id, temp_min, temp_max, dewpoint_min, dewpoint_max,
		    humidity_min, humidity_max, wind_speed_avg, eto, observation_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, station_id) DO UPDATE SET
			temp_min = excluded.temp_min,
			temp_max = excluded.temp_max,
			dewpoint_min = excluded.dewpoint_min,
			dewpoint_max = excluded.dewpoint_max,
			humidity_min = excluded.humidity_min,
			humidity_max = excluded.humidity_max,
			wind_speed_avg = excluded.wind_speed_avg,
			eto = excluded.eto,
			observation_count = excluded.observation_count
	`, ds.Date, ds.StationID, ds.AirTempMin, ds.AirTempMax, ds.DewPointMin, ds.DewPointMax,
		ds.HumidityMin, ds.HumidityMax, ds.WindSpeedAvg, ds.ETo, ds.ObservationCount)
	return err
}

func (s *Store) GetDailySummary(stationID string, date time.Time) (*models.DailySummary, error) {
	dateStr := date.Format("2006-01-02")
	row := s.db.QueryRow(`
		SELECT date, station_id, temp_min, temp_max, dewpoint_min, dewpoint_max, humidity_min, humidity_max, wind_speed_avg, eto, observation_count
		FROM daily_summaries
		WHERE station_id = ? AND SUBSTR(date, 1, 10) = ?
	`, stationID, dateStr)

	var ds models.DailySummary
	err := row.Scan(&ds.Date, &ds.StationID, &ds.AirTempMin, &ds.AirTempMax, &ds.DewPointMin, &ds.DewPointMax, &ds.HumidityMin, &ds.HumidityMax, &ds.WindSpeedAvg, &ds.ETo, &ds.ObservationCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// LastObservationAt returns the newest observation timestamp a station has,
// or the zero time when the station has no data yet.
func (s *Store) LastObservationAt(stationID string) (time.Time, error) {
	row := s.db.QueryRow(`SELECT observed_at FROM observations WHERE station_id = ? ORDER BY observed_at DESC LIMIT 1`, stationID)
	var at time.Time
	err := row.Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// GetObservationDates returns the distinct calendar days a station has data
// for, oldest first.
func (s *Store) GetObservationDates(stationID string) ([]time.Time, error) {
	rows, err := s.db.Query(`SELECT DISTINCT SUBSTR(observed_at, 1, 10) as date FROM observations WHERE station_id = ? ORDER BY date ASC`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, err
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}
