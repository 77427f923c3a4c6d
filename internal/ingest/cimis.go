// Package ingest fetches hourly weather records from the CIMIS REST API and
// maps them into storable observations.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/frostbyte/frostrisk/internal/frost"
	"github.com/frostbyte/frostrisk/internal/httputil"
	"github.com/frostbyte/frostrisk/internal/metrics"
	"github.com/frostbyte/frostrisk/internal/models"
)

const (
	DefaultBaseURL = "https://et.water.ca.gov/api/data"

	// Hourly data items requested per station-day, metric units.
	hourlyDataItems = "hly-air-tmp,hly-rel-hum,hly-dew-pnt,hly-wind-spd,hly-sol-rad,hly-eto"
)

type CIMIS struct {
	appKey  string
	baseURL string
	loc     *time.Location
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewCIMIS(appKey, baseURL string, loc *time.Location, log *zap.Logger) *CIMIS {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cimis",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &CIMIS{
		appKey:  appKey,
		baseURL: baseURL,
		loc:     loc,
		client:  httputil.NewClient(),
		breaker: breaker,
		log:     log,
	}
}

// CIMIS wraps every field in a {Value, Qc, Unit} envelope. Value arrives as a
// string or null.
type cimisValue struct {
	Value *string `json:"Value"`
	Qc    string  `json:"Qc"`
	Unit  string  `json:"Unit"`
}

type cimisRecord struct {
	Date       string     `json:"Date"`
	Hour       string     `json:"Hour"`
	Station    string     `json:"Station"`
	HlyAirTmp  cimisValue `json:"HlyAirTmp"`
	HlyRelHum  cimisValue `json:"HlyRelHum"`
	HlyDewPnt  cimisValue `json:"HlyDewPnt"`
	HlyWindSpd cimisValue `json:"HlyWindSpd"`
	HlySolRad  cimisValue `json:"HlySolRad"`
	HlyEto     cimisValue `json:"HlyEto"`
}

type cimisResponse struct {
	Data struct {
		Providers []struct {
			Name    string        `json:"Name"`
			Records []cimisRecord `json:"Records"`
		} `json:"Providers"`
	} `json:"Data"`
}

// FetchHourly retrieves one station's hourly records for a calendar date.
// Transient upstream failures are retried with exponential backoff inside the
// circuit breaker; the returned error wraps the engine's upstream sentinels.
func (c *CIMIS) FetchHourly(ctx context.Context, stationID string, date time.Time) ([]models.Observation, string, error) {
	dateStr := date.Format("2006-01-02")
	q := url.Values{}
	q.Set("appKey", c.appKey)
	q.Set("targets", stationID)
	q.Set("startDate", dateStr)
	q.Set("endDate", dateStr)
	q.Set("dataItems", hourlyDataItems)
	q.Set("unitOfMeasure", "M")
	requestURL := c.baseURL + "?" + q.Encode()

	var body []byte
	operation := func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.get(ctx, stationID, requestURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: circuit open", frost.ErrUpstreamUnavailable))
			}
			return err
		}
		body = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, "", err
	}

	var data cimisResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, "", fmt.Errorf("%w: unmarshal: %v", frost.ErrUpstreamUnavailable, err)
	}

	var results []models.Observation
	for _, provider := range data.Data.Providers {
		for _, rec := range provider.Records {
			obs, err := c.mapRecord(rec)
			if err != nil {
				c.log.Warn("skipping malformed record",
					zap.String("station", stationID),
					zap.String("date", rec.Date),
					zap.String("hour", rec.Hour),
					zap.Error(err))
				continue
			}
			results = append(results, obs)
		}
	}
	return results, string(body), nil
}

func (c *CIMIS) get(ctx context.Context, stationID, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.CIMISAPILatency.WithLabelValues(stationID).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			metrics.CIMISAPICallsTotal.WithLabelValues(stationID, "timeout").Inc()
			return nil, fmt.Errorf("%w: %v", frost.ErrUpstreamTimeout, err)
		}
		metrics.CIMISAPICallsTotal.WithLabelValues(stationID, "error").Inc()
		return nil, fmt.Errorf("%w: %v", frost.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		metrics.CIMISAPICallsTotal.WithLabelValues(stationID, strconv.Itoa(resp.StatusCode)).Inc()
		err := fmt.Errorf("%w: status %d: %s", frost.ErrUpstreamUnavailable, resp.StatusCode, string(b))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			// Client errors won't heal on retry.
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.CIMISAPICallsTotal.WithLabelValues(stationID, "error").Inc()
		return nil, fmt.Errorf("%w: read body: %v", frost.ErrUpstreamUnavailable, err)
	}
	metrics.CIMISAPICallsTotal.WithLabelValues(stationID, "ok").Inc()
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// mapRecord converts one CIMIS record into a storable observation. Hour is an
// HHMM string marking the end of the measurement interval, "0100" through
// "2400"; the observation is stamped at the start of that hour in station
// local time.
func (c *CIMIS) mapRecord(rec cimisRecord) (models.Observation, error) {
	date, err := time.ParseInLocation("2006-01-02", rec.Date, c.loc)
	if err != nil {
		return models.Observation{}, fmt.Errorf("parse date %q: %w", rec.Date, err)
	}
	if len(rec.Hour) != 4 {
		return models.Observation{}, fmt.Errorf("bad hour %q", rec.Hour)
	}
	hour, err := strconv.Atoi(rec.Hour[:2])
	if err != nil || hour < 1 || hour > 24 {
		return models.Observation{}, fmt.Errorf("bad hour %q", rec.Hour)
	}

	obs := models.Observation{
		StationID:  rec.Station,
		ObservedAt: date.Add(time.Duration(hour-1) * time.Hour).UTC(),
	}
	obs.AirTemp = parseValue(rec.HlyAirTmp, convertTemp)
	obs.Humidity = parseValue(rec.HlyRelHum, nil)
	obs.DewPoint = parseValue(rec.HlyDewPnt, convertTemp)
	obs.WindSpeed = parseValue(rec.HlyWindSpd, convertSpeed)
	obs.SolarRadiation = parseValue(rec.HlySolRad, nil)
	obs.ETo = parseValue(rec.HlyEto, convertDepth)

	raw, err := json.Marshal(rec)
	if err != nil {
		return models.Observation{}, fmt.Errorf("marshal raw: %w", err)
	}
	obs.RawJSON = string(raw)
	return obs, nil
}

// QC flags marking a value as unusable. Blank or "Y" flags pass through.
var rejectedQCFlags = map[string]bool{"M": true, "R": true, "S": true, "P": true}

func parseValue(v cimisValue, convert func(val float64, unit string) float64) sql.NullFloat64 {
	if v.Value == nil || rejectedQCFlags[strings.TrimSpace(v.Qc)] {
		return sql.NullFloat64{}
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(*v.Value), 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	if convert != nil {
		val = convert(val, strings.Trim(v.Unit, "() "))
	}
	return sql.NullFloat64{Float64: val, Valid: true}
}

// Stations sometimes report in English units despite the metric request; the
// unit tag on each value is authoritative.
func convertTemp(val float64, unit string) float64 {
	if unit == "F" {
		return (val - 32) * 5 / 9
	}
	return val
}

func convertSpeed(val float64, unit string) float64 {
	if unit == "MPH" {
		return val * 0.44704
	}
	return val
}

func convertDepth(val float64, unit string) float64 {
	if unit == "in" {
		return val * 25.4
	}
	return val
}
