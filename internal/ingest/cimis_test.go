package ingest

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/frostbyte/frostrisk/internal/frost"
)

const sampleResponse = `{
  "Data": {
    "Providers": [
      {
        "Name": "cimis",
        "Records": [
          {
            "Date": "2025-02-18",
            "Hour": "0100",
            "Station": "145",
            "HlyAirTmp": {"Value": "4.2", "Qc": " ", "Unit": "(C)"},
            "HlyRelHum": {"Value": "88", "Qc": " ", "Unit": "(%)"},
            "HlyDewPnt": {"Value": "2.4", "Qc": " ", "Unit": "(C)"},
            "HlyWindSpd": {"Value": "0.8", "Qc": " ", "Unit": "(MPS)"},
            "HlySolRad": {"Value": "0", "Qc": " ", "Unit": "(W/sq.m)"},
            "HlyEto": {"Value": "0.0", "Qc": " ", "Unit": "(mm)"}
          },
          {
            "Date": "2025-02-18",
            "Hour": "0200",
            "Station": "145",
            "HlyAirTmp": {"Value": "39.4", "Qc": " ", "Unit": "(F)"},
            "HlyRelHum": {"Value": "90", "Qc": " ", "Unit": "(%)"},
            "HlyDewPnt": {"Value": null, "Qc": "M", "Unit": "(C)"},
            "HlyWindSpd": {"Value": "2.0", "Qc": " ", "Unit": "(MPH)"},
            "HlySolRad": {"Value": "0", "Qc": " ", "Unit": "(W/sq.m)"},
            "HlyEto": {"Value": "0.0", "Qc": " ", "Unit": "(mm)"}
          },
          {
            "Date": "2025-02-18",
            "Hour": "0300",
            "Station": "145",
            "HlyAirTmp": {"Value": "3.1", "Qc": "R", "Unit": "(C)"},
            "HlyRelHum": {"Value": "91", "Qc": " ", "Unit": "(%)"},
            "HlyDewPnt": {"Value": "2.0", "Qc": " ", "Unit": "(C)"},
            "HlyWindSpd": {"Value": "0.5", "Qc": " ", "Unit": "(MPS)"},
            "HlySolRad": {"Value": "0", "Qc": " ", "Unit": "(W/sq.m)"},
            "HlyEto": {"Value": "0.0", "Qc": " ", "Unit": "(mm)"}
          }
        ]
      }
    ]
  }
}`

func newTestCIMIS(t *testing.T, handler http.HandlerFunc) *CIMIS {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return NewCIMIS("test-key", srv.URL, loc, zap.NewNop())
}

func TestFetchHourly(t *testing.T) {
	c := newTestCIMIS(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("targets"); got != "145" {
			t.Errorf("targets = %q, want 145", got)
		}
		if got := r.URL.Query().Get("unitOfMeasure"); got != "M" {
			t.Errorf("unitOfMeasure = %q, want M", got)
		}
		w.Write([]byte(sampleResponse))
	})

	date := time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC)
	obs, raw, err := c.FetchHourly(context.Background(), "145", date)
	if err != nil {
		t.Fatalf("FetchHourly: %v", err)
	}
	if raw == "" {
		t.Error("raw body is empty")
	}
	if len(obs) != 3 {
		t.Fatalf("len(obs) = %d, want 3", len(obs))
	}

	first := obs[0]
	if first.StationID != "145" {
		t.Errorf("StationID = %q, want 145", first.StationID)
	}
	if !first.AirTemp.Valid || first.AirTemp.Float64 != 4.2 {
		t.Errorf("AirTemp = %+v, want 4.2", first.AirTemp)
	}
	// Hour "0100" is the interval ending 01:00 local, stamped at its start:
	// midnight PST is 08:00 UTC.
	wantAt := time.Date(2025, 2, 18, 8, 0, 0, 0, time.UTC)
	if !first.ObservedAt.Equal(wantAt) {
		t.Errorf("ObservedAt = %v, want %v", first.ObservedAt, wantAt)
	}
}

func TestFetchHourlyConvertsEnglishUnits(t *testing.T) {
	c := newTestCIMIS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	})

	obs, _, err := c.FetchHourly(context.Background(), "145", time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchHourly: %v", err)
	}

	second := obs[1]
	if !second.AirTemp.Valid || math.Abs(second.AirTemp.Float64-4.111) > 0.01 {
		t.Errorf("AirTemp = %+v, want 39.4F as ~4.11C", second.AirTemp)
	}
	if !second.WindSpeed.Valid || math.Abs(second.WindSpeed.Float64-0.894) > 0.01 {
		t.Errorf("WindSpeed = %+v, want 2.0mph as ~0.89m/s", second.WindSpeed)
	}
}

func TestFetchHourlyDropsRejectedValues(t *testing.T) {
	c := newTestCIMIS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	})

	obs, _, err := c.FetchHourly(context.Background(), "145", time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchHourly: %v", err)
	}

	if obs[1].DewPoint.Valid {
		t.Errorf("DewPoint = %+v, want invalid for Qc=M", obs[1].DewPoint)
	}
	if obs[2].AirTemp.Valid {
		t.Errorf("AirTemp = %+v, want invalid for Qc=R", obs[2].AirTemp)
	}
	if !obs[2].Humidity.Valid {
		t.Errorf("Humidity invalid, want the clean value kept when a sibling is rejected")
	}
}

func TestFetchHourlyClientError(t *testing.T) {
	c := newTestCIMIS(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad app key", http.StatusForbidden)
	})

	_, _, err := c.FetchHourly(context.Background(), "145", time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, frost.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}
