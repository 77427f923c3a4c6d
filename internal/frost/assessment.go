package frost

import (
	"time"

	"github.com/frostbyte/frostrisk/internal/models"
)

// StageRisk is the evaluated damage curve for one phenological stage at the
// predicted blossom temperature.
type StageRisk struct {
	Stage       Stage     `json:"stage"`
	Probability float64   `json:"probability"`
	Index       int       `json:"frostProbabilityIndex"`
	Level       RiskLevel `json:"riskLevel"`
	LT10        float64   `json:"lt10"`
	LT90        float64   `json:"lt90"`
	A           float64   `json:"parameterA"`
	B           float64   `json:"parameterB"`
}

// Assessment is the complete frost-risk result for one station-day and
// crop/variety. Stages carries every stage defined for the variety; Selected
// names the stage the request asked about, whose risk level is the headline.
type Assessment struct {
	StationID   string              `json:"stationId"`
	StationName string              `json:"stationName"`
	Latitude    float64             `json:"latitude"`
	Longitude   float64             `json:"longitude"`
	Date        time.Time           `json:"date"`
	Crop        string              `json:"crop"`
	Variety     string              `json:"variety"`
	Selected    Stage               `json:"stage"`
	Stages      map[Stage]StageRisk `json:"stages"`
	BlossomTemp float64             `json:"blossomTemp"`
	AirTempMin  float64             `json:"airTempMin"`
	Summary     models.DailySummary `json:"-"`
	Cooling     CoolingEstimate     `json:"cooling"`
	Psychro     PsychrometricState  `json:"psychrometrics"`
	Hourly      []HourlyObservation `json:"hourly,omitempty"`
	ComputedAt  time.Time           `json:"computedAt"`
}

// HourlyObservation is the per-hour slice of the normalized day exposed on
// the assessment, already unit-converted to metric.
type HourlyObservation struct {
	Time      time.Time `json:"time"`
	AirTemp   *float64  `json:"airTemp"`
	Humidity  *float64  `json:"humidity"`
	DewPoint  *float64  `json:"dewPoint"`
	WindSpeed *float64  `json:"windSpeed"`
}

// Headline returns the StageRisk of the selected stage.
func (a *Assessment) Headline() StageRisk {
	return a.Stages[a.Selected]
}

// Reselect returns a shallow copy of the assessment with a different selected
// stage. Cached assessments carry every stage, so switching stages never
// recomputes the physics.
func (a *Assessment) Reselect(stage Stage) (*Assessment, bool) {
	if _, ok := a.Stages[stage]; !ok {
		return nil, false
	}
	out := *a
	out.Selected = stage
	return &out, true
}
