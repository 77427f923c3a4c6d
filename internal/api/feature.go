package api

import (
	"database/sql"

	"github.com/frostbyte/frostrisk/internal/frost"
)

// GeoJSON envelope for an assessment. Consumers drop the feature straight
// onto a map, so the risk payload rides in properties.
type Feature struct {
	Type       string       `json:"type"`
	Geometry   Geometry     `json:"geometry"`
	Properties FeatureProps `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // lon, lat
}

type FeatureProps struct {
	Temp      float64      `json:"temp"`
	RiskLevel string       `json:"riskLevel"`
	Location  string       `json:"location"`
	Date      string       `json:"date"`
	Crop      CropProps    `json:"crop"`
	Station   StationProps `json:"cimis"`
}

type CropProps struct {
	Name    string                `json:"name"`
	Variety string                `json:"variety"`
	Stage   string                `json:"stage"`
	Stages  map[string]StageProps `json:"stages"`
}

type StageProps struct {
	Probability           float64 `json:"probability"`
	FrostProbabilityIndex int     `json:"frostProbabilityIndex"`
	RiskLevel             string  `json:"riskLevel"`
	LT10                  float64 `json:"lt10"`
	LT90                  float64 `json:"lt90"`
	ParameterA            float64 `json:"parameterA"`
	ParameterB            float64 `json:"parameterB"`
}

type StationProps struct {
	StationID    string   `json:"stationId"`
	Name         string   `json:"name"`
	AirTempMin   float64  `json:"airTempMin"`
	AirTempMax   *float64 `json:"airTempMax"`
	DewPointMin  *float64 `json:"dewPointMin"`
	DewPointMax  *float64 `json:"dewPointMax"`
	HumidityMin  *float64 `json:"humidityMin"`
	HumidityMax  *float64 `json:"humidityMax"`
	WindSpeedAvg *float64 `json:"windSpeedAvg"`
	ETo          *float64 `json:"eto"`
	PredictedMin float64  `json:"predictedMin"`
	WetBulb      float64  `json:"wetBulb"`
	DewPoint     float64  `json:"dewPoint"`
	Confidence   string   `json:"confidence"`
	Hours        int      `json:"hours"`
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

// NewFeature renders an assessment as a GeoJSON point feature.
func NewFeature(a *frost.Assessment) Feature {
	stages := make(map[string]StageProps, len(a.Stages))
	for stage, risk := range a.Stages {
		stages[string(stage)] = StageProps{
			Probability:           risk.Probability,
			FrostProbabilityIndex: risk.Index,
			RiskLevel:             string(risk.Level),
			LT10:                  risk.LT10,
			LT90:                  risk.LT90,
			ParameterA:            risk.A,
			ParameterB:            risk.B,
		}
	}

	headline := a.Headline()
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{a.Longitude, a.Latitude},
		},
		Properties: FeatureProps{
			Temp:      a.BlossomTemp,
			RiskLevel: string(headline.Level),
			Location:  a.StationName,
			Date:      a.Date.Format("2006-01-02"),
			Crop: CropProps{
				Name:    a.Crop,
				Variety: a.Variety,
				Stage:   string(a.Selected),
				Stages:  stages,
			},
			Station: StationProps{
				StationID:    a.StationID,
				Name:         a.StationName,
				AirTempMin:   a.AirTempMin,
				AirTempMax:   nullable(a.Summary.AirTempMax),
				DewPointMin:  nullable(a.Summary.DewPointMin),
				DewPointMax:  nullable(a.Summary.DewPointMax),
				HumidityMin:  nullable(a.Summary.HumidityMin),
				HumidityMax:  nullable(a.Summary.HumidityMax),
				WindSpeedAvg: nullable(a.Summary.WindSpeedAvg),
				ETo:          nullable(a.Summary.ETo),
				PredictedMin: a.Cooling.PredictedMinC,
				WetBulb:      a.Psychro.WetBulb,
				DewPoint:     a.Psychro.DewPoint,
				Confidence:   string(a.Cooling.Confidence),
				Hours:        len(a.Hourly),
			},
		},
	}
}
