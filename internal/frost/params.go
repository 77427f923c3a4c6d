package frost

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stage is a discrete bloom-development phase. Each stage has its own frost
// sensitivity, expressed as logistic damage-curve parameters.
type Stage string

const (
	StagePinkbud   Stage = "Pinkbud"
	StageFullbloom Stage = "Fullbloom"
	StagePetalfall Stage = "Petalfall"
	StageFruitset  Stage = "Fruitset"
	StageSmallnut  Stage = "Smallnut"
)

// Stages lists every phenological stage in bloom order.
var Stages = []Stage{StagePinkbud, StageFullbloom, StagePetalfall, StageFruitset, StageSmallnut}

// ParseStage resolves a case-insensitive stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// StageParams are the logistic dose-response coefficients for one
// crop/variety/stage. B carries a negative policy sign so that colder
// temperatures increase kill probability.
type StageParams struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// ParamTable is the static damage-parameter reference data, keyed by
// lowercase crop and variety names. It is loaded once at process start and
// read-only afterward; adding a crop is a data change, not a code change.
type ParamTable struct {
	crops map[string]map[string]map[Stage]StageParams
}

//go:embed crops.yaml
var defaultParamsYAML []byte

type paramsFile struct {
	Crops map[string]map[string]map[string]StageParams `yaml:"crops"`
}

// DefaultParams loads the embedded parameter table.
func DefaultParams() (*ParamTable, error) {
	return parseParams(defaultParamsYAML)
}

// LoadParams reads a parameter table from a YAML file, for deployments that
// calibrate their own curves.
func LoadParams(path string) (*ParamTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params %s: %w", path, err)
	}
	return parseParams(b)
}

func parseParams(b []byte) (*ParamTable, error) {
	var f paramsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}

	t := &ParamTable{crops: make(map[string]map[string]map[Stage]StageParams)}
	for crop, varieties := range f.Crops {
		cv := make(map[string]map[Stage]StageParams)
		for variety, stages := range varieties {
			sv := make(map[Stage]StageParams)
			for name, p := range stages {
				stage, ok := ParseStage(name)
				if !ok {
					return nil, fmt.Errorf("parse params: unknown stage %q for %s/%s", name, crop, variety)
				}
				if p.B >= 0 {
					return nil, fmt.Errorf("parse params: %s/%s/%s: parameter b must be negative, got %g", crop, variety, stage, p.B)
				}
				sv[stage] = p
			}
			cv[strings.ToLower(variety)] = sv
		}
		t.crops[strings.ToLower(crop)] = cv
	}
	return t, nil
}

// Lookup returns the parameters for a crop/variety/stage, or
// ErrUnknownStageParameters. Guessing defaults here is forbidden: a made-up
// curve would silently corrupt the warning.
func (t *ParamTable) Lookup(crop, variety string, stage Stage) (StageParams, error) {
	varieties, ok := t.crops[strings.ToLower(crop)]
	if !ok {
		return StageParams{}, fmt.Errorf("%w: crop %q", ErrUnknownStageParameters, crop)
	}
	stages, ok := varieties[strings.ToLower(variety)]
	if !ok {
		return StageParams{}, fmt.Errorf("%w: %s variety %q", ErrUnknownStageParameters, crop, variety)
	}
	p, ok := stages[stage]
	if !ok {
		return StageParams{}, fmt.Errorf("%w: %s/%s stage %q", ErrUnknownStageParameters, crop, variety, stage)
	}
	return p, nil
}

// StagesFor returns the stage set defined for a crop/variety.
func (t *ParamTable) StagesFor(crop, variety string) (map[Stage]StageParams, error) {
	varieties, ok := t.crops[strings.ToLower(crop)]
	if !ok {
		return nil, fmt.Errorf("%w: crop %q", ErrUnknownStageParameters, crop)
	}
	stages, ok := varieties[strings.ToLower(variety)]
	if !ok {
		return nil, fmt.Errorf("%w: %s variety %q", ErrUnknownStageParameters, crop, variety)
	}
	return stages, nil
}
