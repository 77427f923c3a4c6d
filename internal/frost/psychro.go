package frost

import (
	"fmt"
	"math"
)

// Magnus-Tetens constants for dew point over water.
const (
	magnusA = 17.62
	magnusB = 243.12 // °C
)

// Validated domain of the Stull wet-bulb regression. Outside these bounds the
// regression error grows quickly, so we refuse to extrapolate.
const (
	minWetBulbHumidity = 5.0
	maxWetBulbHumidity = 99.0
	minWetBulbTemp     = -20.0
	maxWetBulbTemp     = 50.0
)

// PsychrometricState holds the moisture-derived temperatures for a single
// hourly observation.
type PsychrometricState struct {
	DewPoint float64 // °C
	WetBulb  float64 // °C
}

// DewPoint computes the dew point (°C) from dry-bulb temperature (°C) and
// relative humidity (%) using the Magnus-Tetens approximation.
func DewPoint(tempC, relHumidity float64) (float64, error) {
	if relHumidity <= 0 || relHumidity > 100 {
		return 0, fmt.Errorf("%w: relative humidity %.1f%%", ErrOutOfDomain, relHumidity)
	}
	gamma := math.Log(relHumidity/100.0) + magnusA*tempC/(magnusB+tempC)
	return magnusB * gamma / (magnusA - gamma), nil
}

// WetBulb computes the wet-bulb temperature (°C) from dry-bulb temperature
// (°C) and relative humidity (%) using the Stull (2011) regression.
func WetBulb(tempC, relHumidity float64) (float64, error) {
	if relHumidity < minWetBulbHumidity || relHumidity > maxWetBulbHumidity {
		return 0, fmt.Errorf("%w: relative humidity %.1f%%", ErrOutOfDomain, relHumidity)
	}
	if tempC < minWetBulbTemp || tempC > maxWetBulbTemp {
		return 0, fmt.Errorf("%w: temperature %.1f°C", ErrOutOfDomain, tempC)
	}

	wb := tempC*math.Atan(0.151977*math.Sqrt(relHumidity+8.313659)) +
		math.Atan(tempC+relHumidity) -
		math.Atan(relHumidity-1.676331) +
		0.00391838*math.Pow(relHumidity, 1.5)*math.Atan(0.023101*relHumidity) -
		4.686035
	return wb, nil
}

// Psychrometrics derives the full state for one observation. When the
// provider already supplied a dew point it is used as-is; only the missing
// value is computed.
func Psychrometrics(tempC, relHumidity float64, measuredDewPoint *float64) (PsychrometricState, error) {
	wb, err := WetBulb(tempC, relHumidity)
	if err != nil {
		return PsychrometricState{}, err
	}

	var dp float64
	if measuredDewPoint != nil {
		dp = *measuredDewPoint
	} else {
		dp, err = DewPoint(tempC, relHumidity)
		if err != nil {
			return PsychrometricState{}, err
		}
	}

	return PsychrometricState{DewPoint: dp, WetBulb: wb}, nil
}

// BlossomTemp estimates bud tissue temperature from air temperature and
// humidity. On a radiative frost night exposed tissue cools toward the
// wet-bulb temperature, offset by an orchard calibration delta.
func BlossomTemp(tempC, relHumidity, orchardDeltaC float64) (float64, error) {
	wb, err := WetBulb(tempC, relHumidity)
	if err != nil {
		return 0, err
	}
	return wb - orchardDeltaC, nil
}
