package frost

import "math"

// ln(9): the logit offsets of the 10% and 90% kill probabilities.
var logitNine = math.Log(9)

// DamageProbability evaluates the logistic dose-response curve at a blossom
// temperature (°C):
//
//	p = 1 / (1 + exp(-(a + b·T)))
//
// With b < 0 the curve is monotonically non-increasing in T: colder tissue is
// never less likely to be killed. Output is a probability in (0, 1).
func DamageProbability(p StageParams, blossomTempC float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(p.A + p.B*blossomTempC)))
}

// ProbabilityIndex expresses a kill probability as an integer 0..100 for
// display alongside the raw value.
func ProbabilityIndex(prob float64) int {
	return int(math.Round(prob * 100))
}

// LethalTemps inverts the curve to the conventional horticultural reference
// points: LT10 and LT90 are the temperatures at which 10% and 90% of buds are
// expected to be killed. Since b < 0, LT10 > LT90.
func LethalTemps(p StageParams) (lt10, lt90 float64) {
	lt10 = (-logitNine - p.A) / p.B
	lt90 = (logitNine - p.A) / p.B
	return lt10, lt90
}
