package frost

// RiskLevel is the discrete advisory band derived from a kill probability.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Breakpoints are the probability thresholds separating the risk bands.
// Boundaries belong to the higher band: p == High classifies as high.
type Breakpoints struct {
	Medium float64
	High   float64
}

// DefaultBreakpoints returns the advisory thresholds shipped with the engine.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{Medium: 0.3, High: 0.6}
}

// Classify maps a kill probability to its risk band.
func (b Breakpoints) Classify(prob float64) RiskLevel {
	switch {
	case prob >= b.High:
		return RiskHigh
	case prob >= b.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}
