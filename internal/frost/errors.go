package frost

import "errors"

// Engine failures are sentinel errors so callers can map each to a distinct
// user-visible reason with errors.Is. A failed assessment is never silently
// replaced with defaults: a wrong default would corrupt a frost warning.
var (
	// ErrInsufficientData means too few valid hourly records exist for the
	// station-day to compute anything trustworthy.
	ErrInsufficientData = errors.New("insufficient hourly data for station-day")

	// ErrOutOfDomain means psychrometric inputs fall outside the validated
	// range of the empirical regressions.
	ErrOutOfDomain = errors.New("psychrometric input out of validated domain")

	// ErrUnknownStageParameters means no damage-curve parameters exist for
	// the requested crop/variety/stage combination.
	ErrUnknownStageParameters = errors.New("no damage parameters for crop/variety/stage")

	// ErrUpstreamUnavailable / ErrUpstreamTimeout classify weather-source
	// failures.
	ErrUpstreamUnavailable = errors.New("weather source unavailable")
	ErrUpstreamTimeout     = errors.New("weather source timed out")

	// ErrInvalidDate means the requested date is in the future relative to
	// the processing clock.
	ErrInvalidDate = errors.New("requested date is in the future")
)
