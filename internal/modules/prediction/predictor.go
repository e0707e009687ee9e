// Package prediction defines the price-forecast boundary of the engine and
// two interchangeable implementations: an HTTP client for an external model
// service and a local indicator-based baseline.
package prediction

import (
	"errors"
	"time"
)

// ErrDataUnavailable indicates the predictor has no usable forecast for the
// symbol on the requested date. Callers skip the symbol for the pass.
var ErrDataUnavailable = errors.New("prediction data unavailable")

// Prediction is the raw model output: the expected low and high price for
// the next period.
type Prediction struct {
	Symbol        string  `json:"symbol"`
	PredictedLow  float64 `json:"predicted_low"`
	PredictedHigh float64 `json:"predicted_high"`
}

// Predictor produces a price range forecast for a symbol as of a date
type Predictor interface {
	Predict(symbol string, asOf time.Time) (*Prediction, error)
}
