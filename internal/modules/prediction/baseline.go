package prediction

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/marketdata"
)

const (
	baselineLookbackDays = 120
	baselineEmaPeriod    = 10
)

// RangePredictor is a model-free baseline: it forecasts the next period's
// low/high as the exponential moving average of recent daily lows and highs.
// Used when no external model service is configured.
type RangePredictor struct {
	provider marketdata.Provider
	log      zerolog.Logger
}

// NewRangePredictor creates the baseline predictor over a price provider
func NewRangePredictor(provider marketdata.Provider, log zerolog.Logger) *RangePredictor {
	return &RangePredictor{
		provider: provider,
		log:      log.With().Str("component", "range_predictor").Logger(),
	}
}

// Predict smooths the recent lows and highs with an EMA and returns the last
// smoothed values as the forecast range. Too little history maps to
// ErrDataUnavailable.
func (p *RangePredictor) Predict(symbol string, asOf time.Time) (*Prediction, error) {
	bars, err := p.provider.History(symbol, asOf.AddDate(0, 0, -baselineLookbackDays), asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}
	if len(bars) < baselineEmaPeriod*2 {
		return nil, fmt.Errorf("%s has %d bars, need %d: %w",
			symbol, len(bars), baselineEmaPeriod*2, ErrDataUnavailable)
	}

	lows := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	for i, bar := range bars {
		lows[i] = bar.Low
		highs[i] = bar.High
	}

	lowEma := talib.Ema(lows, baselineEmaPeriod)
	highEma := talib.Ema(highs, baselineEmaPeriod)

	pred := &Prediction{
		Symbol:        symbol,
		PredictedLow:  lowEma[len(lowEma)-1],
		PredictedHigh: highEma[len(highEma)-1],
	}

	p.log.Debug().
		Str("symbol", symbol).
		Float64("low", pred.PredictedLow).
		Float64("high", pred.PredictedHigh).
		Msg("Baseline prediction")
	return pred, nil
}
