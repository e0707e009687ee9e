package prediction

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// ServiceClient queries an external model service for price range forecasts.
// The service exposes GET /predict_next/{symbol}?as_of=YYYY-MM-DD and
// responds with a two-element [low, high] array.
type ServiceClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewServiceClient creates a predictor backed by the model service at baseURL
func NewServiceClient(baseURL string, log zerolog.Logger) *ServiceClient {
	return &ServiceClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log.With().Str("client", "predictor").Logger(),
	}
}

// Predict fetches the forecast for a symbol. A 404 from the service means no
// trained model exists for the symbol and maps to ErrDataUnavailable.
func (c *ServiceClient) Predict(symbol string, asOf time.Time) (*Prediction, error) {
	reqURL := fmt.Sprintf("%s/predict_next/%s?as_of=%s",
		c.baseURL, url.PathEscape(symbol), asOf.Format("2006-01-02"))

	resp, err := c.client.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prediction for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no model for %s: %w", symbol, ErrDataUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("predictor service returned status %d: %s", resp.StatusCode, string(body))
	}

	var pair []float64
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("failed to parse prediction for %s: %w", symbol, err)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("prediction for %s has %d values, want 2: %w",
			symbol, len(pair), ErrDataUnavailable)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("low", pair[0]).
		Float64("high", pair[1]).
		Msg("Fetched prediction")

	return &Prediction{
		Symbol:        symbol,
		PredictedLow:  pair[0],
		PredictedHigh: pair[1],
	}, nil
}
