package yahoo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/marketdata"
)

const chartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Client is a Yahoo Finance API client
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: chartBaseURL,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// NewClientWithBaseURL creates a client against an alternate endpoint,
// used by tests with httptest servers.
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	return c
}

// History fetches daily OHLC bars in [from, to], oldest first.
// Uses the chart API which returns JSON (more reliable than CSV download).
func (c *Client) History(symbol string, from, to time.Time) ([]marketdata.Bar, error) {
	result, err := c.fetchChart(symbol, from, to, false)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []marketdata.Bar{}, nil
	}

	if len(result.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No quote data in response")
		return []marketdata.Bar{}, nil
	}
	quote := result.Indicators.Quote[0]

	var bars []marketdata.Bar
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		// Yahoo sometimes returns null (zeroed) rows for non-trading days
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		bars = append(bars, marketdata.Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  quote.Open[i],
			High:  quote.High[i],
			Low:   quote.Low[i],
			Close: quote.Close[i],
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(bars)).
		Msg("Fetched historical bars")
	return bars, nil
}

// Dividends fetches cash dividend events in [from, to], oldest first
func (c *Client) Dividends(symbol string, from, to time.Time) ([]marketdata.Dividend, error) {
	result, err := c.fetchChart(symbol, from, to, true)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []marketdata.Dividend{}, nil
	}

	var dividends []marketdata.Dividend
	for _, ev := range result.Events.Dividends {
		dividends = append(dividends, marketdata.Dividend{
			Date:     time.Unix(ev.Date, 0).UTC(),
			PerShare: ev.Amount,
		})
	}

	for i := 1; i < len(dividends); i++ {
		for j := i; j > 0 && dividends[j].Date.Before(dividends[j-1].Date); j-- {
			dividends[j], dividends[j-1] = dividends[j-1], dividends[j]
		}
	}
	return dividends, nil
}

// Venue returns the exchange code the symbol trades on (e.g. NMS, OSL),
// taken from the chart metadata. Implements pricing.VenueClassifier.
func (c *Client) Venue(symbol string) (string, error) {
	to := time.Now()
	result, err := c.fetchChart(symbol, to.AddDate(0, 0, -7), to, false)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", fmt.Errorf("no chart data for %s", symbol)
	}
	return result.Meta.ExchangeName, nil
}

// fetchChart calls the v8 chart API for one symbol and unwraps the single
// result. A nil result with nil error means Yahoo returned no data.
func (c *Client) fetchChart(symbol string, from, to time.Time, withDividends bool) (*chartResult, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", strconv.FormatInt(from.Unix(), 10))
	params.Add("period2", strconv.FormatInt(to.Unix(), 10))
	if withDividends {
		params.Add("events", "div")
	}

	reqURL := c.baseURL + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Yahoo rejects requests without a browser-looking user agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error: %v", result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No chart data returned")
		return nil, nil
	}

	return &result.Chart.Result[0], nil
}
