package yahoo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartServer(t *testing.T, body string) *Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	return NewClientWithBaseURL(server.URL+"/", zerolog.Nop())
}

func TestHistoryParsesBars(t *testing.T) {
	// Two trading days plus one zeroed row Yahoo emits for a holiday.
	body := `{"chart":{"result":[{
		"timestamp":[1709510400,1709596800,1709683200],
		"indicators":{"quote":[{
			"open":[100.5,0,104.0],
			"high":[105.0,0,108.5],
			"low":[99.0,0,103.0],
			"close":[104.0,0,107.5]
		}]},
		"meta":{"exchangeName":"CPH"}
	}],"error":null}}`

	client := chartServer(t, body)
	bars, err := client.History("NOVO-B.CO", time.Unix(1709510400, 0), time.Unix(1709683200, 0))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Unix(1709510400, 0).UTC(), bars[0].Date)
	assert.InDelta(t, 100.5, bars[0].Open, 1e-9)
	assert.InDelta(t, 104.0, bars[0].Close, 1e-9)
	assert.InDelta(t, 107.5, bars[1].Close, 1e-9)
}

func TestHistoryEmptyResult(t *testing.T) {
	client := chartServer(t, `{"chart":{"result":[],"error":null}}`)
	bars, err := client.History("UNLISTED", time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestDividendsSortedByDate(t *testing.T) {
	body := `{"chart":{"result":[{
		"timestamp":[],
		"indicators":{"quote":[{}]},
		"events":{"dividends":{
			"1717372800":{"amount":3.0,"date":1717372800},
			"1709596800":{"amount":2.5,"date":1709596800}
		}}
	}],"error":null}}`

	client := chartServer(t, body)
	divs, err := client.Dividends("NOVO-B.CO", time.Unix(1709510400, 0), time.Unix(1717459200, 0))
	require.NoError(t, err)
	require.Len(t, divs, 2)

	assert.True(t, divs[0].Date.Before(divs[1].Date))
	assert.InDelta(t, 2.5, divs[0].PerShare, 1e-9)
	assert.InDelta(t, 3.0, divs[1].PerShare, 1e-9)
}

func TestVenueFromChartMeta(t *testing.T) {
	body := `{"chart":{"result":[{
		"timestamp":[],
		"indicators":{"quote":[{}]},
		"meta":{"exchangeName":"OSL","fullExchangeName":"Oslo Bors"}
	}],"error":null}}`

	client := chartServer(t, body)
	venue, err := client.Venue("EQNR.OL")
	require.NoError(t, err)
	assert.Equal(t, "OSL", venue)
}

func TestChartAPIErrorSurfaces(t *testing.T) {
	client := chartServer(t, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	_, err := client.History("BOGUS", time.Now().AddDate(0, 0, -7), time.Now())
	assert.Error(t, err)
}

func TestNonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := NewClientWithBaseURL(server.URL+"/", zerolog.Nop())
	_, err := client.History("ACME", time.Now().AddDate(0, 0, -7), time.Now())
	assert.Error(t, err)
}
