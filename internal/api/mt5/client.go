package mt5

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "histdata/internal/platform/http"
	"histdata/models"
)

// monthStep is the window walked per request when paginating a range.
// MT5 bridges cap the candles returned per call, so large ranges are
// fetched backwards in month-sized blocks.
const monthStep = 30 * 24 * time.Hour

// datetimeFormats lists the timestamp layouts the bridge is known to emit.
var datetimeFormats = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Client is the MT5 bridge API client
type Client struct {
	baseURL    string
	authToken  string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new MT5 bridge client
type ClientOptions struct {
	BaseURL         string
	AuthToken       string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new MT5 bridge API client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetryTimeout: options.MaxRetryTimeout,
	}

	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		authToken:  options.AuthToken,
		httpClient: httpClient.NewClient(httpOpts),
		logger:     log.With().Str("component", "mt5_client").Logger(),
	}
}

// GetCandles fetches the most recent candles from the MT5 bridge
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	if !models.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedTimeframe, timeframe)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("count", fmt.Sprintf("%d", count))

	return c.fetch(ctx, params)
}

// GetCandleRange fetches candles for a time window, paginating backwards in
// month blocks until the window is covered or the bridge runs out of data.
func (c *Client) GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	if !models.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedTimeframe, timeframe)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("range end %s not after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	var all []models.Candle
	toTime := to

	for toTime.After(from) {
		fromTime := toTime.Add(-monthStep)
		if fromTime.Before(from) {
			fromTime = from
		}

		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("timeframe", timeframe)
		params.Set("from", fromTime.UTC().Format(time.RFC3339))
		params.Set("to", toTime.UTC().Format(time.RFC3339))

		batch, err := c.fetch(ctx, params)
		if err != nil {
			// History on the terminal only reaches so far back; what
			// was gathered before that point is still a valid answer.
			if errors.Is(err, models.ErrNoData) && len(all) > 0 {
				c.logger.Debug().
					Time("before", toTime).
					Msg("Bridge history exhausted")
				break
			}
			return nil, err
		}

		all = append(all, batch...)
		toTime = fromTime
	}

	if len(all) == 0 {
		return nil, models.ErrNoData
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	// Blocks overlap the window edges; trim to the requested range and
	// drop boundary candles that came back from two adjacent blocks.
	trimmed := all[:0]
	for _, candle := range all {
		if candle.Timestamp.Before(from) || candle.Timestamp.After(to) {
			continue
		}
		if len(trimmed) > 0 && !candle.Timestamp.After(trimmed[len(trimmed)-1].Timestamp) {
			continue
		}
		trimmed = append(trimmed, candle)
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("count", len(trimmed)).
		Msg("Fetched candle range")
	return trimmed, nil
}

// fetch performs one bridge request and converts the response.
func (c *Client) fetch(ctx context.Context, params url.Values) ([]models.Candle, error) {
	reqURL := fmt.Sprintf("%s/api/v1/candles?%s", c.baseURL, params.Encode())

	c.logger.Debug().Str("url", reqURL).Msg("Fetching candles")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if strings.Contains(string(body), `"status":"error"`) {
		c.logger.Error().Str("response", string(body)).Msg("MT5 bridge error")
		return nil, fmt.Errorf("MT5 bridge error: %s", string(body))
	}

	var data models.MT5Response
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("response", string(body)).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	if len(data.Values) == 0 {
		c.logger.Warn().Str("response", string(body)).Msg("No candles in response")
		return nil, models.ErrNoData
	}

	candles := make([]models.Candle, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseDatetime(v.Datetime)
		if err != nil {
			c.logger.Warn().Str("datetime", v.Datetime).Msg("Skipping candle with unparseable datetime")
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      v.Open,
			High:      v.High,
			Low:       v.Low,
			Close:     v.Close,
			Volume:    v.Volume,
		})
	}

	if len(candles) == 0 {
		return nil, models.ErrNoData
	}

	// Sort candles by timestamp (oldest first for proper calculations)
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	c.logger.Debug().Int("count", len(candles)).Msg("Fetched candles")
	return candles, nil
}

// parseDatetime tries the known bridge timestamp layouts in order.
func parseDatetime(value string) (time.Time, error) {
	for _, layout := range datetimeFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format: %q", value)
}
