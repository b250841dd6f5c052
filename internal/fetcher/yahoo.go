package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"halving-chart/internal/market"
)

const yahooChartPath = "/v8/finance/chart/"

// ErrNoData reports a provider response without usable bars.
var ErrNoData = errors.New("no price data returned")

// YahooOptions parameterise the Yahoo Finance chart fetcher.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo fetches OHLCV bars from the Yahoo Finance chart API.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs a Yahoo chart fetcher.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchBars retrieves bars for req. Bars with a missing price are skipped;
// the result is sorted by time with duplicate timestamps collapsed to the
// last occurrence.
func (y *Yahoo) FetchBars(ctx context.Context, req BarRequest) (market.Series, error) {
	if req.Symbol == "" {
		return market.Series{}, errors.New("symbol required")
	}
	if req.Interval == "" {
		return market.Series{}, errors.New("interval required")
	}

	query := url.Values{}
	query.Set("interval", req.Interval)
	query.Set("includePrePost", "false")
	query.Set("events", "div,splits")
	if !req.From.IsZero() {
		to := req.To
		if to.IsZero() {
			to = time.Now()
		}
		query.Set("period1", strconv.FormatInt(req.From.Unix(), 10))
		query.Set("period2", strconv.FormatInt(to.Unix(), 10))
	} else {
		rng := req.Range
		if rng == "" {
			rng = "6mo"
		}
		query.Set("range", rng)
	}

	endpoint := y.baseURL + yahooChartPath + url.PathEscape(req.Symbol) + "?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.Series{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	} else {
		httpReq.Header.Set("User-Agent", "Mozilla/5.0")
	}

	resp, err := y.client.Do(httpReq)
	if err != nil {
		return market.Series{}, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.Series{}, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return market.Series{}, parseChartError(resp.StatusCode, payload)
	}

	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return market.Series{}, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return market.Series{}, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}

	series, skipped, err := chart.series(req)
	if err != nil {
		return market.Series{}, err
	}

	y.logger.Debug().
		Str("symbol", req.Symbol).
		Str("interval", req.Interval).
		Int("bars", series.Len()).
		Int("skipped", skipped).
		Str("location", series.Location.String()).
		Msg("fetched bars")

	return series, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol               string `json:"symbol"`
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (c chartResponse) series(req BarRequest) (market.Series, int, error) {
	if len(c.Chart.Result) == 0 || len(c.Chart.Result[0].Timestamp) == 0 {
		return market.Series{}, 0, fmt.Errorf("yahoo %s: %w", req.Symbol, ErrNoData)
	}
	result := c.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return market.Series{}, 0, fmt.Errorf("yahoo %s: %w", req.Symbol, ErrNoData)
	}
	quote := result.Indicators.Quote[0]

	loc := time.UTC
	if name := result.Meta.ExchangeTimezoneName; name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}

	at := func(values []*float64, i int) (float64, bool) {
		if i >= len(values) || values[i] == nil {
			return 0, false
		}
		return *values[i], true
	}

	bars := make([]market.Bar, 0, len(result.Timestamp))
	skipped := 0
	for i, ts := range result.Timestamp {
		o, okO := at(quote.Open, i)
		h, okH := at(quote.High, i)
		l, okL := at(quote.Low, i)
		cl, okC := at(quote.Close, i)
		if !okO || !okH || !okL || !okC {
			skipped++
			continue
		}
		vol, _ := at(quote.Volume, i)
		bars = append(bars, market.Bar{
			Time:   time.Unix(ts, 0).In(loc),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  cl,
			Volume: vol,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	deduped := bars[:0]
	for _, b := range bars {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	if len(deduped) == 0 {
		return market.Series{}, skipped, fmt.Errorf("yahoo %s: %w", req.Symbol, ErrNoData)
	}

	symbol := result.Meta.Symbol
	if symbol == "" {
		symbol = req.Symbol
	}
	return market.Series{
		Symbol:   symbol,
		Interval: req.Interval,
		Location: loc,
		Bars:     deduped,
	}, skipped, nil
}

func parseChartError(status int, payload []byte) error {
	var apiErr chartResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Chart.Error != nil {
		if apiErr.Chart.Error.Description != "" {
			return fmt.Errorf("yahoo api error (%d): %s", status, apiErr.Chart.Error.Description)
		}
		if apiErr.Chart.Error.Code != "" {
			return fmt.Errorf("yahoo api error (%d): %s", status, apiErr.Chart.Error.Code)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("yahoo api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("yahoo api error (%d)", status)
}

var _ BarFetcher = (*Yahoo)(nil)
