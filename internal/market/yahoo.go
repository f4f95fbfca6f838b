package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wsb-sentiment-lab/internal/domain"
)

// DefaultYahooURL is the public chart API host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooFeed fetches unadjusted daily closes from the Yahoo chart API.
// One request per ticker, issued sequentially.
type YahooFeed struct {
	baseURL string
	client  *http.Client
}

// NewYahooFeed creates a feed. An empty baseURL uses DefaultYahooURL.
func NewYahooFeed(baseURL string, timeout time.Duration) *YahooFeed {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YahooFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Closes implements Feed.
func (f *YahooFeed) Closes(ctx context.Context, tickers []string, start, end time.Time) ([]domain.PricePoint, error) {
	var out []domain.PricePoint
	for _, ticker := range tickers {
		points, err := f.fetch(ctx, ticker, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetch %s closes: %w", ticker, err)
		}
		out = append(out, points...)
	}
	if len(out) == 0 {
		return nil, ErrNoPriceData
	}
	return out, nil
}

func (f *YahooFeed) fetch(ctx context.Context, ticker string, start, end time.Time) ([]domain.PricePoint, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(domain.DateOf(start).Unix(), 10))
	q.Set("period2", strconv.FormatInt(domain.DateOf(end).AddDate(0, 0, 1).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.baseURL, url.PathEscape(ticker), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wsb-sentiment-lab)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload chartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if e := payload.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart api: %s: %s", e.Code, e.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, nil
	}
	return parseChart(ticker, payload.Chart.Result[0], start, end), nil
}

// parseChart converts a chart result into points dated in the exchange's
// local calendar. Null closes (halts, partial bars) are skipped.
func parseChart(ticker string, r chartResult, start, end time.Time) []domain.PricePoint {
	var closes []*float64
	if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	out := make([]domain.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		date := domain.DateOf(time.Unix(ts+r.Meta.GMTOffset, 0).UTC())
		if !inRange(date, start, end) {
			continue
		}
		out = append(out, domain.PricePoint{Ticker: ticker, Date: date, Close: *closes[i]})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
