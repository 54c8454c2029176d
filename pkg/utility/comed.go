package utility

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/chargeplan/pkg/common"
	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/types"
)

const pjmComedPNodeID = "33092371"

// ComEd reads the ComEd hourly pricing 5-minute feed and, when a PJM Data
// Miner key is configured, the PJM day-ahead prices for the ComEd zone.
type ComEd struct {
	apiURL    string
	pjmAPIKey string
	pjmAPIURL string
	client    *http.Client
	now       func() time.Time

	mu            sync.Mutex
	lastFetchTime time.Time
	cachedPrices  []types.Price
}

func configuredComEd() *ComEd {
	c := &ComEd{
		client: common.HTTPClient(10 * time.Second),
		now:    time.Now,
	}
	apiURL := lflag.String("comed-api-url", "https://hourlypricing.comed.com/api", "URL for the ComEd Hourly Pricing API")
	pjmURL := lflag.String("pjm-api-url", "https://api.pjm.com/api/v1/da_hrl_lmps", "URL for the PJM API")
	pjmKey := lflag.String("pjm-api-key", "", "API Key for PJM Data Miner 2 (optional)")

	lflag.Do(func() {
		c.apiURL = *apiURL
		c.pjmAPIURL = *pjmURL
		c.pjmAPIKey = *pjmKey
		if err := c.Validate(); err != nil {
			panic(err)
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *ComEd) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("comed-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse comed url (%s): %w", c.apiURL, err)
	}
	if c.pjmAPIURL != "" {
		if _, err := url.Parse(c.pjmAPIURL); err != nil {
			return fmt.Errorf("failed to parse pjm url (%s): %w", c.pjmAPIURL, err)
		}
	}
	return nil
}

type comedPriceEntry struct {
	MillisUTC string `json:"millisUTC"`
	Price     string `json:"price"`
}

// fetchPrices returns the hourly averages of the last few hours. The result
// is cached until the next 5 minute block.
func (c *ComEd) fetchPrices(ctx context.Context) ([]types.Price, error) {
	now := c.now().In(ctLocation)

	c.mu.Lock()
	if !c.lastFetchTime.IsZero() && !now.Truncate(5*time.Minute).After(c.lastFetchTime) {
		prices := c.cachedPrices
		c.mu.Unlock()
		return prices, nil
	}
	c.mu.Unlock()

	prices, err := c.fetchPricesRange(ctx, now.Add(-6*time.Hour), now)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cachedPrices = prices
	c.lastFetchTime = now
	c.mu.Unlock()

	return prices, nil
}

// fetchPricesRange requests the 5-minute feed and averages it into hours.
func (c *ComEd) fetchPricesRange(ctx context.Context, start, end time.Time) ([]types.Price, error) {
	start = start.In(ctLocation)
	end = end.In(ctLocation)

	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	params := url.Values{}
	params.Set("type", "5minutefeed")
	params.Set("datestart", start.Format("200601021504"))
	params.Set("dateend", end.Format("200601021504"))
	params.Set("format", "json")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching prices from comed", slog.String("url", u.String()))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comed prices: %w", err)
	}
	var data []comedPriceEntry
	if err := common.DecodeJSON(resp, &data); err != nil {
		return nil, fmt.Errorf("comed api: %w", err)
	}

	type hourlyData struct {
		start    time.Time
		sum      float64
		count    int
		lastTime time.Time
	}
	hours := make(map[int64]*hourlyData)
	for _, item := range data {
		ms, err := strconv.ParseInt(item.MillisUTC, 10, 64)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse comed millisUTC", slog.String("value", item.MillisUTC), slog.Any("error", err))
			continue
		}
		centsPerKWH, err := strconv.ParseFloat(item.Price, 64)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse comed price", slog.String("value", item.Price), slog.Any("error", err))
			continue
		}

		ts := time.UnixMilli(ms).In(ctLocation)
		hourStart := ts.Truncate(time.Hour)
		h, ok := hours[hourStart.Unix()]
		if !ok {
			h = &hourlyData{start: hourStart}
			hours[hourStart.Unix()] = h
		}
		h.sum += centsPerKWH
		h.count++
		if ts.After(h.lastTime) {
			h.lastTime = ts
		}
	}

	prices := make([]types.Price, 0, len(hours))
	for _, h := range hours {
		prices = append(prices, types.Price{
			Provider:      ProviderComEd,
			TSStart:       h.start,
			TSEnd:         h.lastTime.Add(4*time.Minute + 59*time.Second),
			DollarsPerKWH: h.sum / float64(h.count) / 100,
			SampleCount:   h.count,
		})
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].TSStart.Before(prices[j].TSStart)
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched comed prices",
		slog.Int("samples", len(data)),
		slog.Int("hours", len(prices)),
	)
	return prices, nil
}

// GetCurrentPrice returns the latest hourly average. The current hour is
// usually incomplete.
func (c *ComEd) GetCurrentPrice(ctx context.Context) (types.Price, error) {
	prices, err := c.fetchPrices(ctx)
	if err != nil {
		return types.Price{}, err
	}
	if len(prices) == 0 {
		return types.Price{}, fmt.Errorf("no prices returned for current window")
	}
	latest := prices[len(prices)-1]
	// the price covers the whole hour for display
	latest.TSEnd = latest.TSStart.Add(time.Hour)
	return latest, nil
}

// GetFuturePrices returns PJM day-ahead prices when a key is configured and
// nothing otherwise.
func (c *ComEd) GetFuturePrices(ctx context.Context) ([]types.Price, error) {
	if c.pjmAPIKey == "" {
		return nil, nil
	}
	return c.fetchPJMDayAhead(ctx, pjmComedPNodeID)
}

type pjmItem struct {
	DatetimeBeginningEPT string  `json:"datetime_beginning_ept"`
	TotalLMPDA           float64 `json:"total_lmp_da"`
}

func (c *ComEd) fetchPJMDayAhead(ctx context.Context, pnodeID string) ([]types.Price, error) {
	now := c.now().In(etLocation)
	dateRange := fmt.Sprintf("%s 00:00 to %s 23:59", now.Format("2006-01-02"), now.AddDate(0, 0, 1).Format("2006-01-02"))

	u, err := url.Parse(c.pjmAPIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pjm url (%s): %w", c.pjmAPIURL, err)
	}
	q := u.Query()
	q.Set("pnode_id", pnodeID)
	q.Set("datetime_beginning_ept", dateRange)
	q.Set("format", "json")
	q.Set("fields", "datetime_beginning_ept,total_lmp_da")
	// download removes the metadata and returns only the rows
	q.Set("download", "true")
	q.Set("startRow", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.pjmAPIKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pjm prices: %w", err)
	}
	var res []pjmItem
	if err := common.DecodeJSON(resp, &res); err != nil {
		return nil, fmt.Errorf("pjm api: %w", err)
	}

	prices := make([]types.Price, 0, len(res))
	for _, item := range res {
		t, err := time.ParseInLocation("2006-01-02T15:04:05", item.DatetimeBeginningEPT, etLocation)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse pjm time", slog.String("time", item.DatetimeBeginningEPT), slog.Any("error", err))
			continue
		}
		t = t.Truncate(time.Hour)
		prices = append(prices, types.Price{
			Provider:      ProviderComEd,
			TSStart:       t,
			TSEnd:         t.Add(time.Hour),
			DollarsPerKWH: item.TotalLMPDA / 1000, // $/MWh
		})
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].TSStart.Before(prices[j].TSStart)
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched pjm prices",
		slog.Int("count", len(prices)),
		slog.String("pnodeID", pnodeID),
	)
	return prices, nil
}
