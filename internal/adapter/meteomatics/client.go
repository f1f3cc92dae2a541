// Package meteomatics fetches live weather observations from the Meteomatics
// REST API and maps them onto canonical field names. All calls go through a
// circuit breaker so a flapping provider fails fast instead of stacking up
// timed-out requests; the caller treats any failure here as a freshness
// downgrade, never a hard error.
package meteomatics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"

	"github.com/cityforge/enviro-intel/internal/domain"
)

// paramMap translates Meteomatics parameter identifiers to canonical field
// names. Parameters the provider does not serve for a location come back as
// sentinel values and are handled downstream.
var paramMap = map[string]string{
	"t_2m:C":                   domain.FieldTemperature,
	"t_max_2m_24h:C":           domain.FieldTempMax,
	"t_min_2m_24h:C":           domain.FieldTempMin,
	"relative_humidity_2m:p":   domain.FieldHumidity,
	"precip_1h:mm":             domain.FieldPrecipitation,
	"wind_speed_10m:ms":        domain.FieldWindSpeed,
	"pm2p5:ugm3":               domain.FieldPM25,
	"air_quality_index_us:idx": domain.FieldAQI,
}

// orderedParams fixes the request order so URLs are stable.
var orderedParams = []string{
	"t_2m:C",
	"t_max_2m_24h:C",
	"t_min_2m_24h:C",
	"relative_humidity_2m:p",
	"precip_1h:mm",
	"wind_speed_10m:ms",
	"pm2p5:ugm3",
	"air_quality_index_us:idx",
}

// Client is a Meteomatics API client bound to one location.
type Client struct {
	baseURL  string
	username string
	password string
	lat, lon float64

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[apiResponse]
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a Client. timeout bounds each HTTP request; the breaker
// opens after five consecutive failures and probes again after 30 seconds.
func NewClient(baseURL, username, password string, lat, lon float64, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker[apiResponse](gobreaker.Settings{
		Name:        "meteomatics",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("weather circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		lat:        lat,
		lon:        lon,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
		clock:      clock,
		logger:     logger,
	}
}

// apiResponse mirrors the Meteomatics JSON layout: one entry per parameter,
// each carrying dated values per coordinate.
type apiResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Parameter   string `json:"parameter"`
		Coordinates []struct {
			Lat   float64 `json:"lat"`
			Lon   float64 `json:"lon"`
			Dates []struct {
				Date  time.Time `json:"date"`
				Value float64   `json:"value"`
			} `json:"dates"`
		} `json:"coordinates"`
	} `json:"data"`
}

// FetchCurrent retrieves the current weather snapshot. Any transport, auth,
// decode, or breaker-open failure is wrapped as a ServiceUnavailableError for
// the weather source.
func (c *Client) FetchCurrent(ctx context.Context) (domain.RawReading, error) {
	now := c.clock.Now().UTC()

	parsed, err := c.get(ctx, c.requestURL(now.Format(time.RFC3339)))
	if err != nil {
		return domain.RawReading{}, &domain.ServiceUnavailableError{Source: domain.SourceWeather, Err: err}
	}

	raw := domain.RawReading{
		Source:    domain.SourceWeather,
		Timestamp: now,
		Fields:    make(map[string]any, len(parsed.Data)),
	}
	for _, entry := range parsed.Data {
		field, ok := paramMap[entry.Parameter]
		if !ok || len(entry.Coordinates) == 0 || len(entry.Coordinates[0].Dates) == 0 {
			continue
		}
		// For a point-in-time query there is exactly one dated value.
		dates := entry.Coordinates[0].Dates
		raw.Fields[field] = dates[len(dates)-1].Value
	}

	if len(raw.Fields) == 0 {
		err := fmt.Errorf("weather response carried no known parameters")
		return domain.RawReading{}, &domain.ServiceUnavailableError{Source: domain.SourceWeather, Err: err}
	}
	return raw, nil
}

// FetchForecast retrieves hourly readings for the next horizonHours hours,
// one RawReading per timestamp, oldest first. Used by operational tooling
// rather than the serving path; the time-series model does its own
// forecasting.
func (c *Client) FetchForecast(ctx context.Context, horizonHours int) ([]domain.RawReading, error) {
	now := c.clock.Now().UTC()
	timeSpec := fmt.Sprintf("%s--%s:PT1H",
		now.Format(time.RFC3339),
		now.Add(time.Duration(horizonHours)*time.Hour).Format(time.RFC3339))

	parsed, err := c.get(ctx, c.requestURL(timeSpec))
	if err != nil {
		return nil, &domain.ServiceUnavailableError{Source: domain.SourceWeather, Err: err}
	}

	byTime := make(map[time.Time]map[string]any)
	for _, entry := range parsed.Data {
		field, ok := paramMap[entry.Parameter]
		if !ok || len(entry.Coordinates) == 0 {
			continue
		}
		for _, d := range entry.Coordinates[0].Dates {
			fields, ok := byTime[d.Date]
			if !ok {
				fields = make(map[string]any)
				byTime[d.Date] = fields
			}
			fields[field] = d.Value
		}
	}

	stamps := make([]time.Time, 0, len(byTime))
	for at := range byTime {
		stamps = append(stamps, at)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	out := make([]domain.RawReading, 0, len(stamps))
	for _, at := range stamps {
		out = append(out, domain.RawReading{
			Source:    domain.SourceWeather,
			Timestamp: at,
			Fields:    byTime[at],
		})
	}
	return out, nil
}

// requestURL builds the Meteomatics path: {time}/{parameters}/{lat},{lon}/json.
func (c *Client) requestURL(timeSpec string) string {
	return fmt.Sprintf("%s/%s/%s/%g,%g/json",
		c.baseURL, timeSpec, strings.Join(orderedParams, ","), c.lat, c.lon)
}

// get performs one authenticated request through the circuit breaker.
func (c *Client) get(ctx context.Context, url string) (apiResponse, error) {
	return c.breaker.Execute(func() (apiResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return apiResponse{}, fmt.Errorf("building request: %w", err)
		}
		req.SetBasicAuth(c.username, c.password)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apiResponse{}, fmt.Errorf("weather request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return apiResponse{}, fmt.Errorf("weather API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var parsed apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return apiResponse{}, fmt.Errorf("decoding weather response: %w", err)
		}
		return parsed, nil
	})
}
