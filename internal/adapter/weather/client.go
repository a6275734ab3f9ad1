// Package weather is the out-of-core irradiance and temperature
// forecast collaborator (§4.1), a thin JSON HTTP client in the shape
// of the corpus's rooftop-forecast clients.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/vindstrom/solarctl/internal/core/port"
)

// Client talks to an Open-Meteo-shaped forecast API: hourly
// irradiance (shortwave_radiation) and temperature (temperature_2m)
// for a single lat/lon, returned as parallel arrays keyed by ISO hour.
type Client struct {
	baseURL string
	lat     float64
	lon     float64
	tz      string
	http    *http.Client
}

func NewClient(baseURL string, lat, lon float64, tz string) *Client {
	return &Client{
		baseURL: baseURL,
		lat:     lat,
		lon:     lon,
		tz:      tz,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type hourlyResponse struct {
	Hourly struct {
		Time               []string  `json:"time"`
		ShortwaveRadiation []float64 `json:"shortwave_radiation"`
		Temperature2m      []float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

func (c *Client) fetch(ctx context.Context, date string) (*hourlyResponse, error) {
	url := fmt.Sprintf("%s?latitude=%f&longitude=%f&timezone=%s&start_date=%s&end_date=%s&hourly=shortwave_radiation,temperature_2m",
		c.baseURL, c.lat, c.lon, c.tz, date, date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: unexpected status %d", resp.StatusCode)
	}

	var out hourlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchIrradianceForecast(ctx context.Context, date string) ([]port.HourlyIrradiance, error) {
	data, err := c.fetch(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]port.HourlyIrradiance, 0, len(data.Hourly.Time))
	for i, ts := range data.Hourly.Time {
		if i >= len(data.Hourly.ShortwaveRadiation) {
			break
		}
		out = append(out, port.HourlyIrradiance{HourTS: normalizeTS(ts), IrradianceWm2: data.Hourly.ShortwaveRadiation[i]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourTS < out[j].HourTS })
	return out, nil
}

func (c *Client) FetchTemperatureForecast(ctx context.Context, date string) ([]port.HourlyTemperature, error) {
	data, err := c.fetch(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]port.HourlyTemperature, 0, len(data.Hourly.Time))
	for i, ts := range data.Hourly.Time {
		if i >= len(data.Hourly.Temperature2m) {
			break
		}
		out = append(out, port.HourlyTemperature{HourTS: normalizeTS(ts), TempC: data.Hourly.Temperature2m[i]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourTS < out[j].HourTS })
	return out, nil
}

func (c *Client) FetchCurrentTemperature(ctx context.Context) (float64, error) {
	today := time.Now().UTC().Format("2006-01-02")
	data, err := c.fetch(ctx, today)
	if err != nil {
		return 0, err
	}
	now := time.Now().Format("2006-01-02T15:00")
	for i, ts := range data.Hourly.Time {
		if normalizeTS(ts) == now && i < len(data.Hourly.Temperature2m) {
			return data.Hourly.Temperature2m[i], nil
		}
	}
	if len(data.Hourly.Temperature2m) > 0 {
		return data.Hourly.Temperature2m[len(data.Hourly.Temperature2m)-1], nil
	}
	return 0, fmt.Errorf("weather: no current temperature available")
}

// normalizeTS turns the upstream "2024-01-02T03:00" form into our
// "YYYY-MM-DDTHH:00" hour-timestamp convention (a no-op today, kept as
// a seam in case the upstream format ever carries seconds).
func normalizeTS(ts string) string {
	if len(ts) >= 16 {
		return ts[:16]
	}
	return ts
}
