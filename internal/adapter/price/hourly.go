package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
)

// HourlyProvider fetches 24 hourly prices per day, denominated in a
// remote currency unit that may be per-MWh, and expands each hour
// into the four 15-minute slots the optimizer expects.
type HourlyProvider struct {
	baseURL      string
	mwhDenominated bool
	http         *http.Client
}

func NewHourlyProvider(baseURL string, mwhDenominated bool) *HourlyProvider {
	return &HourlyProvider{baseURL: baseURL, mwhDenominated: mwhDenominated, http: &http.Client{Timeout: 15 * time.Second}}
}

type hourlyPriceEntry struct {
	Hour  int     `json:"hour"`
	Price float64 `json:"price"`
}

type hourlyPriceResponse struct {
	Available bool               `json:"available"`
	Prices    []hourlyPriceEntry `json:"prices"`
}

func (p *HourlyProvider) Fetch(ctx context.Context, date string, region string) (port.PriceFetchResult, error) {
	url := fmt.Sprintf("%s/prices?date=%s&region=%s", p.baseURL, date, region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return port.PriceFetchResult{}, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return port.PriceFetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return port.PriceFetchResult{Present: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return port.PriceFetchResult{}, fmt.Errorf("price: hourly provider status %d", resp.StatusCode)
	}

	raw, err := readAll(resp)
	if err != nil {
		return port.PriceFetchResult{}, err
	}

	var parsed hourlyPriceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return port.PriceFetchResult{}, err
	}
	if !parsed.Available || len(parsed.Prices) != 24 {
		return port.PriceFetchResult{Present: false, Raw: raw}, nil
	}

	slots := make([]domain.PriceSlot, 0, 96)
	for _, e := range parsed.Prices {
		price := e.Price
		if p.mwhDenominated {
			price /= 1000
		}
		for _, offset := range [4]int{0, 15, 30, 45} {
			slots = append(slots, domain.PriceSlot{
				SlotTS: fmt.Sprintf("%sT%02d:%02d", date, e.Hour, offset),
				Price:  price,
				Region: region,
			})
		}
	}
	return port.PriceFetchResult{Present: true, Slots: slots, Raw: raw}, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}
