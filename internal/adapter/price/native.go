// Package price holds the two out-of-the-box spot-price provider
// variants (§4.7): a native 15-minute API and an hourly API that gets
// expanded into quarter-hour slots.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
)

// NativeProvider fetches a day's worth of 15-minute prices already
// quantized to the target slot grid; it only needs to normalize the
// timestamp format.
type NativeProvider struct {
	baseURL string
	http    *http.Client
}

func NewNativeProvider(baseURL string) *NativeProvider {
	return &NativeProvider{baseURL: baseURL, http: &http.Client{Timeout: 15 * time.Second}}
}

type nativeSlot struct {
	TS    string  `json:"ts"`
	Price float64 `json:"price"`
}

type nativeResponse struct {
	Present bool         `json:"present"`
	Slots   []nativeSlot `json:"slots"`
}

func (p *NativeProvider) Fetch(ctx context.Context, date string, region string) (port.PriceFetchResult, error) {
	url := fmt.Sprintf("%s/v1/prices/%s?region=%s", p.baseURL, date, region)
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
		return port.PriceFetchResult{}, fmt.Errorf("price: native provider status %d", resp.StatusCode)
	}

	raw, err := readAll(resp)
	if err != nil {
		return port.PriceFetchResult{}, err
	}

	var parsed nativeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return port.PriceFetchResult{}, err
	}
	if !parsed.Present {
		return port.PriceFetchResult{Present: false, Raw: raw}, nil
	}

	slots := make([]domain.PriceSlot, 0, len(parsed.Slots))
	for _, s := range parsed.Slots {
		slots = append(slots, domain.PriceSlot{SlotTS: normalizeSlotTS(s.TS), Price: s.Price, Region: region})
	}
	return port.PriceFetchResult{Present: true, Slots: slots, Raw: raw}, nil
}

func normalizeSlotTS(ts string) string {
	if len(ts) >= 16 {
		return ts[:16]
	}
	return ts
}
