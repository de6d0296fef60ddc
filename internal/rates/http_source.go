package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches {"base": "...", "rates": {"USD": 0.055}} documents.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	endpoint := s.baseURL + "/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates endpoint returned %d", resp.StatusCode)
	}
	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if payload.Base != "" && !strings.EqualFold(payload.Base, base) {
		return nil, fmt.Errorf("rates quoted against %s, asked for %s", payload.Base, base)
	}
	out := make(map[string]decimal.Decimal, len(payload.Rates)+1)
	for code, rate := range payload.Rates {
		out[strings.ToUpper(code)] = rate
	}
	if _, ok := out[base]; !ok {
		out[base] = decimal.NewFromInt(1)
	}
	return out, nil
}
