package market

import (
	"context"
	"fmt"
	"net/url"
)

const DefaultJupiterURL = "https://price.jup.ag"

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price float64 `json:"price"`
	} `json:"data"`
}

// Jupiter reads spot prices from the Jupiter price API
type Jupiter struct {
	client *httpClient
}

func NewJupiter(cfg ClientConfig) (*Jupiter, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultJupiterURL
	}
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("jupiter: %w", err)
	}
	return &Jupiter{client: client}, nil
}

func (j *Jupiter) Name() string {
	return "jupiter"
}

func (j *Jupiter) Price(ctx context.Context, token string) (float64, error) {
	var resp jupiterPriceResponse
	if err := j.client.getJSON(ctx, "/v4/price?ids="+url.QueryEscape(token), &resp); err != nil {
		return 0, err
	}
	entry, ok := resp.Data[token]
	if !ok || entry.Price <= 0 {
		return 0, fmt.Errorf("jupiter %s: %w", token, ErrTokenNotListed)
	}
	return entry.Price, nil
}
