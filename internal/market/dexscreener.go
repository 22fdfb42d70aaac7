package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const DefaultDexScreenerURL = "https://api.dexscreener.com"

// Pair is one trading pair for a token
type Pair struct {
	DexID          string
	PairAddress    string
	PriceUSD       float64
	LiquidityUSD   float64
	PriceChangeH12 float64 // Percent
}

// MostLiquid returns the pair with the highest USD liquidity
func MostLiquid(pairs []Pair) (Pair, bool) {
	if len(pairs) == 0 {
		return Pair{}, false
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.LiquidityUSD > best.LiquidityUSD {
			best = p
		}
	}
	return best, true
}

type dexPairsResponse struct {
	Pairs []struct {
		DexID       string `json:"dexId"`
		PairAddress string `json:"pairAddress"`
		PriceUSD    string `json:"priceUsd"`
		Liquidity   *struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		PriceChange *struct {
			H12 float64 `json:"h12"`
		} `json:"priceChange"`
	} `json:"pairs"`
}

// DexScreener reads pair data from the DexScreener token endpoint
type DexScreener struct {
	client *httpClient
}

func NewDexScreener(cfg ClientConfig) (*DexScreener, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultDexScreenerURL
	}
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: %w", err)
	}
	return &DexScreener{client: client}, nil
}

func (d *DexScreener) Name() string {
	return "dexscreener"
}

// Pairs returns every pair DexScreener knows for token. A token with no
// market yields an empty slice, not an error.
func (d *DexScreener) Pairs(ctx context.Context, token string) ([]Pair, error) {
	var resp dexPairsResponse
	if err := d.client.getJSON(ctx, "/latest/dex/tokens/"+url.PathEscape(token), &resp); err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(resp.Pairs))
	for _, raw := range resp.Pairs {
		p := Pair{DexID: raw.DexID, PairAddress: raw.PairAddress}
		if raw.PriceUSD != "" {
			price, err := strconv.ParseFloat(raw.PriceUSD, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid priceUsd %q for pair %s: %w", raw.PriceUSD, raw.PairAddress, err)
			}
			p.PriceUSD = price
		}
		if raw.Liquidity != nil {
			p.LiquidityUSD = raw.Liquidity.USD
		}
		if raw.PriceChange != nil {
			p.PriceChangeH12 = raw.PriceChange.H12
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// Price returns the USD price of the most liquid pair
func (d *DexScreener) Price(ctx context.Context, token string) (float64, error) {
	pairs, err := d.Pairs(ctx, token)
	if err != nil {
		return 0, err
	}
	best, ok := MostLiquid(pairs)
	if !ok || best.PriceUSD <= 0 {
		return 0, fmt.Errorf("dexscreener %s: %w", token, ErrTokenNotListed)
	}
	return best.PriceUSD, nil
}
