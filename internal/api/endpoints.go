package api

import (
	"context"
	"net/url"
)

// SearchSymbols queries the symbol directory. An empty result is not an
// error; it renders as an empty state.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]SymbolHit, error) {
	var hits []SymbolHit
	path := "/symbols?query=" + url.QueryEscape(query)
	if err := c.Get(ctx, path, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// MarketNews fetches the market-wide news feed.
func (c *Client) MarketNews(ctx context.Context) ([]NewsItem, error) {
	var resp NewsResponse
	if err := c.Get(ctx, "/news", &resp); err != nil {
		return nil, err
	}
	return resp.News, nil
}

// SymbolNews fetches the news feed for one symbol.
func (c *Client) SymbolNews(ctx context.Context, symbol string) ([]NewsItem, error) {
	var resp NewsResponse
	if err := c.Get(ctx, "/news/"+url.PathEscape(symbol), &resp); err != nil {
		return nil, err
	}
	return resp.News, nil
}
