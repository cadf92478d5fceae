// Package oracle implements the optional external price oracle
// collaborator used only to enrich responses with USD figures (spec.md §1,
// §6); a nil *Client disables enrichment entirely, since price data is not
// required for correctness of any weight computed by EE.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client fetches USD prices for token addresses from an external oracle.
// A nil *Client is valid and Price on it always returns ok=false.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *logrus.Logger
}

// New creates a Client, or returns nil if baseURL is empty (oracle
// enrichment disabled).
func New(baseURL string, timeout time.Duration, log *logrus.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		log:        log,
	}
}

type priceResponse struct {
	PriceUSD float64 `json:"price_usd"`
}

// Price fetches the USD price of a token address. A nil receiver or any
// upstream failure yields ok=false rather than an error, since price
// enrichment is best-effort (spec.md §4.7).
func (c *Client) Price(ctx context.Context, tokenAddress string) (price float64, ok bool) {
	if c == nil {
		return 0, false
	}
	url := fmt.Sprintf("%s/price?token=%s", c.baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("token", tokenAddress).Warn("oracle: price fetch failed")
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	var parsed priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false
	}
	return parsed.PriceUSD, true
}
