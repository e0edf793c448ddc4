package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/evetabi/buyback/internal/config"
)

// QuoteParams contains the parameters for requesting a swap quote.
type QuoteParams struct {
	SellToken   string // input token contract address
	BuyToken    string // output token contract address
	SellAmount  string // amount in base units
	SlippageBps int    // slippage tolerance in basis points
	Taker       string // address executing the swap (the executor wallet)
}

// Quote is the aggregator's response: the expected output amount plus a
// ready-to-sign transaction payload routing the swap.
type Quote struct {
	SellAmount     string `json:"sellAmount"`
	BuyAmount      string `json:"buyAmount"`      // base units of BuyToken
	To             string `json:"to"`             // router contract to call
	Data           string `json:"data"`           // hex calldata
	Value          string `json:"value"`          // native value to attach (usually "0")
	Gas            string `json:"gas"`            // suggested gas limit
	PriceImpactPct string `json:"priceImpactPct"` // informational
}

// QuoteClient talks to the swap-routing aggregator API.
type QuoteClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewQuoteClient constructs a QuoteClient from the given config.
func NewQuoteClient(cfg *config.QuoteConfig) *QuoteClient {
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &QuoteClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// GetQuote fetches a firm swap quote for the given sell amount.
//
//	GET /swap/v1/quote?sellToken=..&buyToken=..&sellAmount=..&slippageBps=..&taker=..
//
// A non-200 response or malformed body is returned as an error with no
// on-chain effect; the caller records the trade as failed.
func (c *QuoteClient) GetQuote(ctx context.Context, params *QuoteParams) (*Quote, error) {
	if params.SellToken == "" || params.BuyToken == "" {
		return nil, fmt.Errorf("quote: sellToken and buyToken are required")
	}
	if params.SellAmount == "" {
		return nil, fmt.Errorf("quote: sellAmount is required")
	}

	query := url.Values{}
	query.Set("sellToken", params.SellToken)
	query.Set("buyToken", params.BuyToken)
	query.Set("sellAmount", params.SellAmount)
	if params.SlippageBps > 0 {
		query.Set("slippageBps", strconv.Itoa(params.SlippageBps))
	}
	if params.Taker != "" {
		query.Set("taker", params.Taker)
	}

	requestURL := fmt.Sprintf("%s/swap/v1/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("quote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("quote: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote: aggregator error (status %d): %s", resp.StatusCode, string(body))
	}

	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("quote: parse response: %w", err)
	}
	if q.BuyAmount == "" || q.To == "" || q.Data == "" {
		return nil, fmt.Errorf("quote: incomplete response: %s", string(body))
	}
	return &q, nil
}
