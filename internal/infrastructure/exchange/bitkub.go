package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/vitos/crypto_grid_bot/internal/domain"
)

const (
	BitkubBaseURL = "https://api.bitkub.com"
	BitkubWSURL   = "wss://api.bitkub.com/websocket-api"

	retryMax       = 4
	retryBaseDelay = 600 * time.Millisecond
)

// BitkubAdapter implements the Exchange port against the Bitkub v3 REST API.
// Every call retries transient failures with jittered exponential backoff
// before surfacing an error.
type BitkubAdapter struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	client     *http.Client
	priceRound int
	qtyRound   int
}

func NewBitkubAdapter(apiKey, apiSecret, baseURL string, priceRound, qtyRound int) *BitkubAdapter {
	if baseURL == "" {
		baseURL = BitkubBaseURL
	}
	return &BitkubAdapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 12 * time.Second},
		priceRound: priceRound,
		qtyRound:   qtyRound,
	}
}

// --- signing ---

// v3 signature: HMAC-SHA256 over timestamp + METHOD + requestPath + body.
func (b *BitkubAdapter) sign(timestampMs, method, path, body string) string {
	payload := timestampMs + method + path + body
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func backoffSleep(attempt int) {
	delay := retryBaseDelay*time.Duration(1<<attempt) + time.Duration(rand.Int63n(int64(200*time.Millisecond)))
	time.Sleep(delay)
}

func (b *BitkubAdapter) doRequest(ctx context.Context, method, path string, body []byte, signed bool) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		if signed {
			ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
			req.Header.Set("X-BTK-APIKEY", b.apiKey)
			req.Header.Set("X-BTK-TIMESTAMP", ts)
			req.Header.Set("X-BTK-SIGN", b.sign(ts, method, path, string(body)))
		}

		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("bitkub %s %s attempt %d: %v", method, path, attempt+1, err)
			backoffSleep(attempt)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			backoffSleep(attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("bitkub %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
			log.Printf("%v (attempt %d)", lastErr, attempt+1)
			backoffSleep(attempt)
			continue
		}
		return respBody, nil
	}
	return nil, lastErr
}

// --- public market data ---

// GetRecentTrades fetches and normalizes the recent-trades feed, oldest
// first. Rows with non-positive price or amount are dropped.
func (b *BitkubAdapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]domain.PublicTrade, error) {
	path := fmt.Sprintf("/api/v3/market/trades?sym=%s&lmt=%d", symbol, limit)
	resp, err := b.doRequest(ctx, "GET", path, nil, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		Error  int               `json:"error"`
		Result []json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if result.Error != 0 {
		return nil, fmt.Errorf("bitkub trades error code %d", result.Error)
	}

	trades := make([]domain.PublicTrade, 0, len(result.Result))
	for _, raw := range result.Result {
		// Row format: [timestamp, rate, amount, side]
		var row []json.Number
		if err := json.Unmarshal(raw, &row); err != nil || len(row) < 3 {
			continue
		}
		ts, _ := row[0].Int64()
		rate, _ := row[1].Float64()
		amount, _ := row[2].Float64()
		if rate <= 0 || amount <= 0 {
			continue
		}
		trades = append(trades, domain.PublicTrade{Time: ts, Price: rate, Amount: amount})
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].Time < trades[j].Time })
	return trades, nil
}

// --- account ---

// GetAvailable resolves the available balance through a fallback chain:
// the balances endpoint first (knows about reserved amounts), then the
// wallet endpoint. OK=false means both failed and the caller must assume
// zero.
func (b *BitkubAdapter) GetAvailable(ctx context.Context, asset string) domain.BalanceResult {
	if v, err := b.balanceFromBalances(ctx, asset); err == nil {
		return domain.BalanceResult{Value: v, Source: "balances", OK: true}
	} else {
		log.Printf("bitkub balances lookup failed for %s: %v", asset, err)
	}

	if v, err := b.balanceFromWallet(ctx, asset); err == nil {
		return domain.BalanceResult{Value: v, Source: "wallet", OK: true}
	} else {
		log.Printf("bitkub wallet lookup failed for %s: %v", asset, err)
	}

	return domain.BalanceResult{}
}

func (b *BitkubAdapter) balanceFromBalances(ctx context.Context, asset string) (float64, error) {
	resp, err := b.doRequest(ctx, "POST", "/api/v3/market/balances", []byte("{}"), true)
	if err != nil {
		return 0, err
	}

	var result struct {
		Error  int `json:"error"`
		Result map[string]struct {
			Available float64 `json:"available"`
			Reserved  float64 `json:"reserved"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	if result.Error != 0 {
		return 0, fmt.Errorf("bitkub balances error code %d", result.Error)
	}

	node, ok := result.Result[asset]
	if !ok {
		return 0, fmt.Errorf("asset %s not in balances", asset)
	}
	return node.Available, nil
}

func (b *BitkubAdapter) balanceFromWallet(ctx context.Context, asset string) (float64, error) {
	resp, err := b.doRequest(ctx, "POST", "/api/v3/market/wallet", []byte("{}"), true)
	if err != nil {
		return 0, err
	}

	var result struct {
		Error  int                `json:"error"`
		Result map[string]float64 `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	if result.Error != 0 {
		return 0, fmt.Errorf("bitkub wallet error code %d", result.Error)
	}

	v, ok := result.Result[asset]
	if !ok {
		return 0, fmt.Errorf("asset %s not in wallet", asset)
	}
	return v, nil
}

// --- orders ---

// PlaceBuy submits a limit bid. Bitkub requires the quote amount as a whole
// number, so it is floored; the engine treats the estimated quantity at the
// limit price as the filled quantity (partial fills below poll granularity
// are not tracked).
func (b *BitkubAdapter) PlaceBuy(ctx context.Context, symbol string, quoteAmount, limitPrice float64) (domain.OrderResult, error) {
	payload := map[string]interface{}{
		"sym": symbol,
		"amt": math.Floor(quoteAmount),
		"rat": roundTo(limitPrice, b.priceRound),
		"typ": "limit",
	}
	if err := b.placeOrder(ctx, "/api/v3/market/place-bid", payload); err != nil {
		return domain.OrderResult{}, err
	}
	rate := roundTo(limitPrice, b.priceRound)
	return domain.OrderResult{
		Filled:      true,
		FilledQty:   math.Floor(quoteAmount) / rate,
		FilledPrice: rate,
	}, nil
}

// PlaceSell submits a limit ask for the given base quantity.
func (b *BitkubAdapter) PlaceSell(ctx context.Context, symbol string, baseQty, limitPrice float64) (domain.OrderResult, error) {
	qty := roundTo(baseQty, b.qtyRound)
	payload := map[string]interface{}{
		"sym": symbol,
		"amt": qty,
		"rat": roundTo(limitPrice, b.priceRound),
		"typ": "limit",
	}
	if err := b.placeOrder(ctx, "/api/v3/market/place-ask", payload); err != nil {
		return domain.OrderResult{}, err
	}
	return domain.OrderResult{
		Filled:      true,
		FilledQty:   qty,
		FilledPrice: roundTo(limitPrice, b.priceRound),
	}, nil
}

func (b *BitkubAdapter) placeOrder(ctx context.Context, path string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := b.doRequest(ctx, "POST", path, body, true)
	if err != nil {
		return err
	}

	var result struct {
		Error int `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if result.Error != 0 {
		return fmt.Errorf("bitkub order error code %d: %s", result.Error, string(resp))
	}
	return nil
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
