// Package terminal provides implementations of models.TerminalAPI: a REST
// bridge client for terminals exposing an HTTP shim, and an in-memory mock
// used by the engine's tests and paper mode.
package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	platformhttp "github.com/Alias1177/Executor/internal/platform/http"
	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client talks to a terminal-side HTTP bridge. Reads (tick, account,
// instruments) retry with backoff; order operations are sent exactly once.
type Client struct {
	baseURL string
	http    *platformhttp.Client
	logger  zerolog.Logger
}

// NewClient creates a bridge client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: platformhttp.NewClient(platformhttp.ClientOptions{
			Timeout:        timeout,
			RequestsPerSec: 10,
		}),
		logger: log.With().Str("component", "terminal").Logger(),
	}
}

type sendResponse struct {
	Ticket      int64   `json:"ticket"`
	FilledPrice float64 `json:"filled_price"`
	Code        int     `json:"code"`
	Message     string  `json:"message"`
}

// OrderSend places an order. Never retried: a duplicate send is duplicate
// exposure on the account.
func (c *Client) OrderSend(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("encoding order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.DoRequestOnce(ctx, httpReq)
	if err != nil {
		return models.OrderResult{}, &models.ExecutionError{Reason: "terminal unresponsive: " + err.Error()}
	}
	defer resp.Body.Close()

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return models.OrderResult{}, &models.ExecutionError{Reason: "malformed terminal response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || sr.Code != 0 {
		return models.OrderResult{Code: sr.Code}, &models.ExecutionError{Code: sr.Code, Reason: sr.Message}
	}

	c.logger.Info().Int64("ticket", sr.Ticket).Str("symbol", req.Symbol).Msg("Order placed")
	return models.OrderResult{Ticket: sr.Ticket, FilledPrice: sr.FilledPrice, Code: sr.Code}, nil
}

// OrderModify updates SL/TP on a live order.
func (c *Client) OrderModify(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	return c.postOnce(ctx, fmt.Sprintf("/order/%d/modify", ticket), map[string]float64{
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	})
}

// OrderClose closes an order fully or partially.
func (c *Client) OrderClose(ctx context.Context, ticket int64, volume float64) error {
	return c.postOnce(ctx, fmt.Sprintf("/order/%d/close", ticket), map[string]float64{
		"volume": volume,
	})
}

// OrderDelete cancels a pending order.
func (c *Client) OrderDelete(ctx context.Context, ticket int64) error {
	return c.postOnce(ctx, fmt.Sprintf("/order/%d/delete", ticket), nil)
}

// Tick fetches the current quote for a symbol; retried with backoff.
func (c *Client) Tick(ctx context.Context, symbol string) (models.Tick, error) {
	var tick models.Tick
	err := c.getJSON(ctx, "/tick?symbol="+url.QueryEscape(symbol), &tick)
	if err != nil {
		return models.Tick{}, fmt.Errorf("fetching tick for %s: %w", symbol, err)
	}
	return tick, nil
}

// Account fetches the account snapshot; retried with backoff.
func (c *Client) Account(ctx context.Context) (models.AccountSnapshot, error) {
	var snap models.AccountSnapshot
	if err := c.getJSON(ctx, "/account", &snap); err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("fetching account: %w", err)
	}
	return snap, nil
}

// Instruments fetches the terminal's instrument list; retried with backoff.
func (c *Client) Instruments(ctx context.Context) ([]string, error) {
	var list []string
	if err := c.getJSON(ctx, "/instruments", &list); err != nil {
		return nil, fmt.Errorf("fetching instruments: %w", err)
	}
	return list, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.DoRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	return nil
}

func (c *Client) postOnce(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.DoRequestOnce(ctx, req)
	if err != nil {
		return &models.ExecutionError{Reason: "terminal unresponsive: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var sr sendResponse
		_ = json.NewDecoder(resp.Body).Decode(&sr)
		return &models.ExecutionError{Code: sr.Code, Reason: sr.Message}
	}
	return nil
}
