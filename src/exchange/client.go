// Package exchange adapts the perps venue's HTTP API behind a uniform
// interface. Transient failures are retried with bounded backoff here;
// business rejections surface immediately.
package exchange

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/helix-markets/agentfleet/src/custody"
	"github.com/helix-markets/agentfleet/src/webclient"
)

// Config tunes the venue client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *log.Logger
}

// Client talks to the venue's /info (reads) and /exchange (signed actions)
// endpoints.
type Client struct {
	baseURL     string
	http        *http.Client
	maxAttempts int
	retryDelay  time.Duration
	log         *log.Logger
}

var _ Adapter = (*Client)(nil)

// NewClient builds a venue client from config.
func NewClient(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        webclient.NewDefault(cfg.Timeout),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		log:         cfg.Logger,
	}
}

type accountStateResp struct {
	Equity       string `json:"equity"`
	Balance      string `json:"balance"`
	MarginUsed   string `json:"margin_used"`
	Withdrawable string `json:"withdrawable"`
	Positions    []struct {
		Asset         string `json:"asset"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		EntryPrice    string `json:"entry_price"`
		Leverage      int    `json:"leverage"`
		UnrealizedPnL string `json:"unrealized_pnl"`
	} `json:"positions"`
}

func (c *Client) AccountState(ctx context.Context, address string) (*AccountState, error) {
	body, err := c.info(ctx, map[string]any{"type": "accountState", "user": address})
	if err != nil {
		return nil, err
	}
	var resp accountStateResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode account state: %w", err)
	}
	st := &AccountState{
		Address:      address,
		Equity:       parseDec(resp.Equity),
		Balance:      parseDec(resp.Balance),
		MarginUsed:   parseDec(resp.MarginUsed),
		Withdrawable: parseDec(resp.Withdrawable),
		RetrievedAt:  time.Now().UTC(),
	}
	for _, p := range resp.Positions {
		st.Positions = append(st.Positions, Position{
			Asset:         strings.ToUpper(p.Asset),
			Side:          p.Side,
			Size:          parseDec(p.Size),
			EntryPrice:    parseDec(p.EntryPrice),
			Leverage:      p.Leverage,
			UnrealizedPnL: parseDec(p.UnrealizedPnL),
		})
	}
	return st, nil
}

type marketStateResp struct {
	MarkPrice   string  `json:"mark_price"`
	MidPrice    string  `json:"mid_price"`
	Change24h   float64 `json:"change_24h"`
	Volume24h   string  `json:"volume_24h"`
	FundingRate string  `json:"funding_rate"`
}

func (c *Client) MarketState(ctx context.Context, asset string) (*MarketState, error) {
	body, err := c.info(ctx, map[string]any{"type": "marketState", "asset": strings.ToUpper(asset)})
	if err != nil {
		return nil, err
	}
	var resp marketStateResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode market state: %w", err)
	}
	return &MarketState{
		Asset:       strings.ToUpper(asset),
		MarkPrice:   parseDec(resp.MarkPrice),
		MidPrice:    parseDec(resp.MidPrice),
		Change24h:   resp.Change24h,
		Volume24h:   parseDec(resp.Volume24h),
		FundingRate: parseDec(resp.FundingRate),
		RetrievedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) UpdateLeverage(ctx context.Context, signer custody.Signer, asset string, leverage int) error {
	if leverage < 1 {
		return RejectErr(CodeBadRequest, fmt.Sprintf("leverage %d below 1", leverage))
	}
	action := map[string]any{
		"type":     "updateLeverage",
		"asset":    strings.ToUpper(asset),
		"leverage": leverage,
	}
	_, err := c.signedAction(ctx, signer, action)
	return err
}

type orderResp struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	AvgPrice string `json:"avg_price"`
	FilledSz string `json:"filled_size"`
}

func (c *Client) SubmitOrder(ctx context.Context, signer custody.Signer, req OrderRequest) (*OrderResult, error) {
	if req.Asset == "" || req.SizeUSD.Sign() <= 0 {
		return nil, RejectErr(CodeBadRequest, "order missing asset or size")
	}
	action := map[string]any{
		"type":         "marketOrder",
		"cloid":        req.ID,
		"asset":        strings.ToUpper(req.Asset),
		"side":         req.Side,
		"size_usd":     req.SizeUSD.String(),
		"reduce_only":  req.ReduceOnly,
		"slippage_bps": req.SlippageBps,
	}
	body, err := c.signedAction(ctx, signer, action)
	if err != nil {
		return nil, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode order result: %w", err)
	}
	return &OrderResult{
		OrderID:  resp.OrderID,
		Status:   resp.Status,
		Filled:   resp.Status == "filled",
		AvgPrice: parseDec(resp.AvgPrice),
		FilledSz: parseDec(resp.FilledSz),
	}, nil
}

func (c *Client) BuilderFeeApproved(ctx context.Context, address, builder string) (bool, error) {
	body, err := c.info(ctx, map[string]any{"type": "builderFee", "user": address, "builder": builder})
	if err != nil {
		return false, err
	}
	var resp struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("exchange: decode builder fee state: %w", err)
	}
	return resp.Approved, nil
}

func (c *Client) ApproveBuilderFee(ctx context.Context, signer custody.Signer, builder string, maxFeeBps int) error {
	action := map[string]any{
		"type":        "approveBuilderFee",
		"builder":     builder,
		"max_fee_bps": maxFeeBps,
	}
	_, err := c.signedAction(ctx, signer, action)
	return err
}

// info posts a read-only query, retrying transient failures.
func (c *Client) info(ctx context.Context, query map[string]any) ([]byte, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("exchange: encode info query: %w", err)
	}
	return c.post(ctx, "/info", payload)
}

// signedAction signs the canonical action envelope and posts it. The venue
// authenticates via the recovered address, so both signing backends produce
// an identical wire shape.
func (c *Client) signedAction(ctx context.Context, signer custody.Signer, action map[string]any) ([]byte, error) {
	nonce := time.Now().UnixMilli()
	canonical, err := json.Marshal(map[string]any{"action": action, "nonce": nonce})
	if err != nil {
		return nil, fmt.Errorf("exchange: encode action: %w", err)
	}
	sig, err := signer.SignPayload(ctx, canonical)
	if err != nil {
		return nil, err
	}
	envelope, err := json.Marshal(map[string]any{
		"action":    action,
		"nonce":     nonce,
		"address":   signer.Address(),
		"signature": "0x" + hex.EncodeToString(sig),
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: encode envelope: %w", err)
	}
	return c.post(ctx, "/exchange", envelope)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	status, body, err := webclient.DoWithRetry(ctx, c.maxAttempts, c.retryDelay, 15*time.Second, func() (int, []byte, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if rerr != nil {
			return 0, nil, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return 0, nil, rerr
		}
		defer resp.Body.Close()
		b, rerr := io.ReadAll(resp.Body)
		return resp.StatusCode, b, rerr
	})
	if err != nil {
		return nil, TransientErr(CodeTimeout, err.Error())
	}
	switch {
	case status == http.StatusOK:
		return body, nil
	case status == http.StatusTooManyRequests:
		return nil, TransientErr(CodeRateLimited, "venue rate limit")
	case status >= 500:
		return nil, TransientErr(CodeUnavailable, fmt.Sprintf("venue status %d", status))
	default:
		return nil, rejectionFromBody(status, body)
	}
}

// rejectionFromBody maps a 4xx body onto the business-error taxonomy.
func rejectionFromBody(status int, body []byte) error {
	var resp struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &resp)
	msg := resp.Error
	if msg == "" {
		msg = fmt.Sprintf("venue status %d", status)
	}
	code := resp.Code
	if code == "" {
		code = CodeOrderRejected
	}
	switch code {
	case CodeInsufficientMargin, CodeInvalidSymbol, CodeLeverageCap, CodeBadRequest, CodeOrderRejected:
		return RejectErr(code, msg)
	default:
		return RejectErr(CodeOrderRejected, msg)
	}
}

func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
