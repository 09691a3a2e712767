package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"HabitPact/pkg/errors"
)

// HTTPClient 通过 HTTP 调用外部打款服务
type HTTPClient struct {
	hc      *client.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

type payoutRequest struct {
	Currency    string `json:"currency"`
	UserID      int64  `json:"user_id,string"`
	AmountCents int64  `json:"amount_cents"`
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("payout base url is required")
	}
	hc, err := client.NewClient(client.WithDialTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create payout http client: %w", err)
	}
	return &HTTPClient{
		hc:      hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
	}, nil
}

// RequestPayout 4xx 视为拒绝，其余失败视为通道暂不可用
func (c *HTTPClient) RequestPayout(ctx context.Context, userID, amountCents int64, currency, idempotencyKey string) (*Result, error) {
	body, err := json.Marshal(payoutRequest{Currency: currency, UserID: userID, AmountCents: amountCents})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payout request: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.baseURL + "/v1/payouts")
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.SetBody(body)

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.PayoutUnavailable, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 500 || status == consts.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", errors.PayoutUnavailable, status)
	case status >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", errors.PayoutRejected, status, string(resp.Body()))
	}

	var result Result
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", errors.PayoutUnavailable, err)
	}
	if result.TransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", errors.PayoutUnavailable)
	}
	return &result, nil
}
