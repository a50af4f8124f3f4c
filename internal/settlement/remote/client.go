// Package remote queries the external settlement service over HTTP.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/odyssey-erp/settlement/internal/settlement"
)

// timeLayout is ISO-8601 with milliseconds, which the settlement service expects.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Client wraps interactions with the settlement service.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient constructs a new client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, logger: logger}
}

// Ping checks if the settlement service is available.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("settlement service returned status %d", resp.StatusCode())
	}
	return nil
}

// QuerySettlements implements settlement.Backend.
func (c *Client) QuerySettlements(ctx context.Context, q settlement.Query) (settlement.Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("sellerID", strconv.FormatInt(q.SellerID, 10)).
		SetQueryParams(map[string]string{
			"granularity": string(q.Granularity),
			"from":        q.From.Format(timeLayout),
			"to":          q.To.Format(timeLayout),
			"page":        strconv.Itoa(q.Page),
			"size":        strconv.Itoa(q.Size),
		})
	if q.Status != "" {
		req.SetQueryParam("status", string(q.Status))
	}

	resp, err := req.Get("/sellers/{sellerID}/settlements")
	if err != nil {
		return settlement.Response{}, fmt.Errorf("remote: query settlements: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return settlement.Response{}, fmt.Errorf("remote: settlement service returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	out := settlement.DecodeResponse(body)
	if out.Kind == settlement.ResponseEmpty && len(bytes.TrimSpace(body)) > 0 && !isNull(body) {
		c.logger.Warn("unrecognised settlement payload",
			slog.Int64("seller_id", q.SellerID),
			slog.String("granularity", string(q.Granularity)),
			slog.Int("bytes", len(body)))
	}
	return out, nil
}

// ActiveSellers lists sellers with settlements on or after since.
func (c *Client) ActiveSellers(ctx context.Context, since time.Time) ([]int64, error) {
	var out struct {
		SellerIDs []int64 `json:"sellerIds"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("since", since.Format(timeLayout)).
		SetResult(&out).
		Get("/sellers/active")
	if err != nil {
		return nil, fmt.Errorf("remote: active sellers: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("remote: settlement service returned status %d", resp.StatusCode())
	}
	return out.SellerIDs, nil
}

func isNull(body []byte) bool {
	return bytes.Equal(bytes.TrimSpace(body), []byte("null"))
}
