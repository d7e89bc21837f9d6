package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes caps every upstream response body
const maxBodyBytes = 2 << 20

// Client performs JSON GET requests against third-party services
type Client struct {
	http      *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewClient creates a new upstream client
func NewClient(timeout time.Duration, userAgent string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// GetJSON fetches rawURL and decodes the JSON body into out.
// op names the call in errors and logs.
func (c *Client) GetJSON(ctx context.Context, op, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("upstream request failed", zap.String("op", op), zap.Error(err))
		return classify(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("upstream request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Kind: BadResponse, Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classify(op, ctx.Err())
		}
		return &NetworkError{Kind: BadResponse, Op: op, Err: err}
	}
	return nil
}
