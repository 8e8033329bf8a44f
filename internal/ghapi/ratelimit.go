package ghapi

import (
	"context"
	"fmt"
)

// RateLimitSnapshot returns the raw /rate_limit response body. The caller
// persists it verbatim; this client never interprets it beyond logging.
func (c *Client) RateLimitSnapshot(ctx context.Context) ([]byte, error) {
	resp, err := c.Do(ctx, Request{
		Path:   "/rate_limit",
		Bucket: BucketCore,
	})
	if err != nil {
		return nil, fmt.Errorf("rate-limit snapshot failed: %w", err)
	}
	return resp.Body, nil
}
