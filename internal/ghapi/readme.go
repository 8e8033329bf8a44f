package ghapi

import (
	"context"
	"fmt"
)

// ReadmeResult carries the raw README bytes and cache metadata.
type ReadmeResult struct {
	Content   []byte
	ETag      string
	SourceURL string
	FromCache bool
}

// FetchReadme retrieves a repo's README as raw bytes via the core bucket.
// A 404 surfaces as an *Error with Status 404; callers treat that as
// "repo has no README", not a failure.
func (c *Client) FetchReadme(ctx context.Context, fullName string) (*ReadmeResult, error) {
	path := "/repos/" + fullName + "/readme"
	resp, err := c.Do(ctx, Request{
		Path:   path,
		Accept: RawAccept,
		Bucket: BucketCore,
	})
	if err != nil {
		return nil, fmt.Errorf("readme fetch for %s failed: %w", fullName, err)
	}
	return &ReadmeResult{
		Content:   resp.Body,
		ETag:      resp.Header.Get("ETag"),
		SourceURL: c.BaseURL + path,
		FromCache: resp.FromCache,
	}, nil
}
