package ghapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SearchRepo is the subset of the search-result item we persist.
type SearchRepo struct {
	FullName        string     `json:"full_name"`
	StargazersCount int        `json:"stargazers_count"`
	ForksCount      int        `json:"forks_count"`
	Topics          []string   `json:"topics"`
	Language        string     `json:"language"`
	License         *License   `json:"license"`
	PushedAt        *time.Time `json:"pushed_at"`
	Archived        bool       `json:"archived"`
	Fork            bool       `json:"fork"`
}

// License carries the SPDX identifier GitHub reports.
type License struct {
	SPDXID string `json:"spdx_id"`
}

// SearchResult is one page of /search/repositories.
type SearchResult struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []SearchRepo `json:"items"`
}

// SearchRepositories fetches one page of repository search results,
// sorted by stars descending. Uses the search bucket.
func (c *Client) SearchRepositories(ctx context.Context, query string, page, perPage int) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	resp, err := c.Do(ctx, Request{
		Path:   "/search/repositories",
		Bucket: BucketSearch,
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("repository search failed: %w", err)
	}

	var result SearchResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &result, nil
}
