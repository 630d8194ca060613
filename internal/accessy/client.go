// Package accessy talks to the physical access control system. All calls are
// best effort: a failed sync never undoes a shipped ledger extension, the
// periodic driver re-syncs out of band.
package accessy

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Client interface {
	EnsureAccess(ctx context.Context, memberID int) error
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) Client {
	if baseURL == "" {
		return Noop{}
	}
	return &httpClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) EnsureAccess(ctx context.Context, memberID int) error {
	url := fmt.Sprintf("%s/sync/member/%d", c.baseURL, memberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("accessy sync returned status %d", resp.StatusCode)
	}
	return nil
}

// Noop is used when no access system is configured (e.g. test environments).
type Noop struct{}

func (Noop) EnsureAccess(ctx context.Context, memberID int) error {
	return nil
}
