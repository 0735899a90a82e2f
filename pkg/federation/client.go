package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	joinRetryAttempts = 5
	joinRetryDelay    = 2 * time.Second
)

// Bootstrap attaches selfAddr to the reduction tree rooted (directly or
// transitively) at rootURL: it calls rootURL's /pivot, retrying up to
// joinRetryAttempts times at joinRetryDelay apart to tolerate a root
// server that is still starting up, then calls the returned
// parent's /join so the parent begins scraping selfAddr. It returns the
// parent's base URL the caller should remember (for bookkeeping only;
// the scrape registration happens on the parent's side).
func Bootstrap(ctx context.Context, client *http.Client, rootURL, selfAddr string, period time.Duration) (string, error) {
	var parent string
	var lastErr error

	for attempt := 0; attempt < joinRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(joinRetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		p, err := pivot(ctx, client, rootURL, selfAddr)
		if err != nil {
			lastErr = err
			continue
		}
		parent = p
		lastErr = nil
		break
	}
	if lastErr != nil {
		return "", fmt.Errorf("federation: bootstrap via %s: %w", rootURL, lastErr)
	}

	if err := join(ctx, client, parent, selfAddr, period); err != nil {
		return "", fmt.Errorf("federation: join %s: %w", parent, err)
	}
	return parent, nil
}

func pivot(ctx context.Context, client *http.Client, rootURL, selfAddr string) (string, error) {
	u := fmt.Sprintf("%s/pivot?from=%s", rootURL, url.QueryEscape(selfAddr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pivot returned status %d", resp.StatusCode)
	}
	var body struct {
		Parent string `json:"parent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode pivot response: %w", err)
	}
	return body.Parent, nil
}

func join(ctx context.Context, client *http.Client, parentURL, selfAddr string, period time.Duration) error {
	u := fmt.Sprintf("%s/join?to=%s&period=%g", parentURL, url.QueryEscape(selfAddr), period.Seconds())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join returned status %d", resp.StatusCode)
	}
	return nil
}
