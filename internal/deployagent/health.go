package deployagent

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthPollInterval implements spec §4.3 step 8's polling cadence: poll
// every 500ms, accepting any response status below 500 as healthy, for up
// to the deadline the caller passes to waitForHealthy (15s in process mode).
const (
	healthPollInterval = 500 * time.Millisecond
)

// waitForHealthy polls http://localhost:<port>/ until it receives a
// response with status < 500, or deadline elapses.
func waitForHealthy(ctx context.Context, port int, deadline time.Duration) error {
	client := &http.Client{Timeout: healthPollInterval}
	url := fmt.Sprintf("http://localhost:%d/", port)

	timeoutCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		if probeOnce(timeoutCtx, client, url) {
			return nil
		}
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("service on port %d did not become healthy within %s", port, deadline)
		case <-ticker.C:
		}
	}
}

func probeOnce(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
