package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
)

// Feed fetches raw records from one upstream disaster source, most recent first.
type Feed interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]normalize.RawRecord, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading resp.Body: %w", err)
	}
	return body, nil
}
