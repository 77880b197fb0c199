package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrRotateIP = errors.New("runner: proxy ip rotation failed")

// IPRotator asks a mobile proxy for a fresh exit address.
type IPRotator interface {
	RotateIP(ctx context.Context) error
}

// HTTPRotator hits the provider's change-ip URL; any 200 response counts as success.
type HTTPRotator struct {
	URL        string
	HTTPClient *http.Client
}

func NewHTTPRotator(url string) *HTTPRotator {
	return &HTTPRotator{URL: strings.TrimSpace(url), HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

func (r *HTTPRotator) RotateIP(ctx context.Context) error {
	if r == nil || r.URL == "" {
		return fmt.Errorf("%w: change-ip url is not set", ErrRotateIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRotateIP, err)
	}
	hc := r.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRotateIP, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRotateIP, resp.StatusCode)
	}
	return nil
}
