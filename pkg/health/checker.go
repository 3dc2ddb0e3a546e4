package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

const (
	defaultPath    = "/health"
	defaultRetries = 10
)

// Checker probes a freshly started service through its published port until
// it answers, leaving the retry/backoff mechanics to the HTTP client.
type Checker struct {
	host string
}

// NewChecker returns a new Checker probing services on the given host.
func NewChecker(host string) *Checker {
	return &Checker{host: host}
}

// WaitReady blocks until the service answers its readiness endpoint with a
// success status, or the retry budget is exhausted. Readiness failure does
// not undo the service start, callers only report it.
func (c *Checker) WaitReady(ctx context.Context, service string, hostPort int, hc *compose.Healthcheck) error {
	path := defaultPath
	retries := defaultRetries
	if hc != nil {
		if hc.Path != "" {
			path = hc.Path
		}
		if hc.Retries != 0 {
			retries = hc.Retries
		}
	}

	endpoint := fmt.Sprintf("http://%s:%d%s", c.host, hostPort, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request for %q: %w", endpoint, err)
	}

	log.Debug().Str("service", service).Str("endpoint", endpoint).Msg("Waiting for service to answer")

	resp, err := c.newHTTPClient(retries).Do(req)
	if err != nil {
		return fmt.Errorf("service %q is not answering on %q: %w", service, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("service %q: expected success status on %q; got %d", service, endpoint, resp.StatusCode)
	}

	log.Info().Str("service", service).Str("endpoint", endpoint).Msg("Service is ready")

	return nil
}

func (c *Checker) newHTTPClient(retries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.Logger = logger.NewWrappedLogger(log.Logger.With().Str("component", "health-checker").Logger())

	return rc.StandardClient()
}
