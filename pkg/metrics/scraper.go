package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"
)

const defaultMetricsPath = "/metrics"

// Scraper scrapes the Prometheus endpoints the manifest declares on
// services, through their published ports.
type Scraper struct {
	host       string
	httpClient *http.Client
}

// NewScraper returns a new Scraper probing services on the given host.
func NewScraper(host string) *Scraper {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = logger.NewWrappedLogger(log.Logger.With().Str("component", "metrics-scraper").Logger())

	return &Scraper{
		host:       host,
		httpClient: rc.StandardClient(),
	}
}

// Scrape collects metrics from every service of the manifest that declares
// a metrics block. A service that fails to answer is skipped, not fatal.
func (s *Scraper) Scrape(ctx context.Context, manifest compose.Manifest) map[string][]Metric {
	observed := make(map[string][]Metric)

	for _, name := range manifest.ServiceNames() {
		svc := manifest.Services[name]
		if svc.Metrics == nil {
			continue
		}

		metrics, err := s.scrapeService(ctx, name, svc)
		if err != nil {
			log.Warn().Err(err).Str("service", name).Msg("Unable to scrape service metrics")
			continue
		}

		observed[name] = metrics
	}

	return observed
}

func (s *Scraper) scrapeService(ctx context.Context, name string, svc compose.Service) ([]Metric, error) {
	endpoint, err := s.endpoint(svc)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", endpoint, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %q: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expected status code %d; got %d", http.StatusOK, resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse metrics exposition: %w", err)
	}

	familyNames := make([]string, 0, len(families))
	for familyName := range families {
		familyNames = append(familyNames, familyName)
	}
	sort.Strings(familyNames)

	var metrics []Metric
	for _, familyName := range familyNames {
		metrics = append(metrics, Parse(name, families[familyName])...)
	}

	return metrics, nil
}

// endpoint resolves the published address of the service metrics port.
func (s *Scraper) endpoint(svc compose.Service) (string, error) {
	mappings, err := svc.PortMappings()
	if err != nil {
		return "", err
	}
	if len(mappings) == 0 {
		return "", fmt.Errorf("service publishes no port")
	}

	path := defaultMetricsPath
	hostPort := mappings[0].HostPort

	if svc.Metrics.Path != "" {
		path = svc.Metrics.Path
	}
	if svc.Metrics.Port != 0 {
		found := false
		for _, pm := range mappings {
			if pm.ContainerPort == svc.Metrics.Port {
				hostPort = pm.HostPort
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("metrics port %d is not a published container port", svc.Metrics.Port)
		}
	}

	return fmt.Sprintf("http://%s:%d%s", s.host, hostPort, path), nil
}

// Store keeps the last metrics observation per service.
type Store struct {
	observations map[string]Observation
}

// Observation is a timestamped set of metrics scraped from one service.
type Observation struct {
	At      time.Time
	Metrics []Metric
}

// NewStore returns a new Store.
func NewStore() *Store {
	return &Store{observations: make(map[string]Observation)}
}

// Set records the last observation for a service.
func (s *Store) Set(service string, metrics []Metric) {
	s.observations[service] = Observation{At: time.Now(), Metrics: metrics}
}

// Get returns the last observation for a service.
func (s *Store) Get(service string) (Observation, bool) {
	obs, ok := s.observations[service]
	return obs, ok
}
