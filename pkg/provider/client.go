package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/docker/cli/cli/connhelper"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/sockets"
)

// DockerAPIVersion is the engine API version negotiated by the tool.
const DockerAPIVersion = "1.24"

// DockerClientOpts configures the Docker engine client.
type DockerClientOpts struct {
	HTTPClientTimeout time.Duration
	Endpoint          string
	TLSClientConfig   *ClientTLS
}

// CreateDockerClient creates a Docker engine client.
func CreateDockerClient(dcOpts DockerClientOpts) (*client.Client, error) {
	opts, err := getClientOpts(dcOpts)
	if err != nil {
		return nil, err
	}

	httpHeaders := map[string]string{
		"User-Agent": "stackctl",
	}
	opts = append(opts, client.WithHTTPHeaders(httpHeaders))
	opts = append(opts, client.WithVersion(DockerAPIVersion))

	return client.NewClientWithOpts(opts...)
}

func getClientOpts(dcOpts DockerClientOpts) ([]client.Opt, error) {
	helper, err := connhelper.GetConnectionHelper(dcOpts.Endpoint)
	if err != nil {
		return nil, err
	}

	// SSH
	if helper != nil {
		httpClient := &http.Client{
			Transport: &http.Transport{
				DialContext: helper.Dialer,
			},
		}

		return []client.Opt{
			client.WithHTTPClient(httpClient),
			client.WithTimeout(dcOpts.HTTPClientTimeout),
			client.WithHost(helper.Host), // To avoid 400 Bad Request: malformed Host header daemon error
			client.WithDialContext(helper.Dialer),
		}, nil
	}

	opts := []client.Opt{
		client.WithHost(dcOpts.Endpoint),
		client.WithTimeout(dcOpts.HTTPClientTimeout),
	}

	if dcOpts.TLSClientConfig != nil {
		conf, err := dcOpts.TLSClientConfig.CreateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("unable to create client TLS configuration: %w", err)
		}

		hostURL, err := client.ParseHostURL(dcOpts.Endpoint)
		if err != nil {
			return nil, err
		}

		tr := &http.Transport{
			TLSClientConfig: conf,
		}

		if err := sockets.ConfigureTransport(tr, hostURL.Scheme, hostURL.Host); err != nil {
			return nil, err
		}

		opts = append(opts, client.WithHTTPClient(&http.Client{Transport: tr, Timeout: dcOpts.HTTPClientTimeout}))
	}

	return opts, nil
}
