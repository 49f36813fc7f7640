// Package datadog provides a destination client for Datadog logs intake API
//
// The remote URL is "datadog://intake-host" for HTTPS or "datadog+http://host:port" for plain HTTP, e.g. a local
// proxy. Index is used as the service name, and password as the API key.
package datadog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/output/baseoutput"
	"github.com/relex/slog-relay/output/shared"
)

const intakePath = "/api/v2/logs"

const maxErrorBodyLength = 512

// source is the "ddsource" attribute of all events
const source = "slog-relay"

type client struct {
	logger     logger.Logger
	endpoint   string
	apiKey     string
	service    string
	hostname   string
	compress   bool
	httpClient *http.Client
	metrics    baseoutput.ClientMetrics
}

type intakeEvent struct {
	Source   string `json:"ddsource"`
	Service  string `json:"service"`
	Hostname string `json:"hostname,omitempty"`
	Message  string `json:"message"`
}

// NewClient creates a Datadog client for the given destination
func NewClient(parentLogger logger.Logger, config base.DestinationConfig, metricCreator promreg.MetricCreator) (base.Destination, error) {
	u, err := url.Parse(config.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid remote URL: missing host in '%s'", config.String())
	}
	endpoint := &url.URL{Scheme: "https", Host: u.Host, Path: intakePath}
	if u.Scheme == "datadog+http" {
		endpoint.Scheme = "http"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defs.ForwarderRequestTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify} //nolint:gosec // configurable

	hostname, herr := os.Hostname()
	if herr != nil {
		parentLogger.Warnf("failed to get hostname: %s", herr.Error())
	}

	return &client{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "DatadogClient",
			defs.LabelRemote:    u.Host,
		}),
		endpoint:   endpoint.String(),
		apiKey:     config.Password,
		service:    config.Index,
		hostname:   hostname,
		compress:   config.Compress,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		metrics:    baseoutput.NewClientMetrics(metricCreator, "datadog", u.Host),
	}, nil
}

func (c *client) Send(ctx context.Context, payload string) error {
	c.metrics.OnSending()
	if err := c.send(ctx, payload); err != nil {
		c.metrics.OnError(err)
		return err
	}
	c.metrics.OnSent(payload)
	return nil
}

func (c *client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *client) send(ctx context.Context, payload string) error {
	body, merr := json.Marshal([]intakeEvent{{
		Source:   source,
		Service:  c.service,
		Hostname: c.hostname,
		Message:  payload,
	}})
	if merr != nil {
		return fmt.Errorf("failed to encode event: %w", merr)
	}
	compressed := false
	if c.compress {
		if gzipped, zerr := shared.GzipCompress(body); zerr != nil {
			c.logger.Warnf("failed to compress, sending uncompressed: %s", zerr.Error())
		} else {
			body = gzipped
			compressed = true
		}
	}

	rq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	rq.Header.Set("Content-Type", "application/json")
	rq.Header.Set("DD-API-KEY", c.apiKey)
	if compressed {
		rq.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.httpClient.Do(rq)
	if err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		if rerr != nil {
			return fmt.Errorf("got status %d and couldn't read body: %w", resp.StatusCode, rerr)
		}
		return fmt.Errorf("got status %d with body %s", resp.StatusCode, respBody)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
