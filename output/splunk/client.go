// Package splunk provides a destination client for Splunk
//
// With a login, records are posted to the simple receiver of the management port after ensuring the index exists and
// is enabled. Without a login, the password is used as HTTP Event Collector token.
package splunk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/output/baseoutput"
	"github.com/relex/slog-relay/output/shared"
	"github.com/relex/slog-relay/util"
)

const maxErrorBodyLength = 512

type client struct {
	logger     logger.Logger
	config     base.DestinationConfig
	baseURL    *url.URL
	httpClient *http.Client
	metrics    baseoutput.ClientMetrics
	indexMutex sync.Mutex
	indexReady bool
}

// hecEvent is the envelope of one event for HTTP Event Collector
type hecEvent struct {
	Time       float64     `json:"time"`
	Index      string      `json:"index"`
	SourceType string      `json:"sourcetype,omitempty"`
	Event      interface{} `json:"event"`
}

// NewClient creates a Splunk client for the given destination. No connection is made until the first Send.
func NewClient(parentLogger logger.Logger, config base.DestinationConfig, metricCreator promreg.MetricCreator) (base.Destination, error) {
	baseURL, err := url.Parse(config.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	if baseURL.Host == "" {
		return nil, fmt.Errorf("invalid remote URL: missing host in '%s'", config.String())
	}
	baseURL.User = nil

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defs.ForwarderRequestTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify} //nolint:gosec // configurable
	transport.DialContext = (&net.Dialer{Timeout: defs.ForwarderConnectionTimeout, KeepAlive: 30 * time.Second}).DialContext

	return &client{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "SplunkClient",
			defs.LabelRemote:    baseURL.Host,
		}),
		config:     config,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		metrics:    baseoutput.NewClientMetrics(metricCreator, "splunk", baseURL.Host),
	}, nil
}

func (c *client) Send(ctx context.Context, payload string) error {
	c.metrics.OnSending()

	var err error
	if c.config.Login != "" {
		err = c.sendToReceiver(ctx, payload)
	} else {
		err = c.sendToCollector(ctx, payload)
	}
	if err != nil {
		c.metrics.OnError(err)
		return err
	}
	c.metrics.OnSent(payload)
	return nil
}

func (c *client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *client) sendToReceiver(ctx context.Context, payload string) error {
	if err := c.ensureIndex(ctx); err != nil {
		return err
	}
	query := url.Values{}
	query.Set("index", c.config.Index)
	query.Set("sourcetype", "_json")
	rq, err := c.newRequest(ctx, http.MethodPost, "/services/receivers/simple", query, strings.NewReader(payload))
	if err != nil {
		return err
	}
	rq.SetBasicAuth(c.config.Login, c.config.Password)
	return c.do(rq, "send")
}

func (c *client) sendToCollector(ctx context.Context, payload string) error {
	event := hecEvent{
		Time:  util.TimeToUnixFloat(time.Now()),
		Index: c.config.Index,
		Event: payload,
	}
	if json.Valid([]byte(payload)) {
		event.SourceType = "_json"
		event.Event = json.RawMessage(payload)
	}
	body, merr := json.Marshal(event)
	if merr != nil {
		return fmt.Errorf("failed to encode event: %w", merr)
	}

	compressed := false
	if c.config.Compress {
		gzipped, zerr := shared.GzipCompress(body)
		if zerr != nil {
			c.logger.Warnf("failed to compress, sending uncompressed: %s", zerr.Error())
		} else {
			body = gzipped
			compressed = true
		}
	}

	rq, err := c.newRequest(ctx, http.MethodPost, "/services/collector/event", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	rq.Header.Set("Authorization", "Splunk "+c.config.Password)
	rq.Header.Set("Content-Type", "application/json")
	if compressed {
		rq.Header.Set("Content-Encoding", "gzip")
	}
	return c.do(rq, "send")
}

// ensureIndex looks up the index, creates it if missing and enables it, once per client
func (c *client) ensureIndex(ctx context.Context) error {
	c.indexMutex.Lock()
	defer c.indexMutex.Unlock()

	if c.indexReady {
		return nil
	}
	c.metrics.OnOpening()

	indexPath := "/services/data/indexes/" + url.PathEscape(c.config.Index)
	jsonQuery := url.Values{"output_mode": []string{"json"}}

	rq, err := c.newRequest(ctx, http.MethodGet, indexPath, jsonQuery, nil)
	if err != nil {
		return err
	}
	rq.SetBasicAuth(c.config.Login, c.config.Password)
	resp, err := c.httpClient.Do(rq)
	if err != nil {
		return fmt.Errorf("failed to look up index: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Infof("create index '%s'", c.config.Index)
		form := url.Values{"name": []string{c.config.Index}}
		crq, cerr := c.newRequest(ctx, http.MethodPost, "/services/data/indexes", jsonQuery, strings.NewReader(form.Encode()))
		if cerr != nil {
			return cerr
		}
		crq.SetBasicAuth(c.config.Login, c.config.Password)
		crq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if err := c.do(crq, "create index"); err != nil {
			return err
		}
	case resp.StatusCode >= 300:
		return fmt.Errorf("failed to look up index: got status %d", resp.StatusCode)
	}

	erq, err := c.newRequest(ctx, http.MethodPost, indexPath+"/enable", jsonQuery, nil)
	if err != nil {
		return err
	}
	erq.SetBasicAuth(c.config.Login, c.config.Password)
	if err := c.do(erq, "enable index"); err != nil {
		return err
	}

	c.logger.Infof("index '%s' is ready", c.config.Index)
	c.indexReady = true
	return nil
}

func (c *client) newRequest(ctx context.Context, method string, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	rq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return rq, nil
}

func (c *client) do(rq *http.Request, action string) error {
	resp, err := c.httpClient.Do(rq)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		if rerr != nil {
			return fmt.Errorf("failed to %s: got status %d and couldn't read body: %w", action, resp.StatusCode, rerr)
		}
		return fmt.Errorf("failed to %s: got status %d with body %s", action, resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
