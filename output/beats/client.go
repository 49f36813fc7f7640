// Package beats provides a destination client for Beats (lumberjack v2) protocol, e.g. Logstash beats input
package beats

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/output/baseoutput"
	"github.com/relex/slog-relay/output/shared"
)

type client struct {
	logger   logger.Logger
	address  string
	index    string
	compress bool
	timeout  time.Duration
	metrics  baseoutput.ClientMetrics
	mutex    sync.Mutex
	sink     *lumberjack.SyncClient // nil until first send or after error
}

// NewClient creates a beats client for the given "beats://host:port" destination. The connection is opened on the
// first Send.
func NewClient(parentLogger logger.Logger, config base.DestinationConfig, metricCreator promreg.MetricCreator) (base.Destination, error) {
	u, err := url.Parse(config.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	if u.Host == "" || u.Port() == "" {
		return nil, fmt.Errorf("invalid remote URL: missing host or port in '%s'", config.String())
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defs.ForwarderRequestTimeout
	}
	return &client{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "BeatsClient",
			defs.LabelRemote:    u.Host,
		}),
		address:  u.Host,
		index:    config.Index,
		compress: config.Compress,
		timeout:  timeout,
		metrics:  baseoutput.NewClientMetrics(metricCreator, "beats", u.Host),
	}, nil
}

// Send sends one event and waits for ACK
//
// ctx is only checked before sending since the underlying client only supports fixed timeout
func (c *client) Send(ctx context.Context, payload string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	c.metrics.OnSending()
	if err := c.send(payload); err != nil {
		c.metrics.OnError(err)
		c.closeSink()
		return err
	}
	c.metrics.OnSent(payload)
	return nil
}

func (c *client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closeSink()
}

func (c *client) send(payload string) error {
	if c.sink == nil {
		c.metrics.OnOpening()
		compression := lumberjack.CompressionLevel(0)
		if c.compress {
			compression = lumberjack.CompressionLevel(shared.GzipCompressionLevel)
		}
		sink, err := lumberjack.SyncDial(c.address, compression, lumberjack.Timeout(c.timeout))
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		c.logger.Infof("connected to %s", c.address)
		c.sink = sink
	}

	event := map[string]interface{}{
		"@timestamp": time.Now().UTC(),
		"message":    payload,
		"index":      c.index,
	}
	numAcked, err := c.sink.Send([]interface{}{event})
	if err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	if numAcked != 1 {
		return fmt.Errorf("unexpected ACK count %d", numAcked)
	}
	return nil
}

func (c *client) closeSink() {
	if c.sink == nil {
		return
	}
	if err := c.sink.Close(); err != nil {
		c.logger.Warn("error closing connection: ", err)
	}
	c.sink = nil
}
