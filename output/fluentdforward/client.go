// Package fluentdforward provides a destination client for fluentd Forward protocol
//
// Each record is sent as a Forward-mode message tagged by the index, and must be acknowledged by upstream.
package fluentdforward

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/relex/fluentlib/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/output/baseoutput"
	"github.com/relex/slog-relay/output/shared"
	"github.com/relex/slog-relay/util"
	"github.com/vmihailenco/msgpack/v4"
)

const requestIDSuffix = ".ff"

// UpstreamConfig defines the connection to upstream
type UpstreamConfig struct {
	Address string // host:port
	TLS     bool
	Secret  string // shared key for handshake, empty to skip handshake
	Tag     string
}

type client struct {
	logger      logger.Logger
	config      UpstreamConfig
	insecureTLS bool
	timeout     time.Duration
	idGenerator *shared.RequestIDGenerator
	metrics     baseoutput.ClientMetrics
	mutex       sync.Mutex
	conn        *forwardConnection // nil until first send or after error
}

type forwardConnection struct {
	socket  net.Conn
	decoder *msgpack.Decoder
}

// ParseUpstreamConfig parses destination config, which should have "fluent://" or "fluents://" (TLS) URL
func ParseUpstreamConfig(config base.DestinationConfig) (UpstreamConfig, error) {
	u, err := url.Parse(config.RemoteURL)
	if err != nil {
		return UpstreamConfig{}, fmt.Errorf("invalid remote URL: %w", err)
	}
	if u.Host == "" || u.Port() == "" {
		return UpstreamConfig{}, fmt.Errorf("invalid remote URL: missing host or port in '%s'", config.String())
	}
	return UpstreamConfig{
		Address: u.Host,
		TLS:     u.Scheme == "fluents",
		Secret:  config.Password,
		Tag:     config.Index,
	}, nil
}

// NewClient creates a fluentd client for the given destination. The connection is opened on the first Send.
func NewClient(parentLogger logger.Logger, config base.DestinationConfig, metricCreator promreg.MetricCreator) (base.Destination, error) {
	upstream, err := ParseUpstreamConfig(config)
	if err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defs.ForwarderRequestTimeout
	}
	return &client{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "FluentdForwardClient",
			defs.LabelRemote:    upstream.Address,
		}),
		config:      upstream,
		insecureTLS: config.InsecureSkipVerify,
		timeout:     timeout,
		idGenerator: shared.NewRequestIDGenerator(requestIDSuffix),
		metrics:     baseoutput.NewClientMetrics(metricCreator, "fluentd", upstream.Address),
	}, nil
}

func (c *client) Send(ctx context.Context, payload string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.metrics.OnSending()
	if err := c.send(ctx, payload); err != nil {
		c.metrics.OnError(err)
		c.closeConnection()
		return err
	}
	c.metrics.OnSent(payload)
	return nil
}

func (c *client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closeConnection()
}

func (c *client) send(ctx context.Context, payload string) error {
	if c.conn == nil {
		conn, err := c.openConnection()
		if err != nil {
			return err
		}
		c.conn = conn
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	requestID := c.idGenerator.Generate()
	message, err := encodeMessage(c.config.Tag, time.Now(), payload, requestID)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}

	if err := c.conn.socket.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := writeAll(c.conn.socket, message); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	if err := c.conn.socket.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	ack := forwardprotocol.Ack{}
	if err := c.conn.decoder.Decode(&ack); err != nil {
		return fmt.Errorf("failed to read ACK: %w", err)
	}
	if ack.Ack != requestID {
		return fmt.Errorf("unexpected ACK '%s', expected '%s'", ack.Ack, requestID)
	}
	return nil
}

func (c *client) openConnection() (*forwardConnection, error) {
	c.metrics.OnOpening()

	sock, connErr := c.connect()
	if connErr != nil {
		return nil, fmt.Errorf("failed to connect: %w", connErr)
	}
	c.logger.Info("connected to ", sock.RemoteAddr())

	if len(c.config.Secret) > 0 {
		success, reason, herr := forwardprotocol.DoClientHandshake(sock, c.config.Secret, defs.ForwarderHandshakeTimeout)
		if herr != nil {
			closeSocket(c.logger, sock)
			return nil, fmt.Errorf("failed to handshake due to error: %w", herr)
		}
		if !success {
			closeSocket(c.logger, sock)
			return nil, fmt.Errorf("login rejected: %s", reason)
		}
	}

	return &forwardConnection{
		socket:  sock,
		decoder: msgpack.NewDecoder(sock),
	}, nil
}

func (c *client) connect() (net.Conn, error) {
	if c.config.TLS {
		c.logger.Infof("connecting to %s in TLS mode", c.config.Address)
		dialer := &net.Dialer{}
		dialer.Timeout = defs.ForwarderConnectionTimeout
		tlsConfig := &tls.Config{InsecureSkipVerify: c.insecureTLS} //nolint:gosec // configurable
		return tls.DialWithDialer(dialer, "tcp", c.config.Address, tlsConfig)
	}
	c.logger.Infof("connecting to %s in TCP mode", c.config.Address)
	return net.DialTimeout("tcp", c.config.Address, defs.ForwarderConnectionTimeout)
}

func (c *client) closeConnection() {
	if c.conn == nil {
		return
	}
	closeSocket(c.logger, c.conn.socket)
	c.conn = nil
}

func closeSocket(connLogger logger.Logger, sock net.Conn) {
	if err := sock.Close(); err != nil && !util.IsNetworkClosed(err) {
		connLogger.Warn("error closing connection: ", err)
	}
}

// encodeMessage encodes a Forward-mode message containing one event: [tag, [[time, {"message": payload}]], option]
func encodeMessage(tag string, tm time.Time, payload string, requestID string) ([]byte, error) {
	var packet bytes.Buffer
	packet.Grow(len(payload) + len(tag) + 100)
	encoder := msgpack.NewEncoder(&packet)

	// root array
	if err := encoder.EncodeArrayLen(3); err != nil {
		return nil, err
	}
	// root[0]: tag
	if err := encoder.EncodeString(tag); err != nil {
		return nil, err
	}
	// root[1]: array of events, each as [time, record]
	if err := encoder.EncodeArrayLen(1); err != nil {
		return nil, err
	}
	if err := encoder.EncodeArrayLen(2); err != nil {
		return nil, err
	}
	if err := encoder.EncodeInt(tm.Unix()); err != nil {
		return nil, err
	}
	if err := encoder.EncodeMapLen(1); err != nil {
		return nil, err
	}
	if err := encoder.EncodeString("message"); err != nil {
		return nil, err
	}
	if err := encoder.EncodeString(payload); err != nil {
		return nil, err
	}
	// root[2]: options
	if err := encoder.Encode(forwardprotocol.TransportOption{
		Size:  1,
		Chunk: requestID,
	}); err != nil {
		return nil, err
	}
	return packet.Bytes(), nil
}

func writeAll(conn net.Conn, data []byte) error {
	for {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}
