package beats

import (
	"context"
	"net"
	"testing"
	"time"

	lumberserver "github.com/elastic/go-lumber/server/v2"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/stretchr/testify/assert"
)

func TestClientSend(t *testing.T) {
	lsnr, lerr := net.Listen("tcp", "localhost:0")
	assert.Nil(t, lerr)
	srv, serr := lumberserver.NewWithListener(lsnr)
	if !assert.Nil(t, serr) {
		return
	}
	defer srv.Close()

	c, err := NewClient(logger.Root(), base.DestinationConfig{Index: "main", RemoteURL: "beats://" + lsnr.Addr().String(), Password: "-"},
		promreg.NewMetricFactory("testbeats_", nil, nil))
	assert.Nil(t, err)
	defer c.Close()

	sendResult := make(chan error, 1)
	go func() {
		sendResult <- c.Send(context.Background(), `{"msg":"hello"}`)
	}()

	select {
	case batch := <-srv.ReceiveChan():
		if assert.Len(t, batch.Events, 1) {
			event := batch.Events[0].(map[string]interface{})
			assert.Equal(t, `{"msg":"hello"}`, event["message"])
			assert.Equal(t, "main", event["index"])
			assert.Contains(t, event, "@timestamp")
		}
		batch.ACK()
	case <-time.After(defs.TestReadTimeout):
		t.Fatal("timeout waiting for batch")
	}

	select {
	case err := <-sendResult:
		assert.Nil(t, err)
	case <-time.After(defs.TestReadTimeout):
		t.Fatal("timeout waiting for ACK")
	}
}

func TestClientErrors(t *testing.T) {
	_, err := NewClient(logger.Root(), base.DestinationConfig{RemoteURL: "beats://nohost"}, promreg.NewMetricFactory("testbeats_", nil, nil))
	assert.NotNil(t, err)

	lsnr, _ := net.Listen("tcp", "localhost:0")
	addr := lsnr.Addr().String()
	assert.Nil(t, lsnr.Close())

	c, err := NewClient(logger.Root(), base.DestinationConfig{Index: "main", RemoteURL: "beats://" + addr}, promreg.NewMetricFactory("testbeats_", nil, nil))
	assert.Nil(t, err)
	assert.ErrorContains(t, c.Send(context.Background(), "x"), "failed to connect")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Send(ctx, "x"), context.Canceled)
}
