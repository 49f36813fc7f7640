package util

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsHandler(t *testing.T) {
	srv := httptest.NewServer(NewMetricsHandler())
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		if !assert.NoError(t, err) {
			return 0, ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	status, body := get("/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "/metrics")

	status, body = get("/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")

	status, _ = get("/debug/pprof/")
	assert.Equal(t, http.StatusOK, status)

	status, _ = get("/nowhere")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsListenerDisabled(t *testing.T) {
	assert.Nil(t, LaunchMetricsListener(""))
	ShutdownMetricsListener(nil, time.Second)
}
