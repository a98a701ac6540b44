package telemetry

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithStdoutExporterExposesPrometheusGauges(t *testing.T) {
	shutdown, handler, err := Setup(Config{ServiceName: "autotalk-test", Environment: "test"}, Gauges{
		SessionsOpen: func() int64 { return 3 },
	})
	require.NoError(t, err)
	require.NotNil(t, handler)
	defer func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_ = shutdown(ctx)
	}()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "autotalk_sessions_open")
	assert.Contains(t, rec.Body.String(), "autotalk_process_memory_bytes")
}

func TestSetupWithOTLPEndpointDoesNotPanic(t *testing.T) {
	shutdown, _, err := Setup(Config{
		ServiceName:  "autotalk-test",
		Environment:  "test",
		OTLPEndpoint: "127.0.0.1:4317",
		OTLPInsecure: true,
	}, Gauges{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = shutdown(ctx)
}

func TestSetupAcceptsEmptyServiceName(t *testing.T) {
	_, handler, err := Setup(Config{}, Gauges{})
	require.NoError(t, err)
	assert.NotNil(t, handler)
}
