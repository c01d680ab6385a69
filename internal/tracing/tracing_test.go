package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpanAndTraceparent(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	setTracer(tp.Tracer("test"))

	ctx, span := StartSpan(context.Background(), "microresearch.execute", "plan_id", "p-1")
	req, _ := http.NewRequest(http.MethodPost, "http://tools/execute", nil)
	InjectTraceparent(ctx, req)
	EndSpan(span, errors.New("connector down"))

	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`, req.Header.Get("traceparent"))
	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "microresearch.execute", ended[0].Name())
	assert.Equal(t, "connector down", ended[0].Status().Description)
}

func TestTraceparentWithoutSpan(t *testing.T) {
	assert.Empty(t, W3CTraceparent(context.Background()))
}
