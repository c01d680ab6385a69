package interceptors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Got-Workflow", r.Header.Get(HeaderWorkflowID))
		w.Header().Set("Got-Run", r.Header.Get(HeaderRunID))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestActivityHeadersOutsideActivity(t *testing.T) {
	srv := echoServer(t)
	client := &http.Client{Transport: NewActivityHeaders(nil)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Got-Workflow"))
}

func TestActivityHeadersInsideActivity(t *testing.T) {
	srv := echoServer(t)
	rt := &ActivityHeaders{
		base: http.DefaultTransport,
		info: func(context.Context) (string, string, bool) { return "micro-research-plan-1", "run-7", true },
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: rt}).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "micro-research-plan-1", resp.Header.Get("Got-Workflow"))
	assert.Equal(t, "run-7", resp.Header.Get("Got-Run"))
	assert.Empty(t, req.Header.Get(HeaderWorkflowID), "caller's request is not mutated")
}
