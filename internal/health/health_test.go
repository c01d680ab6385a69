package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
)

func TestDatabaseChecker(t *testing.T) {
	rawDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer rawDB.Close()
	wrapper := circuitbreaker.NewDatabaseWrapper(sqlx.NewDb(rawDB, "postgres"), zap.NewNop())

	mock.ExpectPing()
	res := NewDatabaseChecker(wrapper).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	res = NewDatabaseChecker(wrapper).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer c.Close()

	checker := NewRedisChecker(c)
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	mr.Close()
	assert.Equal(t, StatusUnhealthy, checker.Check(context.Background()).Status)
	assert.False(t, checker.IsCritical())
}

func TestHTTPChecker(t *testing.T) {
	code := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(code)
	}))
	defer srv.Close()

	checker := NewHTTPChecker("connector_gateway", srv.URL+"/", true)
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	code = http.StatusBadGateway
	assert.Equal(t, StatusUnhealthy, checker.Check(context.Background()).Status)
}

func fixed(name string, critical bool, status CheckStatus) Checker {
	return NewFuncChecker(name, critical, func(context.Context) CheckResult { return CheckResult{Status: status} })
}

func TestManagerAggregation(t *testing.T) {
	m := NewManager(0, nil)
	require.NoError(t, m.RegisterChecker(fixed("database", true, StatusHealthy)))
	require.NoError(t, m.RegisterChecker(fixed("redis", false, StatusUnhealthy)))
	assert.Error(t, m.RegisterChecker(fixed("redis", false, StatusHealthy)))

	report := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Ready)
	assert.True(t, report.Components["database"].Critical)
	assert.Equal(t, "redis", report.Components["redis"].Component)

	require.NoError(t, m.RegisterChecker(fixed("temporal", true, StatusUnhealthy)))
	report = m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, m.IsReady(context.Background()))
}

func TestManagerRecoversPanickingChecker(t *testing.T) {
	m := NewManager(0, nil)
	require.NoError(t, m.RegisterChecker(NewFuncChecker("broken", true, func(context.Context) CheckResult {
		panic("nil pointer")
	})))
	report := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Components["broken"].Status)
}

func TestHTTPHandler(t *testing.T) {
	m := NewManager(0, nil)
	require.NoError(t, m.RegisterChecker(fixed("database", true, StatusUnhealthy)))
	mux := http.NewServeMux()
	NewHTTPHandler(m, nil).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBreakerChecker(t *testing.T) {
	var open []string
	c := NewBreakerChecker(func() []string { return open })

	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	open = []string{"connector-gateway:connectors"}
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, open, res.Details["open"])
	assert.False(t, c.IsCritical())
}
