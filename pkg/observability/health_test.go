package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Database(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	h := NewHealthChecker("1.2.3")
	h.RegisterDatabase("directory", db)

	status := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, StatusHealthy, status.Dependencies["directory"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	h := NewHealthChecker("dev")
	h.RegisterDatabase("directory", db)

	status := h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Dependencies["directory"].Message)
}

func TestHealthChecker_RedisIsOptional(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := NewHealthChecker("dev")
	h.RegisterRedis("session-cache", client)
	assert.Equal(t, StatusHealthy, h.Check(context.Background()).Status)

	mr.Close()
	status := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusDegraded, status.Dependencies["session-cache"].Status)
}

func TestHealthChecker_UnhealthyWinsOverDegraded(t *testing.T) {
	h := NewHealthChecker("dev")
	h.Register("cache", true, func(context.Context) error { return errors.New("slow") })
	h.Register("backend", false, func(context.Context) error { return errors.New("down") })

	assert.Equal(t, StatusUnhealthy, h.Check(context.Background()).Status)
}

func TestHealthRoutes(t *testing.T) {
	h := NewHealthChecker("dev")
	healthy := true
	h.Register("backend", false, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	router := mux.NewRouter()
	RegisterHealthRoutes(router, h)

	tests := []struct {
		name    string
		path    string
		healthy bool
		want    int
	}{
		{"live", "/healthz/live", false, http.StatusOK},
		{"ready", "/healthz/ready", true, http.StatusOK},
		{"not ready", "/healthz/ready", false, http.StatusServiceUnavailable},
		{"combined", "/healthz", false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthy = tt.healthy
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["status"])
		})
	}
}
