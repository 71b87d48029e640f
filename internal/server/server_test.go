package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
}

type testUser struct {
	id    uint
	token string
}

// newTestServer wires a full Server over sqlite and miniredis with the
// background sweep disabled.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)

	srv, err := NewServerWithDeps(&config.Config{
		JWTSecret: "test-secret-key-12345678901234567890123456789012",
		Env:       "test",
	}, db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	srv.SetupRoutes(app)
	return &testServer{srv: srv, app: app, db: db, mr: mr}
}

func (ts *testServer) newUser(t *testing.T, username string) testUser {
	t.Helper()
	u := testutil.CreateUser(t, ts.db, username)
	token, err := ts.srv.generateToken(u.ID, u.Username)
	require.NoError(t, err)
	return testUser{id: u.ID, token: token}
}

// do sends a request as user (anonymous when token is empty) and decodes the
// JSON response into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var live map[string]any
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/live", "", nil, &live))
	assert.Equal(t, "up", live["status"])

	var ready map[string]any
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/ready", "", nil, &ready))
	assert.Equal(t, "healthy", ready["status"])
	checks := ready["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "healthy", checks["redis"])
	assert.Equal(t, false, checks["scheduler"])
}

func TestReadiness_DegradedWithoutRedis(t *testing.T) {
	srv, err := NewServerWithDeps(&config.Config{JWTSecret: "x", Env: "test"}, testutil.NewDB(t), nil)
	require.NoError(t, err)
	app := fiber.New()
	app.Get("/health", srv.ReadinessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

func TestReadiness_UnhealthyDatabase(t *testing.T) {
	db := testutil.NewDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	srv, err := NewServerWithDeps(&config.Config{JWTSecret: "x", Env: "test"}, db, nil)
	require.NoError(t, err)
	app := fiber.New()
	app.Get("/health", srv.ReadinessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNewServerWithDeps_SchedulerConfig(t *testing.T) {
	db := testutil.NewDB(t)

	_, err := NewServerWithDeps(&config.Config{JWTSecret: "x", SchedulerEnabled: true}, db, nil)
	assert.Error(t, err, "an enabled scheduler needs a positive interval")

	srv, err := NewServerWithDeps(&config.Config{
		JWTSecret:         "x",
		SchedulerEnabled:  true,
		SchedulerInterval: time.Minute,
	}, db, nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.sweeper)
}

func TestNewServerWithDeps_WiresServices(t *testing.T) {
	srv, err := NewServerWithDeps(&config.Config{JWTSecret: "x"}, testutil.NewDB(t), nil)
	require.NoError(t, err)

	assert.NotNil(t, srv.userService)
	assert.NotNil(t, srv.postService)
	assert.NotNil(t, srv.publisher)
	assert.NotNil(t, srv.scheduledSvc)
	assert.Nil(t, srv.sweeper, "scheduler stays off unless enabled")
}
