package httpws

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrogen-gateway/internal/auth"
	"hydrogen-gateway/internal/devices"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	authSvc := auth.New(nil, auth.DefaultConfig())
	deviceSvc := devices.New(nil, devices.DefaultConfig())
	require.NoError(t, deviceSvc.RegisterDevice(devices.Info{DeviceID: "dev-1", DeviceType: "camera"}))
	return New(nil, DefaultConfig(), deviceSvc, authSvc)
}

func TestHealthAndStatusEndpointsAreWhitelisted(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "healthy")
}

func TestDevicesEndpointRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/devices")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginThenDevicesSucceeds(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.router())
	defer ts.Close()

	loginBody, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin123!"})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Success   bool   `json:"success"`
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
		User      struct {
			UserID   string `json:"userId"`
			Username string `json:"username"`
			Role     int    `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	require.True(t, loginResp.Success)
	require.NotEmpty(t, loginResp.Token)
	require.NotZero(t, loginResp.ExpiresAt)
	assert.Equal(t, "admin", loginResp.User.Username)
	assert.Equal(t, 4, loginResp.User.Role)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/devices", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "Hydrogen-Server/1.0", resp2.Header.Get("Server"))

	var devicesResp []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&devicesResp))
	require.Len(t, devicesResp, 1)
	assert.Equal(t, "dev-1", devicesResp[0]["deviceId"])
	assert.EqualValues(t, 0, devicesResp[0]["connectionStatus"])
}

func TestGetDeviceNotFound(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.router())
	defer ts.Close()

	loginBody, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin123!"})
	resp, _ := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(loginBody))
	var loginResp struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginResp)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/devices/missing", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/devices", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddlewareRejectsOverLimit(t *testing.T) {
	s := newTestServer(t)
	s.cfg.RateLimitPerMin = 1
	s.rate = newRateWindow(1)
	ts := httptest.NewServer(s.router())
	defer ts.Close()

	resp1, _ := http.Get(ts.URL + "/api/health")
	resp1.Body.Close()
	resp2, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
}
