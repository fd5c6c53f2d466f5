package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testConnectionString = "HostName=factory-hub.azure-devices.net;SharedAccessKeyName=service;SharedAccessKey=c2VjcmV0LWtleQ=="

func newTestIoTHubRegistry(t *testing.T, handler http.HandlerFunc) *IoTHubRegistry {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	registry, err := NewIoTHubRegistry(testConnectionString, zap.NewNop())
	require.NoError(t, err)
	registry.baseURL = server.URL
	registry.httpClient = server.Client()
	registry.now = func() time.Time { return time.Unix(1700000000, 0) }
	return registry
}

func TestParseIoTHubConnection(t *testing.T) {
	conn, err := ParseIoTHubConnection(testConnectionString)
	require.NoError(t, err)
	assert.Equal(t, "factory-hub.azure-devices.net", conn.HostName)
	assert.Equal(t, "service", conn.SharedAccessKeyName)
	assert.Equal(t, "c2VjcmV0LWtleQ==", conn.SharedAccessKey)
}

func TestParseIoTHubConnectionErrors(t *testing.T) {
	for _, cs := range []string{
		"",
		"HostName=hub.azure-devices.net",
		"HostName=hub.azure-devices.net;SharedAccessKeyName=service",
		"HostName=hub.azure-devices.net;SharedAccessKeyName=service;SharedAccessKey=%%%",
		"HostName=hub.azure-devices.net;garbage;SharedAccessKeyName=s;SharedAccessKey=a2V5",
	} {
		_, err := ParseIoTHubConnection(cs)
		assert.Error(t, err, "connection string %q", cs)
	}
}

func TestSASTokenFormat(t *testing.T) {
	conn, err := ParseIoTHubConnection(testConnectionString)
	require.NoError(t, err)

	token, err := conn.SASToken(time.Unix(1700003600, 0))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, "SharedAccessSignature "))
	values, err := url.ParseQuery(strings.TrimPrefix(token, "SharedAccessSignature "))
	require.NoError(t, err)
	assert.Equal(t, "factory-hub.azure-devices.net", values.Get("sr"))
	assert.Equal(t, "1700003600", values.Get("se"))
	assert.Equal(t, "service", values.Get("skn"))
	assert.NotEmpty(t, values.Get("sig"))

	again, err := conn.SASToken(time.Unix(1700003600, 0))
	require.NoError(t, err)
	assert.Equal(t, token, again, "signing is deterministic")
}

func TestIoTHubGetTwin(t *testing.T) {
	registry := newTestIoTHubRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/twins/line-1", r.URL.Path)
		assert.Equal(t, iotHubAPIVersion, r.URL.Query().Get("api-version"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "SharedAccessSignature "))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"deviceId":"line-1","etag":"AAAAAAAAAAE=","properties":{"desired":{"ProductionRate":50,"$version":4},"reported":{"ProductionRate":50}}}`)
	})

	twin, err := registry.GetTwin(context.Background(), "line-1")
	require.NoError(t, err)
	assert.Equal(t, "line-1", twin.DeviceID)
	assert.Equal(t, "AAAAAAAAAAE=", twin.ETag)
	assert.Equal(t, 50.0, twin.Desired["ProductionRate"])
}

func TestIoTHubGetTwinNotFound(t *testing.T) {
	registry := newTestIoTHubRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"Message":"ErrorCode:DeviceNotFound;line-3"}`)
	})

	_, err := registry.GetTwin(context.Background(), "line-3")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestIoTHubGetTwinServerError(t *testing.T) {
	registry := newTestIoTHubRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := registry.GetTwin(context.Background(), "line-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeviceNotFound)
	assert.Contains(t, err.Error(), "503")
}

func TestIoTHubUpdateTwinSendsPatchWithIfMatch(t *testing.T) {
	registry := newTestIoTHubRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/twins/line-1", r.URL.Path)
		assert.Equal(t, `"AAAAAAAAAAE="`, r.Header.Get("If-Match"))

		var body map[string]map[string]map[string]interface{}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, map[string]interface{}{"ProductionRate": 40.0}, body["properties"]["desired"])
		}

		io.WriteString(w, `{"deviceId":"line-1","etag":"AAAAAAAAAAI="}`)
	})

	err := registry.UpdateTwin(context.Background(), "line-1", ratePatch(40), "AAAAAAAAAAE=")
	assert.NoError(t, err)
}

func TestIoTHubUpdateTwinPreconditionFailed(t *testing.T) {
	registry := newTestIoTHubRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
		io.WriteString(w, `{"Message":"ErrorCode:PreconditionFailed;Precondition failed"}`)
	})

	err := registry.UpdateTwin(context.Background(), "line-1", ratePatch(40), `"AAAAAAAAAAE="`)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestIoTHubEscapesDeviceID(t *testing.T) {
	registry := newTestIoTHubRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/twins/line%2F1", r.URL.EscapedPath())
		io.WriteString(w, `{"etag":"x","properties":{}}`)
	})

	twin, err := registry.GetTwin(context.Background(), "line/1")
	require.NoError(t, err)
	assert.NotNil(t, twin.Desired)
}
