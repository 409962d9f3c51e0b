package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/history"
	"github.com/clustermon/jobhistory-crawler/internal/lifecycle"
)

type capturedRequest struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	user    string
	pass    string
	hasAuth bool
}

func newTestClient(t *testing.T, status int, capture *capturedRequest, cfg Config) Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if capture != nil {
			capture.method = r.Method
			capture.path = r.URL.Path
			capture.query = r.URL.Query()
			capture.body = body
			capture.user, capture.pass, capture.hasAuth = r.BasicAuth()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg.Host = u.Hostname()
	cfg.Port = port
	factory := NewFactory(cfg, zap.NewNop())
	client, err := factory.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })
	return client
}

func TestCreatePostsWatermarkEntities(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	client := newTestClient(t, http.StatusOK, &captured, Config{Username: "crawler", Password: "secret"})

	entities := []history.WatermarkEntity{{Site: "sandbox", CurrentTimeStamp: 3000, Timestamp: 3000}}
	require.NoError(t, client.Create(context.Background(), entities))

	require.Equal(t, http.MethodPost, captured.method)
	require.Equal(t, "/rest/entities", captured.path)
	require.Equal(t, "JobProcessTimeStampService", captured.query.Get("serviceName"))
	require.True(t, captured.hasAuth)
	require.Equal(t, "crawler", captured.user)
	require.Equal(t, "secret", captured.pass)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(captured.body, &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "sandbox", decoded[0]["site"])
	require.EqualValues(t, 3000, decoded[0]["currentTimeStamp"])
	require.EqualValues(t, 3000, decoded[0]["timestamp"])
}

func TestCreateSurfacesBackendErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.StatusInternalServerError, nil, Config{})
	err := client.Create(context.Background(), []history.WatermarkEntity{{Site: "sandbox"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestSubmitOperationRoutesByType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		op   lifecycle.Operation
		path string
	}{
		{lifecycle.InstallOperation{SiteID: "sandbox", AppType: "JPM_JOB_HISTORY"}, "/rest/apps/install"},
		{lifecycle.UninstallOperation{UUID: "u-1"}, "/rest/apps/uninstall"},
		{lifecycle.StartOperation{AppID: "app-1"}, "/rest/apps/start"},
		{lifecycle.StopOperation{AppID: "app-1"}, "/rest/apps/stop"},
		{lifecycle.CheckStatusOperation{AppID: "app-1"}, "/rest/apps/status"},
	}

	for _, tc := range cases {
		t.Run(tc.op.Type(), func(t *testing.T) {
			t.Parallel()

			var captured capturedRequest
			client := newTestClient(t, http.StatusOK, &captured, Config{})
			require.NoError(t, client.SubmitOperation(context.Background(), tc.op))
			require.Equal(t, tc.path, captured.path)
		})
	}
}

func TestSubmitInstallCarriesWireFields(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	client := newTestClient(t, http.StatusOK, &captured, Config{})

	op := lifecycle.InstallOperation{
		SiteID:        "sandbox",
		AppType:       "JPM_JOB_HISTORY",
		Mode:          lifecycle.ModeCluster,
		Configuration: map[string]string{"fs.defaultFS": "hdfs://nn:8020"},
	}
	require.NoError(t, client.SubmitOperation(context.Background(), op))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(captured.body, &decoded))
	require.Equal(t, "sandbox", decoded["siteId"])
	require.Equal(t, "JPM_JOB_HISTORY", decoded["appType"])
	require.Equal(t, "CLUSTER", decoded["mode"])
}

func TestDialRequiresHost(t *testing.T) {
	t.Parallel()

	factory := NewFactory(Config{}, zap.NewNop())
	_, err := factory.Dial(context.Background())
	require.Error(t, err)
}
