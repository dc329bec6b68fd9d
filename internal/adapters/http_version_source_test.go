package adapters

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPVersionSourceLatestTag(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "tag field", body: `{"tag": "v1.3.0"}`, want: "v1.3.0"},
		{name: "release style tag_name", body: `{"tag_name": "v2.0.0", "name": "2.0"}`, want: "v2.0.0"},
		{name: "missing tag", body: `{"name": "x"}`, wantErr: true},
		{name: "invalid json", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			source := NewHTTPVersionSource(server.URL, time.Second, 1, time.Millisecond)
			tag, err := source.LatestTag(t.Context())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tag)
		})
	}
}

func TestHTTPVersionSourceRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"tag":"v1.0.1"}`))
	}))
	defer server.Close()

	source := NewHTTPVersionSource(server.URL, time.Second, 3, time.Millisecond)
	tag, err := source.LatestTag(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "v1.0.1", tag)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPVersionSourceDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer server.Close()

	source := NewHTTPVersionSource(server.URL, time.Second, 3, time.Millisecond)
	_, err := source.LatestTag(t.Context())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPVersionSourceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	source := NewHTTPVersionSource(url, 200*time.Millisecond, 2, time.Millisecond)
	_, err := source.LatestTag(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version lookup failed")
}

func TestBackendClientTriggerSync(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewBackendClient(server.URL+"/", time.Second)
	require.NoError(t, client.TriggerSync(t.Context()))
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/snapraid/sync", path)
}

func TestBackendClientTriggerSyncFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "sync already running", http.StatusConflict)
	}))
	defer server.Close()

	err := NewBackendClient(server.URL, time.Second).TriggerSync(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync request failed")
}
