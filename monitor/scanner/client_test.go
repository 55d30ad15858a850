package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantisec/pkgwatch/monitor"
)

func testRelease() monitor.Release {
	return monitor.Release{
		Name:        "requestz",
		Version:     "1.0.0",
		ArtifactURL: "https://files.example.org/requestz-1.0.0.tar.gz",
	}
}

func TestHTTPClientScan(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scan", r.URL.Path)
		var req scanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "requestz", req.Name)

		json.NewEncoder(w).Encode(map[string]any{
			"name":    req.Name,
			"version": req.Version,
			"score":   12,
			"rules": []map[string]any{
				{"name": "eval-exec", "description": "calls eval on fetched data", "weight": 10},
				{"name": "obfuscated-string", "description": "hex-packed strings", "weight": 2},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), nil, AuthConfig{})
	res, err := c.Scan(ctx, testRelease())
	require.NoError(t, err)

	assert.Equal("requestz", res.Name)
	assert.Equal(12, res.Score)
	require.Len(t, res.Hits, 2)
	assert.Equal("eval-exec", res.Hits[0].ID)
	assert.Equal(10, res.Hits[0].Weight)
}

func TestHTTPClientReport(t *testing.T) {
	ctx := context.Background()

	var got reportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/report", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), nil, AuthConfig{})
	err := c.Report(ctx, "requestz", "1.0.0", "https://inspector.example.org/project/requestz/1.0.0/", "confirmed malicious", "observation")
	require.NoError(t, err)

	assert.Equal(t, "requestz", got.Name)
	assert.Equal(t, "1.0.0", got.Version)
	assert.Equal(t, "confirmed malicious", got.AdditionalInformation)
}

func TestHTTPClientErrorClasses(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var status atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), nil, AuthConfig{})

	status.Store(http.StatusNotFound)
	_, err := c.Scan(ctx, testRelease())
	assert.ErrorIs(err, monitor.ErrArtifactUnavailable)

	status.Store(http.StatusInternalServerError)
	_, err = c.Scan(ctx, testRelease())
	assert.ErrorIs(err, monitor.ErrScanService)

	// transport failure
	srv.Close()
	_, err = c.Scan(ctx, testRelease())
	assert.ErrorIs(err, monitor.ErrScanService)
}

func TestHTTPClientTokenRefresh(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var tokenFetches atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenFetches.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "requestz", "version": "1.0.0", "score": 0})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), nil, AuthConfig{
		TokenURL: srv.URL + "/oauth/token",
		Username: "svc",
		Password: "hunter2",
	})

	_, err := c.Scan(ctx, testRelease())
	require.NoError(t, err)
	_, err = c.Scan(ctx, testRelease())
	require.NoError(t, err)

	// second scan reuses the cached token
	assert.Equal(int64(1), tokenFetches.Load())
}
