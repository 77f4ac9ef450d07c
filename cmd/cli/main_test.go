package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--api", srv.URL, "--key", "adm"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAdd_SendsPayloadWithKey(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer adm", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/monitors", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m1","type":"http_request","target":"https://example.com","frequency_minutes":2}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "monitors", "add", "example.com", "--every", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "created m1")
	assert.Equal(t, "https://example.com", got["target"])
	assert.Equal(t, float64(2), got["frequency_minutes"])
}

func TestList_PrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"m1","name":"api","type":"ping_host","target":"example.com","frequency_minutes":5,"status":"up"}]`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "monitors", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "ping_host")
	assert.Contains(t, out, "example.com")
}

func TestAPIErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"capacity exceeded"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, srv, "monitors", "run", "m1")
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusTooManyRequests, ae.Status)
	assert.Equal(t, "capacity exceeded", ae.Message)
}

func TestCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"running":3,"queued":1,"running_capacity":50,"queued_capacity":500}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "capacity")
	require.NoError(t, err)
	assert.Equal(t, "running 3/50  queued 1/500\n", out)
}
