package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"notebook-server/collab"
	"notebook-server/core"
	"notebook-server/handlers/auth"
	"notebook-server/metrics"
	"notebook-server/stores/memory"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Send(collab.ConnID, string, any) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *collab.Hub) {
	t.Helper()

	store := memory.NewDocumentStore()
	require.NoError(t, auth.SeedDemoUser(context.Background(), store))

	reg := prometheus.NewRegistry()
	hub := collab.NewHub(nopSender{}, collab.WithMetrics(metrics.New(reg)))
	tokens := auth.NewTokens("test-secret", time.Hour)

	srv := httptest.NewServer(setupRouter(store, tokens, hub, reg))
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestRoomsSortedByUsersThenID(t *testing.T) {
	srv, hub := newTestServer(t)
	for _, id := range []collab.ConnID{"a", "b", "c"} {
		hub.Connect(id)
	}
	hub.Join("a", "zeta", "A")
	hub.Join("b", "zeta", "B")
	hub.Join("c", "beta", "C")
	hub.Join("a", "alpha", "A")

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var rooms []roomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []roomSummary{
		{ID: "zeta", Users: 2},
		{ID: "alpha", Users: 1},
		{ID: "beta", Users: 1},
	}, rooms)
}

func TestRoomsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var rooms []roomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.NotNil(t, rooms)
	assert.Empty(t, rooms)
}

func TestLoginThenSaveAttributesOwner(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(`{"username":"demo","password":"demo"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login auth.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.AccessToken)

	body := `{"title":"Sales","content":{"cells":[]},"token":"` + login.AccessToken + `"}`
	saveResp, err := http.Post(srv.URL+"/notebooks", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer saveResp.Body.Close()
	require.Equal(t, http.StatusOK, saveResp.StatusCode)

	var saved struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(saveResp.Body).Decode(&saved))
	assert.Equal(t, "saved", saved.Status)

	getResp, err := http.Get(srv.URL + "/notebooks/" + saved.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()

	var nb core.Notebook
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&nb))
	assert.Equal(t, "demo", nb.Owner)
	assert.JSONEq(t, `{"cells":[]}`, string(nb.Content))
}

func TestQueryRoutesNeedSQLite(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader(`{"query":"SELECT 1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, hub := newTestServer(t)
	hub.Connect("a")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "notebook_realtime_connections 1")
}
