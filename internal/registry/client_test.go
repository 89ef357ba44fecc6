package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

func TestClient_ListKeywords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/keywords", r.URL.Path)
		assert.Equal(t, "coupang", r.URL.Query().Get("slot_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.KeywordsResponse{
			Success: true,
			Data:    []types.Keyword{{ID: 1, Keyword: "shoes", LinkURL: testJob.LinkURL}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	keywords, err := c.ListKeywords(context.Background(), "coupang")
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Equal(t, "shoes", keywords[0].Keyword)
}

func TestClient_ListKeywords_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(types.KeywordsResponse{Error: "database unavailable"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.ListKeywords(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.False(t, IsConnectivityError(err))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(addr, time.Second)
	_, err := c.ListKeywords(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))
}

func TestClient_PostResults(t *testing.T) {
	var got types.UpdateResultsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ranking-check/update-results", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.UpdateResultsResponse{
			Success: true,
			Stats:   types.UpdateStats{Success: 1, Failed: 1},
		})
	}))
	defer srv.Close()

	rank := 4
	c := NewClient(srv.URL, 5*time.Second)
	resp, err := c.PostResults(context.Background(), []types.CheckResult{
		{ID: 1, Keyword: "shoes", ProductID: "12345", Rank: &rank, Status: types.CheckFound},
		{ID: 2, Keyword: "bags", ProductID: "999", Status: types.CheckNotFound},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Stats.Success)
	require.Len(t, got.Results, 2)
	assert.Equal(t, 4, *got.Results[0].Rank)
	assert.Equal(t, types.CheckNotFound, got.Results[1].Status)
}

func TestClient_SetToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer resolver-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.KeywordsResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	c.SetToken("resolver-token")
	_, err := c.ListKeywords(context.Background(), "")
	require.NoError(t, err)
}
