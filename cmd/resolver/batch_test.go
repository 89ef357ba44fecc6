package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossigee/slot-rank-tracker/internal/registry"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

const productLink = "https://www.coupang.com/vp/products/12345"

type fakeRunner struct {
	calls  int
	report *types.RunReport
	err    error
}

func (f *fakeRunner) RunBatch(_ context.Context, jobs []types.Keyword) (*types.RunReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeUploader struct {
	uploaded []*types.RunReport
	err      error
}

func (f *fakeUploader) UploadReport(_ context.Context, report *types.RunReport) (string, error) {
	f.uploaded = append(f.uploaded, report)
	return report.RunID + ".json", f.err
}

// registryStub serves a fixed keyword list and captures posted results
type registryStub struct {
	keywords []types.Keyword

	mu     sync.Mutex
	posted [][]types.CheckResult
}

func (s *registryStub) results() [][]types.CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posted
}

func (s *registryStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/keywords":
			_ = json.NewEncoder(w).Encode(types.KeywordsResponse{Success: true, Data: s.keywords})
		case "/api/ranking-check/update-results":
			var req types.UpdateResultsRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			s.mu.Lock()
			s.posted = append(s.posted, req.Results)
			s.mu.Unlock()
			_ = json.NewEncoder(w).Encode(types.UpdateResultsResponse{
				Success: true,
				Stats:   types.UpdateStats{Success: len(req.Results)},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunBatch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	runner := &fakeRunner{}
	err := runBatch(context.Background(), registry.NewClient(url, time.Second), runner, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRegistryUnreachable))
	assert.Equal(t, 0, runner.calls)
}

func TestRunBatch_NoJobs(t *testing.T) {
	stub := &registryStub{}
	srv := stub.server(t)

	runner := &fakeRunner{}
	err := runBatch(context.Background(), registry.NewClient(srv.URL, time.Second), runner, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, runner.calls)
	assert.Empty(t, stub.results())
}

func TestRunBatch_NoValidJobs(t *testing.T) {
	stub := &registryStub{keywords: []types.Keyword{
		{ID: 1, Keyword: "shoes", LinkURL: "https://www.coupang.com/np/search?q=shoes"},
	}}
	srv := stub.server(t)

	runner := &fakeRunner{}
	err := runBatch(context.Background(), registry.NewClient(srv.URL, time.Second), runner, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, runner.calls)
}

func TestRunBatch_PostsResultsAndUploads(t *testing.T) {
	stub := &registryStub{keywords: []types.Keyword{{ID: 1, Keyword: "shoes", LinkURL: productLink}}}
	srv := stub.server(t)

	rank := 4
	report := &types.RunReport{
		RunID:  "run-1",
		Status: types.StatusCompleted,
		Found:  1,
		Total:  1,
		Results: []types.CheckResult{
			{ID: 1, Keyword: "shoes", URL: productLink, Rank: &rank, Status: types.CheckFound},
		},
	}
	runner := &fakeRunner{report: report}
	uploader := &fakeUploader{err: errors.New("bucket missing")}

	err := runBatch(context.Background(), registry.NewClient(srv.URL, time.Second), runner, uploader, "")
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	posted := stub.results()
	require.Len(t, posted, 1)
	assert.Equal(t, report.Results, posted[0])
	assert.Len(t, uploader.uploaded, 1)
}

func TestRunBatch_PostFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/keywords" {
			_ = json.NewEncoder(w).Encode(types.KeywordsResponse{
				Success: true,
				Data:    []types.Keyword{{ID: 1, Keyword: "shoes", LinkURL: productLink}},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(types.UpdateResultsResponse{Error: "database locked"})
	}))
	defer srv.Close()

	runner := &fakeRunner{report: &types.RunReport{
		RunID:   "run-2",
		Results: []types.CheckResult{{ID: 1, Keyword: "shoes", Status: types.CheckNotFound}},
	}}
	err := runBatch(context.Background(), registry.NewClient(srv.URL, time.Second), runner, nil, "")
	assert.NoError(t, err)
}

func TestRunBatch_RunnerError(t *testing.T) {
	stub := &registryStub{keywords: []types.Keyword{{ID: 1, Keyword: "shoes", LinkURL: productLink}}}
	srv := stub.server(t)

	runner := &fakeRunner{err: errors.New("failed to open browser session")}
	err := runBatch(context.Background(), registry.NewClient(srv.URL, time.Second), runner, nil, "")
	assert.ErrorContains(t, err, "browser")
	assert.Empty(t, stub.results())
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["batch"])
	assert.True(t, names["watch"])
	assert.True(t, names["check"])
}
