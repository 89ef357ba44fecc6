package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/rossigee/slot-rank-tracker/internal/api"
	"github.com/rossigee/slot-rank-tracker/internal/jobs"
	"github.com/rossigee/slot-rank-tracker/internal/rank"
	"github.com/rossigee/slot-rank-tracker/internal/registry"
	"github.com/rossigee/slot-rank-tracker/internal/slots"
	"github.com/rossigee/slot-rank-tracker/internal/storage"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

const productLink = "https://www.coupang.com/vp/products/100?itemId=1"

// staticSession serves canned search pages
type staticSession struct {
	pages map[string]string
}

func (s *staticSession) Fetch(_ context.Context, pageURL string) (string, error) {
	return s.pages[pageURL], nil
}

func (s *staticSession) Close() error { return nil }

func resultsPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul id="productList">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="search-product"><a href="/vp/products/%s?itemId=1">item %s</a></li>`, id, id)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

// PipelineSuite drives the registry API, the resolver batch flow and the polling
// loop against one in-memory store
type PipelineSuite struct {
	suite.Suite
	store    *storage.Store
	server   *httptest.Server
	client   *registry.Client
	resolver *rank.Resolver
	pages    map[string]string
}

func (s *PipelineSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	store, err := storage.NewStore(":memory:")
	s.Require().NoError(err)
	s.store = store

	handler := api.NewHandler(store, registry.NewWriter(store, 0, 0), slots.NewService(store, nil), nil)
	router := gin.New()
	api.SetupRoutes(router, handler, nil)
	s.server = httptest.NewServer(router)
	s.client = registry.NewClient(s.server.URL, 5*time.Second)

	s.resolver = rank.NewResolver()
	s.resolver.SearchURL = "https://shop.test/search"
	s.resolver.MaxPages = 3
}

func (s *PipelineSuite) TearDownTest() {
	s.server.Close()
	_ = s.store.Close() // Ignore error in test
}

func (s *PipelineSuite) newWorker() *jobs.Worker {
	pages := s.pages
	cfg := jobs.Config{
		BusyInterval:  10 * time.Millisecond,
		IdleInterval:  10 * time.Millisecond,
		ErrorInterval: 10 * time.Millisecond,
		Lease:         time.Minute,
	}
	return jobs.NewWorker(s.resolver, func(context.Context) (jobs.Session, error) {
		return &staticSession{pages: pages}, nil
	}, cfg)
}

func (s *PipelineSuite) post(path string, body interface{}, into interface{}) int {
	data, err := json.Marshal(body)
	s.Require().NoError(err)

	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(data))
	s.Require().NoError(err)
	defer func() {
		_ = resp.Body.Close() // Ignore error in test
	}()

	if into != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func (s *PipelineSuite) get(path string, into interface{}) {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer func() {
		_ = resp.Body.Close() // Ignore error in test
	}()

	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *PipelineSuite) allocate() []types.SlotStatus {
	code := s.post("/api/slots", types.CreateSlotRequest{
		CustomerID: "alice", CustomerName: "Alice Shop", SlotCount: 3, UsageDays: 30,
	}, nil)
	s.Require().Equal(http.StatusCreated, code)

	var alloc types.AllocateSlotsResponse
	code = s.post("/api/slot-status", types.AllocateSlotsRequest{
		CustomerID: "alice", CustomerName: "Alice Shop", Keyword: "shoes", LinkURL: productLink, SlotCount: 2,
	}, &alloc)
	s.Require().Equal(http.StatusOK, code)
	s.Require().Len(alloc.Data, 2)
	return alloc.Data
}

func (s *PipelineSuite) units() []types.SlotStatusView {
	var resp types.SlotStatusListResponse
	s.get("/api/slot-status?type=slot_status&customerId=alice&username=alice", &resp)
	return resp.Data
}

func (s *PipelineSuite) TestBatchThenWatch() {
	ctx := context.Background()
	allocated := s.allocate()

	// batch: fetch from the API, check, post back
	pending, err := s.client.ListKeywords(ctx, "")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)

	s.pages = map[string]string{s.resolver.PageURL("shoes", 1): resultsPage("1", "2", "100")}
	report, err := s.newWorker().RunBatch(ctx, pending)
	s.Require().NoError(err)
	s.Equal(1, report.Found)

	resp, err := s.client.PostResults(ctx, report.Results)
	s.Require().NoError(err)
	s.Equal(types.UpdateStats{Success: 1}, resp.Stats)

	for _, unit := range s.units() {
		s.Require().NotNil(unit.CurrentRank)
		s.Equal(3, *unit.CurrentRank)
		s.Equal(3, *unit.StartRank)
	}

	count, err := s.store.CountKeywords(ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	// watch: requeue and let the polling loop pick it up from the store
	var queued types.KeywordResponse
	code := s.post("/api/keywords", types.EnqueueKeywordRequest{Keyword: "shoes", LinkURL: productLink}, &queued)
	s.Require().Equal(http.StatusCreated, code)

	s.pages = map[string]string{s.resolver.PageURL("shoes", 1): resultsPage("100")}
	worker := s.newWorker()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(runCtx, s.store, registry.NewWriter(s.store, 0, 0))
	}()

	s.Eventually(func() bool {
		n, err := s.store.CountKeywords(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	s.NoError(<-done)

	for _, unit := range s.units() {
		s.Equal(1, *unit.CurrentRank)
		s.Equal(3, *unit.StartRank, "baseline rank is kept")
	}

	var history types.RankHistoryResponse
	s.get(fmt.Sprintf("/api/rank-history?slot_status_id=%d", allocated[0].ID), &history)
	s.Require().Len(history.Data, 2)
	s.Equal(1, *history.Data[0].CurrentRank)
	s.Equal(3, *history.Data[1].CurrentRank)
}

func (s *PipelineSuite) TestNotFoundIsRetriedThenConsumed() {
	ctx := context.Background()
	s.allocate()

	pending, err := s.client.ListKeywords(ctx, "")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)

	s.pages = map[string]string{s.resolver.PageURL("shoes", 1): resultsPage("1", "2")}
	for attempt := 1; attempt <= registry.DefaultMaxAttempts; attempt++ {
		report, err := s.newWorker().RunBatch(ctx, pending)
		s.Require().NoError(err)
		s.Require().Len(report.Results, 1)
		s.Equal(types.CheckNotFound, report.Results[0].Status)

		resp, err := s.client.PostResults(ctx, report.Results)
		s.Require().NoError(err)
		s.Equal(1, resp.Stats.Success)
	}

	count, err := s.store.CountKeywords(ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	for _, unit := range s.units() {
		s.Nil(unit.CurrentRank)
	}
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}
