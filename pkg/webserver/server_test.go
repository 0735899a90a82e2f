package webserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/metricproxy/pkg/federation"
	"github.com/cuemby/metricproxy/pkg/job"
	"github.com/cuemby/metricproxy/pkg/profile"
	"github.com/cuemby/metricproxy/pkg/scrape"
	"github.com/cuemby/metricproxy/pkg/trace"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	factory := job.NewFactory("node1", true, nil)
	traceMgr, err := trace.NewManager(dir, 4<<20)
	require.NoError(t, err)
	profileStore, err := profile.NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = profileStore.Close() })

	scheduler := scrape.NewScheduler(factory, traceMgr, profileStore, "", nil)
	fed := federation.NewController("self:9444")

	return New(factory, traceMgr, profileStore, scheduler, fed, "")
}

func TestHandleMetricsServesMain(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.factory.Main().Push(snapshotFixture("hits", 3)))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hits")
}

func TestHandlePushThenJob(t *testing.T) {
	s := newTestServer(t)
	_, err := s.factory.ResolveJob(job.Desc{JobID: "42"}, true)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/push?job=42&name=hits&value=3&kind=counter", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/job?job=42", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hits"`)
}

func TestHandleUnknownRouteIs404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePivotSequence(t *testing.T) {
	s := newTestServer(t)

	rec := doPivot(t, s, "A")
	assert.Contains(t, rec.Body.String(), "self:9444")

	rec = doPivot(t, s, "B")
	assert.Contains(t, rec.Body.String(), "self:9444")

	rec = doPivot(t, s, "C")
	assert.Contains(t, rec.Body.String(), "A")
}

func doPivot(t *testing.T, s *Server, from string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/pivot?from="+from, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func TestHandleJoinRegistersScrapeTarget(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/join?to=peer:9444&period=1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// /join parks the target in the scheduler's pending backbuffer; it
	// joins the active registry that /join/list reports at the end of
	// the scheduler's next tick.
	s.scheduler.Start()
	t.Cleanup(s.scheduler.Stop)
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/join/list", nil)
		rec = httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return strings.Contains(rec.Body.String(), "peer:9444")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "peer:9444")
}

func TestHandleAlarmAddListDel(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.factory.Main().Push(snapshotFixture("hits", 3)))

	req := httptest.NewRequest(http.MethodGet, "/alarms/add?name=too-many&metric=hits&op=%3E&value=1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/alarms/list", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "too-many")

	req = httptest.NewRequest(http.MethodGet, "/alarms/del?name=too-many", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTopoTextRendersTree(t *testing.T) {
	s := newTestServer(t)
	doPivot(t, s, "A")

	req := httptest.NewRequest(http.MethodGet, "/topo", nil)
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "self:9444")
	assert.Contains(t, rec.Body.String(), "A")
}
