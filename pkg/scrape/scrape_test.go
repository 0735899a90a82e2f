package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

func newTestScheduler(t *testing.T) (*Scheduler, *job.Factory) {
	t.Helper()
	factory := job.NewFactory("node1", false, nil)
	return NewScheduler(factory, nil, nil, "", nil), factory
}

func TestPushToAllLocalScopesDoesNotDoubleCountFirstSample(t *testing.T) {
	s, factory := newTestScheduler(t)

	s.pushToAllLocalScopes([]counter.Snapshot{
		{Name: "bytes_read", Doc: "", Value: counter.NewCounter(1, 7)},
	})

	entry, err := factory.Main().Get("bytes_read")
	require.NoError(t, err)
	assert.Equal(t, 7.0, entry.Get().Value)
}

func TestPushToAllLocalScopesMergesSecondSample(t *testing.T) {
	s, factory := newTestScheduler(t)

	s.pushToAllLocalScopes([]counter.Snapshot{
		{Name: "bytes_read", Doc: "", Value: counter.NewCounter(1, 7)},
	})
	s.pushToAllLocalScopes([]counter.Snapshot{
		{Name: "bytes_read", Doc: "", Value: counter.NewCounter(2, 3)},
	})

	entry, err := factory.Main().Get("bytes_read")
	require.NoError(t, err)
	assert.Equal(t, 10.0, entry.Get().Value)
}

func TestSourceDueRespectsPeriod(t *testing.T) {
	src := &Source{ID: "x", Period: time.Second, LastScrape: 0}
	assert.False(t, src.Due(500_000))
	assert.True(t, src.Due(1_000_000))
}

func TestSchedulerRegisterSystemIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.RegisterSystem(time.Second)
	s.RegisterSystem(time.Second)

	count := 0
	s.mu.Lock()
	for _, p := range s.pending {
		if p.ID == SystemSourceID {
			count++
		}
	}
	s.mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestUnregisterDropsSource(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.Register(&Source{ID: "/trace.42", Kind: KindTrace, JobID: "42", Period: time.Second})
	s.tickOnce() // merges the pending registration into the active set

	require.Len(t, s.Sources(), 1)

	s.Unregister("/trace.42")
	assert.Len(t, s.Sources(), 0)
}

func TestParsePrometheusText(t *testing.T) {
	body := "# HELP cnt a counter\n# TYPE cnt counter\ncnt 7\n# TYPE gau gauge\ngau 3.5\n"
	snaps, err := ParsePrometheusText(body)
	require.NoError(t, err)

	byName := make(map[string]counter.Snapshot, len(snaps))
	for _, s := range snaps {
		byName[s.Name] = s
	}

	cnt, ok := byName["cnt"]
	require.True(t, ok)
	assert.Equal(t, counter.KindCounter, cnt.Value.Kind)
	assert.Equal(t, 7.0, cnt.Value.Value)

	gau, ok := byName["gau"]
	require.True(t, ok)
	assert.Equal(t, counter.KindGauge, gau.Value.Kind)
	assert.EqualValues(t, 1, gau.Value.Hits)
	assert.Equal(t, 3.5, gau.Value.Scalar())
}

func TestParsePrometheusTextIgnoresHistograms(t *testing.T) {
	body := "# TYPE lat histogram\nlat_bucket{le=\"1\"} 4\nlat_sum 2.5\nlat_count 4\n"
	snaps, err := ParsePrometheusText(body)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestPullProxyDiffSemantics(t *testing.T) {
	var mu sync.Mutex
	var current []job.Profile

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewEncoder(w).Encode(current)
	}))
	defer srv.Close()

	s, factory := newTestScheduler(t)
	src := &Source{ID: srv.URL, Kind: KindProxy, URL: srv.URL, Period: time.Second}

	setRemote := func(value float64) {
		mu.Lock()
		current = []job.Profile{{
			Desc: job.Desc{JobID: "9"},
			Counters: []counter.Snapshot{
				{Name: "hits", Doc: "", Value: counter.NewCounter(1, value)},
			},
		}}
		mu.Unlock()
	}

	setRemote(5)
	require.NoError(t, s.pullProxy(context.Background(), src))

	exp, ok := factory.ResolveByID("9")
	require.True(t, ok)
	entry, err := exp.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, 5.0, entry.Get().Value)

	setRemote(8)
	require.NoError(t, s.pullProxy(context.Background(), src))
	assert.Equal(t, 8.0, entry.Get().Value, "second pull accumulates only the increment")

	mu.Lock()
	current = nil
	mu.Unlock()
	require.NoError(t, s.pullProxy(context.Background(), src))
	_, ok = factory.ResolveByID("9")
	assert.False(t, ok, "jobid absent from the response is relaxed locally")
}

func TestFailedProxySourceIsEvicted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := newTestScheduler(t)
	s.Register(&Source{ID: srv.URL, Kind: KindProxy, URL: srv.URL, Period: time.Millisecond})
	s.tickOnce() // merge pending into the active set
	require.Len(t, s.Sources(), 1)

	s.tickOnce() // executes, fails, evicts
	assert.Empty(t, s.Sources())
}

func TestFailedTraceSourceIsKept(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.Register(&Source{ID: TraceSourceID("ghost"), Kind: KindTrace, JobID: "ghost", Period: time.Millisecond})
	s.tickOnce()
	require.Len(t, s.Sources(), 1)

	s.tickOnce() // unknown job fails the emit, but internal sources survive
	assert.Len(t, s.Sources(), 1)
}
