package scrape

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/metricproxy/pkg/events"
	"github.com/cuemby/metricproxy/pkg/job"
	"github.com/cuemby/metricproxy/pkg/log"
	"github.com/cuemby/metricproxy/pkg/profile"
	"github.com/cuemby/metricproxy/pkg/trace"
)

const tick = 500 * time.Millisecond

// Scheduler is the single worker thread driving every pull source.
// Scrapes registered mid-tick (e.g. a Trace source born from a job
// just resolved) are parked in a pending backbuffer and merged into
// the active set at the end of the tick, so the active set a
// tick iterates over never changes underneath it.
type Scheduler struct {
	mu      sync.Mutex
	sources map[string]*Source
	pending []*Source

	proxyCache map[string]map[string]cachedJob

	factory      *job.Factory
	traceMgr     *trace.Manager
	profileStore *profile.Store
	ftioCommand  string
	broker       *events.Broker
	httpClient   *http.Client

	stopCh chan struct{}
}

// NewScheduler builds a Scheduler wired to the rest of the daemon's
// components.
func NewScheduler(factory *job.Factory, traceMgr *trace.Manager, profileStore *profile.Store, ftioCommand string, broker *events.Broker) *Scheduler {
	return &Scheduler{
		sources:      make(map[string]*Source),
		proxyCache:   make(map[string]map[string]cachedJob),
		factory:      factory,
		traceMgr:     traceMgr,
		profileStore: profileStore,
		ftioCommand:  ftioCommand,
		broker:       broker,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		stopCh:       make(chan struct{}),
	}
}

// Register parks a new source in the pending backbuffer.
func (s *Scheduler) Register(src *Source) {
	s.mu.Lock()
	s.pending = append(s.pending, src)
	s.mu.Unlock()
}

// RegisterProxy registers a peer proxy scrape target.
func (s *Scheduler) RegisterProxy(url string, period time.Duration) {
	s.Register(&Source{ID: url, Kind: KindProxy, URL: url, Period: period})
}

// RegisterPrometheus registers a Prometheus scrape target.
func (s *Scheduler) RegisterPrometheus(url string, period time.Duration) {
	s.Register(&Source{ID: url, Kind: KindPrometheus, URL: url, Period: period})
}

// RegisterSystem registers the local host sampler, a no-op if already
// registered.
func (s *Scheduler) RegisterSystem(period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[SystemSourceID]; ok {
		return
	}
	for _, p := range s.pending {
		if p.ID == SystemSourceID {
			return
		}
	}
	s.pending = append(s.pending, &Source{ID: SystemSourceID, Kind: KindSystem, Period: period})
}

// RegisterTrace registers a job's trace-emit source, meant to be
// called from the job registry's ResolveHook.
func (s *Scheduler) RegisterTrace(jobid string, period time.Duration) {
	s.Register(&Source{ID: TraceSourceID(jobid), Kind: KindTrace, JobID: jobid, Period: period})
}

// RegisterFTIO registers a job's FTIO surrogate-model scrape.
func (s *Scheduler) RegisterFTIO(jobid string, period time.Duration) {
	s.Register(&Source{ID: FTIOSourceID(jobid), Kind: KindFTIO, JobID: jobid, Period: period})
}

// Unregister drops a source immediately (used when a job relaxes, to
// retire its Trace/FTIO sources).
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
	delete(s.proxyCache, id)
}

// Sources returns a snapshot of the active registry, for /join/list.
func (s *Scheduler) Sources() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, *src)
	}
	return out
}

// Start runs the scheduler loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tickOnce()
		case <-s.stopCh:
			return
		}
	}
}

// tickOnce runs one scheduling pass: due sources execute, proxy/
// prometheus failures evict their source, and the pending backbuffer
// merges into the active set afterward.
func (s *Scheduler) tickOnce() {
	now := time.Now().UnixMicro()

	s.mu.Lock()
	due := make([]*Source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.Due(now) {
			due = append(due, src)
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), tick)
	defer cancel()

	for _, src := range due {
		err := s.execute(ctx, src)

		s.mu.Lock()
		src.LastScrape = now
		if err != nil {
			switch src.Kind {
			case KindProxy, KindPrometheus:
				delete(s.sources, src.ID)
				delete(s.proxyCache, src.ID)
				if s.broker != nil {
					s.broker.Publish(&events.Event{
						Type:     events.EventScrapeSourceDown,
						Metadata: map[string]string{"source_id": src.ID},
					})
				}
			default:
				srcLogger := log.WithSource(src.ID)
				srcLogger.Warn().Err(err).Msg("scrape: source failed, keeping it registered")
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	for _, src := range s.pending {
		if _, exists := s.sources[src.ID]; !exists {
			s.sources[src.ID] = src
		}
	}
	s.pending = nil
	s.mu.Unlock()
}

func (s *Scheduler) execute(ctx context.Context, src *Source) error {
	switch src.Kind {
	case KindProxy:
		return s.pullProxy(ctx, src)
	case KindPrometheus:
		return s.pullPrometheus(ctx, src)
	case KindSystem:
		return s.sampleSystem(ctx)
	case KindTrace:
		return s.emitTrace(src)
	case KindFTIO:
		return s.runFTIO(ctx, src)
	default:
		return nil
	}
}
