package job

import (
	"fmt"
	"sync"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/events"
	"github.com/cuemby/metricproxy/pkg/exporter"
)

const (
	mainJobID = "main"
)

// Refcount is one entry in the registry: a job's descriptor, its live
// Exporter, and the reference count driving its lifecycle.
type Refcount struct {
	Desc     Desc
	Exporter *exporter.Exporter
	Counter  int
	IsLocal  bool
}

// Profile is the flattened view of a job's counters, the shape both
// /job and the on-disk profile persist.
type Profile struct {
	Desc     Desc               `json:"desc"`
	Counters []counter.Snapshot `json:"counters"`
}

// ResolveHook is invoked every time resolve_job creates a brand-new
// per-job entry (never on a refcount bump of an existing one). It is
// how the trace engine allocates a trace and the FTIO hook registers
// its scrape, without the registry importing either package directly.
type ResolveHook func(desc Desc, exp *exporter.Exporter)

// RelaxHook is invoked once, synchronously, when a non-sentinel job's
// refcount reaches zero on an aggregator factory — after the entry has
// been removed from the registry, outside the registry lock. This is
// how the profile gets persisted and the trace gets finalized. Unlike
// ResolveHook's pure notification role, this hook's result is
// load-bearing (it receives the job's Exporter after the registry has
// let go of it), so it is an explicit callback rather than a broker
// event: events.Event only carries string metadata, not a live
// Exporter handle.
type RelaxHook func(desc Desc, exp *exporter.Exporter)

// Factory is the ExporterFactory: reference-counted per-job Exporters
// plus the two pinned sentinels.
type Factory struct {
	mu   sync.Mutex
	jobs map[string]*Refcount

	aggregator bool
	nodeJobID  string

	broker    *events.Broker
	onResolve ResolveHook
	onRelax   RelaxHook
}

// NewFactory builds a Factory with its two sentinel jobs already
// resolved and pinned.
func NewFactory(hostname string, aggregator bool, broker *events.Broker) *Factory {
	f := &Factory{
		jobs:       make(map[string]*Refcount),
		aggregator: aggregator,
		nodeJobID:  "node: " + hostname,
		broker:     broker,
	}
	f.jobs[mainJobID] = &Refcount{
		Desc:     Desc{JobID: mainJobID},
		Exporter: exporter.New(),
		Counter:  1,
		IsLocal:  false,
	}
	f.jobs[f.nodeJobID] = &Refcount{
		Desc:     Desc{JobID: f.nodeJobID},
		Exporter: exporter.New(),
		Counter:  1,
		IsLocal:  false,
	}
	return f
}

// SetHooks installs the resolve/relax callbacks. Called once during
// wiring in main, after the trace/profile packages exist.
func (f *Factory) SetHooks(onResolve ResolveHook, onRelax RelaxHook) {
	f.onResolve = onResolve
	f.onRelax = onRelax
}

// Main returns the sentinel "main" exporter (sum of everything).
func (f *Factory) Main() *exporter.Exporter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[mainJobID].Exporter
}

// Node returns this host's sentinel exporter.
func (f *Factory) Node() *exporter.Exporter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[f.nodeJobID].Exporter
}

func (f *Factory) isSentinel(jobid string) bool {
	return jobid == mainJobID || jobid == f.nodeJobID
}

// ResolveJob creates-or-refcounts the exporter for desc.JobID. An empty
// JobID means "no real job": no exporter is created and (nil, nil) is
// returned. First resolution of a new jobid fires onResolve outside the
// lock.
func (f *Factory) ResolveJob(desc Desc, islocal bool) (*exporter.Exporter, error) {
	if desc.JobID == "" {
		return nil, nil
	}

	f.mu.Lock()
	if existing, ok := f.jobs[desc.JobID]; ok {
		existing.Counter++
		if islocal {
			existing.IsLocal = true
		}
		f.mu.Unlock()
		f.publish(events.EventJobResolved, desc.JobID)
		return existing.Exporter, nil
	}

	exp := exporter.New()
	f.jobs[desc.JobID] = &Refcount{Desc: desc, Exporter: exp, Counter: 1, IsLocal: islocal}
	f.mu.Unlock()

	if f.onResolve != nil {
		f.onResolve(desc, exp)
	}
	f.publish(events.EventJobResolved, desc.JobID)
	return exp, nil
}

// DescOf is a pure lookup of a tracked job's descriptor.
func (f *Factory) DescOf(jobid string) (Desc, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.jobs[jobid]
	if !ok {
		return Desc{}, false
	}
	return entry.Desc, true
}

// ResolveByID is a pure lookup, no refcount change.
func (f *Factory) ResolveByID(jobid string) (*exporter.Exporter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.jobs[jobid]
	if !ok {
		return nil, false
	}
	return entry.Exporter, true
}

// RelaxJob decrements desc.JobID's refcount. At zero (non-sentinel jobs
// only) it drops the entry and then, outside the lock and only on an
// aggregator, fires onRelax synchronously with the stored descriptor
// (its EndTime taken from desc when desc carries one). A negative
// refcount is an invariant violation and panics rather than silently
// continuing.
func (f *Factory) RelaxJob(desc Desc) error {
	if desc.JobID == "" || f.isSentinel(desc.JobID) {
		return nil
	}

	f.mu.Lock()
	entry, ok := f.jobs[desc.JobID]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("job: relax unknown jobid %q", desc.JobID)
	}
	entry.Counter--
	if entry.Counter < 0 {
		panic(fmt.Sprintf("job: negative refcount for %q", desc.JobID))
	}
	done := entry.Counter == 0
	if done {
		delete(f.jobs, desc.JobID)
	}
	f.mu.Unlock()

	if done {
		final := entry.Desc
		if desc.EndTime != 0 {
			final.EndTime = desc.EndTime
		}
		if f.aggregator && f.onRelax != nil {
			f.onRelax(final, entry.Exporter)
		}
		f.publish(events.EventJobRelaxed, desc.JobID)
	}
	return nil
}

// ListJobs returns every tracked job's descriptor, sentinels included.
func (f *Factory) ListJobs() []Desc {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Desc, 0, len(f.jobs))
	for _, entry := range f.jobs {
		out = append(out, entry.Desc)
	}
	return out
}

// ProfileOf returns the flattened profile for one jobid.
func (f *Factory) ProfileOf(jobid string, full bool) (*Profile, error) {
	f.mu.Lock()
	entry, ok := f.jobs[jobid]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job: unknown jobid %q", jobid)
	}
	return &Profile{Desc: entry.Desc, Counters: entry.Exporter.Profile(full)}, nil
}

// Profiles returns the flattened profile of every tracked job.
func (f *Factory) Profiles(full bool) []Profile {
	f.mu.Lock()
	entries := make([]*Refcount, 0, len(f.jobs))
	for _, e := range f.jobs {
		entries = append(entries, e)
	}
	f.mu.Unlock()

	out := make([]Profile, 0, len(entries))
	for _, e := range entries {
		out = append(out, Profile{Desc: e.Desc, Counters: e.Exporter.Profile(full)})
	}
	return out
}

// LocalJobExporters returns every exporter whose entry was created
// locally (islocal==true), excluding the sentinels. Scrapes attribute
// node metrics only to these, so a proxy scraping a child doesn't
// double-count that child's own node sums.
func (f *Factory) LocalJobExporters() map[string]*exporter.Exporter {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*exporter.Exporter)
	for jobid, entry := range f.jobs {
		if entry.IsLocal && !f.isSentinel(jobid) {
			out[jobid] = entry.Exporter
		}
	}
	return out
}

func (f *Factory) publish(t events.EventType, jobid string) {
	if f.broker == nil {
		return
	}
	f.broker.Publish(&events.Event{
		Type:     t,
		Metadata: map[string]string{"jobid": jobid},
	})
}
