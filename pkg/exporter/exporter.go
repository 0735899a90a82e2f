// Package exporter holds the per-scope metric store: a map from basename
// to label-variant group, each group a map from full name to a live
// counter value. Exporters are the unit of storage the job registry, the
// ingest server, and the scrape scheduler all push into.
package exporter

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"

	"github.com/cuemby/metricproxy/pkg/counter"
)

// Entry is a single live counter value with its own lock. Alarms bind a
// shared handle to an Entry rather than holding a back-pointer from the
// counter, so deleting a counter an alarm still references is undefined
// behavior the daemon never triggers (no delete-while-referenced path).
type Entry struct {
	mu    sync.Mutex
	Name  string
	Value counter.CounterType
}

// Get returns the entry's current value.
func (e *Entry) Get() counter.CounterType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Value
}

func (e *Entry) set(v counter.CounterType) {
	e.mu.Lock()
	e.Value = v
	e.mu.Unlock()
}

// entryGroup collects every label-variant of one basename under a
// shared doc string. A second RWMutex, nested inside the exporter's
// group-map lock, protects the name map.
type entryGroup struct {
	basename string
	doc      string
	kind     counter.Kind

	mu    sync.RWMutex
	names map[string]*Entry
}

// Exporter is a unit of metric storage: main, per-node, or per-job.
// Locking is three-tier per the group/name/value nesting above: push
// never blocks readers of an already-existing counter, concurrent
// accumulate on the same counter is serialized by the Entry's own lock,
// and serialize observes each counter's value independently rather than
// a single global snapshot.
type Exporter struct {
	mu     sync.RWMutex
	groups map[string]*entryGroup

	alarmMu sync.RWMutex
	alarms  map[string]*Alarm
}

// New returns an empty Exporter.
func New() *Exporter {
	return &Exporter{
		groups: make(map[string]*entryGroup),
		alarms: make(map[string]*Alarm),
	}
}

// ErrUnknownMetric is returned by operations that require an existing
// counter when the name has never been pushed.
var ErrUnknownMetric = fmt.Errorf("exporter: unknown metric")

// Push inserts snapshot if its full name is new, creating the basename
// group (with the snapshot's doc) on first sight. Idempotent: pushing an
// already-known full name is a no-op. Rejects names with unbalanced
// braces.
func (x *Exporter) Push(snap counter.Snapshot) error {
	if err := counter.ValidateName(snap.Name); err != nil {
		return err
	}
	basename := counter.Basename(snap.Name)

	x.mu.RLock()
	group, ok := x.groups[basename]
	x.mu.RUnlock()

	if !ok {
		x.mu.Lock()
		group, ok = x.groups[basename]
		if !ok {
			group = &entryGroup{
				basename: basename,
				doc:      snap.Doc,
				kind:     snap.Value.Kind,
				names:    make(map[string]*Entry),
			}
			x.groups[basename] = group
		}
		x.mu.Unlock()
	}

	group.mu.RLock()
	_, exists := group.names[snap.Name]
	group.mu.RUnlock()
	if exists {
		return nil
	}

	group.mu.Lock()
	defer group.mu.Unlock()
	if _, exists := group.names[snap.Name]; exists {
		return nil
	}
	group.names[snap.Name] = &Entry{Name: snap.Name, Value: snap.Value}
	return nil
}

// Accumulate requires snap.Name to already exist. When merge is true it
// runs the variant's merge semantics; otherwise it runs set (which
// accumulates on Counter, replaces on Gauge). Missing names return
// ErrUnknownMetric rather than panicking.
func (x *Exporter) Accumulate(snap counter.Snapshot, merge bool) error {
	entry, err := x.lookup(snap.Name)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var out counter.CounterType
	if merge {
		out, err = counter.Merge(entry.Value, snap.Value)
	} else {
		out, err = counter.Set(entry.Value, snap.Value)
	}
	if err != nil {
		return fmt.Errorf("accumulate %s: %w", snap.Name, err)
	}
	entry.Value = out
	return nil
}

// Set requires snap.Name to already exist and overwrites it with a
// fresh value via the variant's set semantics.
func (x *Exporter) Set(snap counter.Snapshot) error {
	return x.Accumulate(snap, false)
}

// Get returns a shared handle to the live counter, for alarms to bind
// against.
func (x *Exporter) Get(name string) (*Entry, error) {
	return x.lookup(name)
}

func (x *Exporter) lookup(name string) (*Entry, error) {
	basename := counter.Basename(name)

	x.mu.RLock()
	group, ok := x.groups[basename]
	x.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}

	group.mu.RLock()
	defer group.mu.RUnlock()
	entry, ok := group.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	return entry, nil
}

// Profile snapshots every group into a flat, deterministically ordered
// slice. full=false suppresses counters whose HasData() is false.
func (x *Exporter) Profile(full bool) []counter.Snapshot {
	x.mu.RLock()
	groups := make([]*entryGroup, 0, len(x.groups))
	for _, g := range x.groups {
		groups = append(groups, g)
	}
	x.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool { return groups[i].basename < groups[j].basename })

	var out []counter.Snapshot
	for _, g := range groups {
		g.mu.RLock()
		names := make([]string, 0, len(g.names))
		for n := range g.names {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			e := g.names[n]
			v := e.Get()
			if !full && !v.HasData() {
				continue
			}
			out = append(out, counter.Snapshot{Name: n, Doc: g.doc, Value: v})
		}
		g.mu.RUnlock()
	}
	return out
}

// Serialize renders every group as OpenMetrics text.
func (x *Exporter) Serialize() ([]byte, error) {
	x.mu.RLock()
	groups := make([]*entryGroup, 0, len(x.groups))
	for _, g := range x.groups {
		groups = append(groups, g)
	}
	x.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool { return groups[i].basename < groups[j].basename })

	families := make([]*dto.MetricFamily, 0, len(groups))
	for _, g := range groups {
		g.mu.RLock()
		members := make(map[string]counter.Snapshot, len(g.names))
		for n, e := range g.names {
			members[n] = counter.Snapshot{Name: n, Doc: g.doc, Value: e.Get()}
		}
		g.mu.RUnlock()

		mf, err := counter.MetricFamily(g.basename, g.doc, g.kind, members)
		if err != nil {
			return nil, err
		}
		families = append(families, mf)
	}

	var buf bytes.Buffer
	if err := counter.WriteText(&buf, families); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
