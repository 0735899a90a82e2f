package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/metricproxy/pkg/job"
)

// Manager owns one Trace per job under <prefix>/traces, allocating a
// fresh file when a job is first resolved and finalizing it when the
// job relaxes to zero. It is the concrete type wired as the job
// registry's ResolveHook/RelaxHook target in main.
type Manager struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	traces  map[string]*Trace
}

// Info summarizes one tracked trace for /trace/list.
type Info struct {
	JobID string
	Path  string
	Size  int64
}

// NewManager ensures <prefix>/traces exists.
func NewManager(prefix string, maxSize int64) (*Manager, error) {
	dir := filepath.Join(prefix, "traces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: create %s: %w", dir, err)
	}
	return &Manager{dir: dir, maxSize: maxSize, traces: make(map[string]*Trace)}, nil
}

func (m *Manager) path(jobid string) string {
	return filepath.Join(m.dir, jobid+".trace")
}

// Allocate creates a new trace for desc.JobID. Wrapped as a
// job.ResolveHook closure in main, where the logger can report a
// failure the hook signature itself has no room to return.
func (m *Manager) Allocate(desc job.Desc) error {
	if desc.JobID == "" {
		return nil
	}
	tr, err := New(m.path(desc.JobID), desc, m.maxSize)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.traces[desc.JobID] = tr
	m.mu.Unlock()
	return nil
}

// Finalize marks jobid's trace done and closes its file handle. The
// map entry is kept: a terminated job's trace stays readable through
// Get/List so /trace routes keep serving it. Wrapped as a
// job.RelaxHook closure in main.
func (m *Manager) Finalize(jobid string) error {
	m.mu.Lock()
	tr, ok := m.traces[jobid]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	tr.Done()
	return tr.Close()
}

// Get returns the live trace for jobid, if one is being tracked.
func (m *Manager) Get(jobid string) (*Trace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.traces[jobid]
	return tr, ok
}

// List summarizes every tracked trace.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.traces))
	for jobid := range m.traces {
		info, err := os.Stat(m.path(jobid))
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, Info{JobID: jobid, Path: m.path(jobid), Size: size})
	}
	return out
}
