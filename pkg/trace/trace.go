package trace

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

// Trace is the in-memory state for one job's append-only binary log,
// keeping the interning table plus the frame sequence needed to
// fold. The whole file is read eagerly on Open (there is no trailing
// index to resume from), after which writes append to both the open
// file handle and the in-memory frame list kept for folding.
type Trace struct {
	mu sync.Mutex

	path    string
	file    *os.File
	maxSize int64

	descFrame *DescPayload
	metadata  []MetadataPayload      // insertion order, preserved across folds
	interning map[string]uint64      // name -> id
	kinds     map[uint64]counter.Kind

	countersFrames []CountersPayload // one per Counters frame written so far

	nextID   uint64
	diskSize int64
	done     bool
}

// New creates a brand-new trace file for desc, writing its Desc frame
// immediately.
func New(path string, desc job.Desc, maxSize int64) (*Trace, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: create %s: %w", path, err)
	}

	t := &Trace{
		path:      path,
		file:      f,
		maxSize:   maxSize,
		descFrame: DescFromJob(desc),
		interning: make(map[string]uint64),
		kinds:     make(map[uint64]counter.Kind),
	}

	if err := WriteFrame(f, Frame{Tag: TagDesc, Desc: t.descFrame}); err != nil {
		f.Close()
		return nil, err
	}
	t.diskSize = frameOnDiskSize(t.descFrame)
	return t, nil
}

// Open reads an existing trace file fully, rebuilding the interning
// table and frame history so writes can continue to append correctly.
func Open(path string, maxSize int64) (*Trace, error) {
	frames, size, err := readAllFrames(path)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 || frames[0].Tag != TagDesc {
		return nil, fmt.Errorf("trace: %s missing leading Desc frame", path)
	}

	t := &Trace{
		path:      path,
		maxSize:   maxSize,
		descFrame: frames[0].Desc,
		interning: make(map[string]uint64),
		kinds:     make(map[uint64]counter.Kind),
		diskSize:  size,
	}

	for _, f := range frames[1:] {
		switch f.Tag {
		case TagCounterMetadata:
			t.metadata = append(t.metadata, *f.Metadata)
			t.interning[f.Metadata.Name] = f.Metadata.ID
			t.kinds[f.Metadata.ID] = f.Metadata.Kind
			if f.Metadata.ID >= t.nextID {
				t.nextID = f.Metadata.ID + 1
			}
		case TagCounters:
			t.countersFrames = append(t.countersFrames, *f.Counters)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: reopen %s: %w", path, err)
	}
	t.file = file
	return t, nil
}

// Close releases the underlying file handle.
func (t *Trace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// Done marks the trace complete (job terminated); further Push calls
// are rejected.
func (t *Trace) Done() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

// Push appends one sampling tick. Any name not yet interned gets a
// CounterMetadata frame first. If the resulting on-disk size exceeds
// maxSize, Push folds the trace and returns the doubled sampling
// period the caller should switch to.
func (t *Trace) Push(values []counter.Snapshot, currentPeriod time.Duration) (*time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, fmt.Errorf("trace: push on completed trace %s", t.path)
	}

	entries := make([]CounterValue, 0, len(values))
	var ts int64
	for i, snap := range values {
		id, ok := t.interning[snap.Name]
		if !ok {
			id = t.nextID
			t.nextID++
			t.interning[snap.Name] = id
			t.kinds[id] = snap.Value.Kind
			meta := MetadataPayload{ID: id, Name: snap.Name, Doc: snap.Doc, Kind: snap.Value.Kind}
			t.metadata = append(t.metadata, meta)
			if err := WriteFrame(t.file, Frame{Tag: TagCounterMetadata, Metadata: &meta}); err != nil {
				return nil, err
			}
			t.diskSize += frameOnDiskSize(&meta)
		}
		if i == 0 && snap.Value.Kind == counter.KindCounter && snap.Value.TS != 0 {
			ts = snap.Value.TS
		}
		entries = append(entries, CounterValue{ID: id, Value: snap.Value})
	}
	if ts == 0 {
		ts = time.Now().UnixMicro()
	}

	payload := CountersPayload{TS: ts, Values: entries}
	if err := WriteFrame(t.file, Frame{Tag: TagCounters, Counters: &payload}); err != nil {
		return nil, err
	}
	t.diskSize += frameOnDiskSize(&payload)
	t.countersFrames = append(t.countersFrames, payload)

	if t.diskSize > t.maxSize {
		if err := t.fold(); err != nil {
			return nil, err
		}
		newPeriod := currentPeriod * 2
		return &newPeriod, nil
	}
	return nil, nil
}

// frameOnDiskSize is an estimate of the serialized size of one frame,
// used only to decide when to fold; it need not be exact, only
// monotonic with the data it carries.
func frameOnDiskSize(payload interface{}) int64 {
	switch p := payload.(type) {
	case *DescPayload:
		return int64(8 + 1 + 4*6 + len(p.JobID) + len(p.Command) + len(p.NodeList) + len(p.Partition) + len(p.Cluster) + len(p.RunDir) + 8)
	case *MetadataPayload:
		return int64(8 + 1 + 8 + 4 + len(p.Name) + 4 + len(p.Doc) + 1)
	case *CountersPayload:
		return int64(8 + 1 + 8 + 8 + len(p.Values)*(8+1+8+8*4+8))
	default:
		return 0
	}
}
