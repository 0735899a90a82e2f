package trace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/metricproxy/pkg/counter"
)

// ForceFold runs a fold outside of Push's size-triggered path, for the
// offline maintenance tool.
func (t *Trace) ForceFold() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fold()
}

// fold halves the trace's resolution: adjacent Counters frames are
// paired and merged, an unpaired trailing frame is carried over
// unchanged (so n frames fold to ceil(n/2)), and the
// whole file is rewritten atomically (write to a uuid-suffixed temp
// file, then rename over the original) so a reader never observes a
// half-written trace. Caller must hold t.mu.
func (t *Trace) fold() error {
	folded := make([]CountersPayload, 0, (len(t.countersFrames)+1)/2)
	for i := 0; i+1 < len(t.countersFrames); i += 2 {
		merged, err := mergeCountersPayload(t.countersFrames[i], t.countersFrames[i+1])
		if err != nil {
			return fmt.Errorf("trace: fold %s: %w", t.path, err)
		}
		folded = append(folded, merged)
	}
	// An odd trailing frame is kept as-is so no counter total is lost.
	if len(t.countersFrames)%2 == 1 {
		folded = append(folded, t.countersFrames[len(t.countersFrames)-1])
	}

	tmpPath := filepath.Join(filepath.Dir(t.path), fmt.Sprintf("%s.%s.tmp", filepath.Base(t.path), uuid.New().String()))
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("trace: create fold temp file: %w", err)
	}

	var size int64
	if err := WriteFrame(tmp, Frame{Tag: TagDesc, Desc: t.descFrame}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	size += frameOnDiskSize(t.descFrame)

	for i := range t.metadata {
		m := t.metadata[i]
		if err := WriteFrame(tmp, Frame{Tag: TagCounterMetadata, Metadata: &m}); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		size += frameOnDiskSize(&m)
	}

	for i := range folded {
		c := folded[i]
		if err := WriteFrame(tmp, Frame{Tag: TagCounters, Counters: &c}); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		size += frameOnDiskSize(&c)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("trace: sync fold temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("trace: close fold temp file: %w", err)
	}

	if err := t.file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("trace: close live file before fold rename: %w", err)
	}

	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("trace: rename fold temp file over %s: %w", t.path, err)
	}

	reopened, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("trace: reopen %s after fold: %w", t.path, err)
	}

	t.file = reopened
	t.countersFrames = folded
	t.diskSize = size
	return nil
}

// mergeCountersPayload combines two ticks' worth of values, matched by
// counter ID. An ID present in only one side passes through unchanged.
func mergeCountersPayload(a, b CountersPayload) (CountersPayload, error) {
	out := CountersPayload{TS: (a.TS + b.TS) / 2}
	seen := make(map[uint64]bool, len(a.Values))

	for _, v := range a.Values {
		seen[v.ID] = true
		if other, ok := findByID(b.Values, v.ID); ok {
			merged, err := counter.Merge(v.Value, other.Value)
			if err != nil {
				return CountersPayload{}, err
			}
			out.Values = append(out.Values, CounterValue{ID: v.ID, Value: merged})
		} else {
			out.Values = append(out.Values, v)
		}
	}
	for _, v := range b.Values {
		if !seen[v.ID] {
			out.Values = append(out.Values, v)
		}
	}
	return out, nil
}

func findByID(values []CounterValue, id uint64) (CounterValue, bool) {
	for _, v := range values {
		if v.ID == id {
			return v, true
		}
	}
	return CounterValue{}, false
}
