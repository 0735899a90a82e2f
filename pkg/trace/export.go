package trace

import (
	"fmt"
	"io"
	"os"
)

// readAllFrames loads every frame of path into memory, along with the
// file's total size. Used by Open and by the offline inspect tool.
func readAllFrames(path string) ([]Frame, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("trace: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("trace: stat %s: %w", path, err)
	}

	var frames []Frame
	for {
		frame, err := ReadFrame(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		frames = append(frames, frame)
	}
	return frames, info.Size(), nil
}

// ReadAllFrames exposes readAllFrames for the offline inspect tool.
func ReadAllFrames(path string) ([]Frame, error) {
	frames, _, err := readAllFrames(path)
	return frames, err
}

// ReadLast scans a trace file from its start, decoding each frame in
// turn and keeping the last Counters frame seen. There is no trailing
// offset index, so this is a full forward scan rather than a
// seek-from-end.
func ReadLast(path string) (*CountersPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	defer f.Close()

	var last *CountersPayload
	for {
		frame, err := ReadFrame(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if frame.Tag == TagCounters {
			last = frame.Counters
		}
	}
	if last == nil {
		return nil, fmt.Errorf("trace: %s has no Counters frame", path)
	}
	return last, nil
}

// Series is one metric's time series, its name resolved from the
// interning table.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Point is one (offset-seconds, value) observation.
type Point struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// ExportResult is the shape /trace/read returns without a filter:
// every metric's series offset to the trace's earliest timestamp, plus
// a first-difference series per metric under "deriv__<name>".
type ExportResult struct {
	JobID   string            `json:"jobid"`
	Metrics map[string]Series `json:"metrics"`
}

// Export materializes every counter frame's series, in-memory, offset
// to the earliest seen timestamp, plus a first-difference series per
// metric.
func (t *Trace) Export() *ExportResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	idToName := make(map[uint64]string, len(t.metadata))
	for _, m := range t.metadata {
		idToName[m.ID] = m.Name
	}

	var earliest int64
	if len(t.countersFrames) > 0 {
		earliest = t.countersFrames[0].TS
	} else if t.descFrame != nil {
		earliest = t.descFrame.StartTime
	}

	result := &ExportResult{
		JobID:   t.descFrame.JobID,
		Metrics: make(map[string]Series),
	}

	for _, frame := range t.countersFrames {
		offset := float64(frame.TS-earliest) / 1e6
		for _, cv := range frame.Values {
			name, ok := idToName[cv.ID]
			if !ok {
				continue
			}
			series := result.Metrics[name]
			series.Name = name
			series.Points = append(series.Points, Point{T: offset, V: cv.Value.Scalar()})
			result.Metrics[name] = series
		}
	}

	for name, series := range result.Metrics {
		if len(series.Points) < 2 {
			continue
		}
		deriv := Series{Name: "deriv__" + name}
		for i := 1; i < len(series.Points); i++ {
			deriv.Points = append(deriv.Points, Point{
				T: series.Points[i].T,
				V: series.Points[i].V - series.Points[i-1].V,
			})
		}
		result.Metrics["deriv__"+name] = deriv
	}

	return result
}

// FilterMetric returns only the named series, for /trace/plot; its
// derivative is a separate entry, looked up as "deriv__<name>".
func (r *ExportResult) FilterMetric(name string) (Series, bool) {
	s, ok := r.Metrics[name]
	return s, ok
}
