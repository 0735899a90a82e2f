package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/metricproxy/pkg/counter"
)

// parseDebugSnapshot reads the common name/doc/kind/value query
// parameters shared by /set, /accumulate, and /push.
func parseDebugSnapshot(r *http.Request) (counter.Snapshot, error) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		return counter.Snapshot{}, errMissingParam("name")
	}
	valueStr := q.Get("value")
	if valueStr == "" {
		return counter.Snapshot{}, errMissingParam("value")
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return counter.Snapshot{}, err
	}

	var ctype counter.CounterType
	switch q.Get("kind") {
	case "gauge":
		ctype = counter.NewGauge(value)
	default:
		ctype = counter.NewCounter(time.Now().UnixMicro(), value)
	}

	return counter.Snapshot{Name: name, Doc: q.Get("doc"), Value: ctype}, nil
}

// handlePush implements the debug /push route: Exporter.Push, creating
// the metric if it doesn't exist yet.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	snap, err := parseDebugSnapshot(r)
	if err != nil {
		writeFail(w, "push", err)
		return
	}
	exp, ok := s.scopeExporter(r)
	if !ok {
		writeFail(w, "push", errUnknownJob(r.URL.Query().Get("job")))
		return
	}
	if err := exp.Push(snap); err != nil {
		writeFail(w, "push", err)
		return
	}
	writeSuccess(w, "push")
}

// handleSet implements the debug /set route: Exporter.Set, requiring
// the metric to already exist.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	snap, err := parseDebugSnapshot(r)
	if err != nil {
		writeFail(w, "set", err)
		return
	}
	exp, ok := s.scopeExporter(r)
	if !ok {
		writeFail(w, "set", errUnknownJob(r.URL.Query().Get("job")))
		return
	}
	if err := exp.Set(snap); err != nil {
		writeFail(w, "set", err)
		return
	}
	writeSuccess(w, "set")
}

// handleAccumulate implements the debug /accumulate route:
// Exporter.Accumulate, merge semantics toggled by ?merge=true|false
// (default true).
func (s *Server) handleAccumulate(w http.ResponseWriter, r *http.Request) {
	snap, err := parseDebugSnapshot(r)
	if err != nil {
		writeFail(w, "accumulate", err)
		return
	}
	merge := true
	if v := r.URL.Query().Get("merge"); v != "" {
		merge, err = strconv.ParseBool(v)
		if err != nil {
			writeFail(w, "accumulate", err)
			return
		}
	}
	exp, ok := s.scopeExporter(r)
	if !ok {
		writeFail(w, "accumulate", errUnknownJob(r.URL.Query().Get("job")))
		return
	}
	if err := exp.Accumulate(snap, merge); err != nil {
		writeFail(w, "accumulate", err)
		return
	}
	writeSuccess(w, "accumulate")
}
