package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/exporter"
	"github.com/cuemby/metricproxy/pkg/health"
	"github.com/cuemby/metricproxy/pkg/job"
)

// cachedJob is one proxy source's view of a remote job as of its last
// successful pull: the raw (non-delta) counter values, used to compute
// the next pull's increment.
type cachedJob struct {
	Desc   job.Desc
	Values map[string]counter.CounterType
}

// Classify decides whether baseURL hosts a Proxy (serves HTML at
// /is_admire_proxy.html) or a Prometheus endpoint (serves non-HTML at
// /metrics). It is a one-time decision made on first contact.
func Classify(ctx context.Context, baseURL string) (Kind, error) {
	checker := health.NewHTTPChecker(baseURL + "/is_admire_proxy.html")
	body, contentType, err := checker.FetchBody(ctx)
	if err == nil && (strings.Contains(contentType, "html") || looksLikeHTML(body)) {
		return KindProxy, nil
	}

	checker = health.NewHTTPChecker(baseURL + "/metrics")
	_, contentType, err = checker.FetchBody(ctx)
	if err != nil {
		return 0, fmt.Errorf("scrape: classify %s: neither proxy nor prometheus: %w", baseURL, err)
	}
	if strings.Contains(contentType, "html") {
		return 0, fmt.Errorf("scrape: classify %s: unexpected HTML at /metrics", baseURL)
	}
	return KindPrometheus, nil
}

func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(strings.ToLower(trimmed), "<!doctype") || strings.HasPrefix(strings.ToLower(trimmed), "<html")
}

// pullProxy fetches a peer's /job profiles and diffs them against the
// source's cache: jobids no longer present are relaxed locally, new
// jobids are registered non-local with their raw baseline, and known
// jobids are accumulated by the delta against the cached baseline.
func (s *Scheduler) pullProxy(ctx context.Context, src *Source) error {
	checker := health.NewHTTPChecker(src.URL + "/job")
	body, _, err := checker.FetchBody(ctx)
	if err != nil {
		return fmt.Errorf("scrape: pull proxy %s: %w", src.URL, err)
	}

	var profiles []job.Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return fmt.Errorf("scrape: decode proxy profiles from %s: %w", src.URL, err)
	}

	s.mu.Lock()
	cache, ok := s.proxyCache[src.ID]
	if !ok {
		cache = make(map[string]cachedJob)
		s.proxyCache[src.ID] = cache
	}
	s.mu.Unlock()

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.Desc.JobID == "" {
			continue
		}
		seen[p.Desc.JobID] = true

		current := make(map[string]counter.CounterType, len(p.Counters))
		for _, c := range p.Counters {
			current[c.Name] = c.Value
		}

		prev, hadPrev := cache[p.Desc.JobID]

		var exp *exporter.Exporter
		if hadPrev {
			exp, _ = s.factory.ResolveByID(p.Desc.JobID)
		}
		if exp == nil {
			exp, err = s.factory.ResolveJob(p.Desc, false)
			if err != nil || exp == nil {
				continue
			}
			hadPrev = false
		}

		for _, c := range p.Counters {
			if !hadPrev {
				_ = exp.Push(counter.Snapshot{Name: c.Name, Doc: c.Doc, Value: c.Value})
				continue
			}
			prevValue, existed := prev.Values[c.Name]
			if !existed {
				_ = exp.Push(counter.Snapshot{Name: c.Name, Doc: c.Doc, Value: c.Value})
				continue
			}
			delta, err := counter.Delta(c.Value, prevValue)
			if err != nil {
				continue
			}
			if err := exp.Accumulate(counter.Snapshot{Name: c.Name, Doc: c.Doc, Value: delta}, true); err != nil {
				_ = exp.Push(counter.Snapshot{Name: c.Name, Doc: c.Doc, Value: delta})
			}
		}

		cache[p.Desc.JobID] = cachedJob{Desc: p.Desc, Values: current}
	}

	s.mu.Lock()
	for jobid, entry := range cache {
		if !seen[jobid] {
			delete(cache, jobid)
			s.mu.Unlock()
			_ = s.factory.RelaxJob(entry.Desc)
			s.mu.Lock()
		}
	}
	s.mu.Unlock()

	return nil
}

// pullPrometheus fetches and parses a Prometheus endpoint, pushing
// every sample into {main, node, every local job exporter}.
func (s *Scheduler) pullPrometheus(ctx context.Context, src *Source) error {
	checker := health.NewHTTPChecker(src.URL)
	body, _, err := checker.FetchBody(ctx)
	if err != nil {
		return fmt.Errorf("scrape: pull prometheus %s: %w", src.URL, err)
	}

	snaps, err := ParsePrometheusText(string(body))
	if err != nil {
		return err
	}

	s.pushToAllLocalScopes(snaps)
	return nil
}

// pushToAllLocalScopes feeds a batch of samples into every local
// exporter: a metric seen for the first time in a given exporter is
// created with Push (its value as the baseline), while one already
// present is merged in with Accumulate so neither call double-counts
// the same sample into a fresh entry.
func (s *Scheduler) pushToAllLocalScopes(snaps []counter.Snapshot) {
	targets := []*exporter.Exporter{s.factory.Main(), s.factory.Node()}
	for _, exp := range s.factory.LocalJobExporters() {
		targets = append(targets, exp)
	}
	for _, exp := range targets {
		for _, snap := range snaps {
			if _, err := exp.Get(snap.Name); err != nil {
				_ = exp.Push(snap)
				continue
			}
			_ = exp.Accumulate(snap, true)
		}
	}
}
