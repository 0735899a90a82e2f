// Package scrape drives every pull-based metric source — peer proxies,
// Prometheus endpoints, the local system sampler, trace emission, and
// the FTIO surrogate-model hook — from one ticking scheduler goroutine,
// grounded on the same ticker+stop-channel shape the daemon's other
// background loops use.
package scrape

import "time"

// Kind is the sealed set of scrape sources, dispatched by exhaustive
// switch rather than an open interface: the scheduler's eviction policy
// differs per kind, and the set never grows without a spec change.
type Kind uint8

const (
	KindProxy Kind = iota
	KindPrometheus
	KindSystem
	KindTrace
	KindFTIO
)

func (k Kind) String() string {
	switch k {
	case KindProxy:
		return "proxy"
	case KindPrometheus:
		return "prometheus"
	case KindSystem:
		return "system"
	case KindTrace:
		return "trace"
	case KindFTIO:
		return "ftio"
	default:
		return "unknown"
	}
}

// Source is one registered pull target.
type Source struct {
	ID    string
	Kind  Kind
	URL   string // Proxy / Prometheus targets
	JobID string // Trace / FTIO targets

	Period     time.Duration
	LastScrape int64 // wall-clock microseconds
}

// Due reports whether this source should run on this tick.
func (s *Source) Due(now int64) bool {
	return now-s.LastScrape >= s.Period.Microseconds()
}

// SystemSourceID is the sentinel ID for the local host sampler.
const SystemSourceID = "/system"

// TraceSourceID returns the internal ID for a job's trace-emit source.
func TraceSourceID(jobid string) string {
	return "/trace." + jobid
}

// FTIOSourceID returns the internal ID for a job's FTIO scrape.
func FTIOSourceID(jobid string) string {
	return "/FTIO/" + jobid
}
