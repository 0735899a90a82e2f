package scrape

import (
	"context"
	"fmt"

	"github.com/cuemby/metricproxy/pkg/events"
	"github.com/cuemby/metricproxy/pkg/profile"
	"github.com/cuemby/metricproxy/pkg/sampler"
)

// sampleSystem runs one host-metrics pass and pushes the result into
// {main, node, every local job exporter}.
func (s *Scheduler) sampleSystem(ctx context.Context) error {
	snaps, err := sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("scrape: sample system: %w", err)
	}
	s.pushToAllLocalScopes(snaps)
	return nil
}

// emitTrace takes a snapshot of one job's exporter and appends it to
// the job's trace. If the push folds the trace, the source's period is
// doubled in place so the next tick's Due check uses the new period.
func (s *Scheduler) emitTrace(src *Source) error {
	exp, ok := s.factory.ResolveByID(src.JobID)
	if !ok {
		return fmt.Errorf("scrape: emit trace: unknown job %q", src.JobID)
	}
	tr, ok := s.traceMgr.Get(src.JobID)
	if !ok {
		return fmt.Errorf("scrape: emit trace: no trace for job %q", src.JobID)
	}

	snaps := exp.Profile(false)
	newPeriod, err := tr.Push(snaps, src.Period)
	if err != nil {
		return fmt.Errorf("scrape: emit trace %q: %w", src.JobID, err)
	}
	if newPeriod != nil {
		s.mu.Lock()
		src.Period = *newPeriod
		s.mu.Unlock()
		if s.broker != nil {
			s.broker.Publish(&events.Event{
				Type:     events.EventTraceFolded,
				Metadata: map[string]string{"jobid": src.JobID},
			})
		}
	}
	return nil
}

// runFTIO shells out to the configured surrogate-model helper for this
// job's accumulated samples. Like the rest of the FTIO pipeline, the
// helper itself is an external program out of scope for this daemon;
// this is only the periodic hook that invokes it.
func (s *Scheduler) runFTIO(ctx context.Context, src *Source) error {
	if s.ftioCommand == "" || s.profileStore == nil {
		return nil
	}
	desc, ok := s.factory.DescOf(src.JobID)
	if !ok {
		return fmt.Errorf("scrape: run ftio: unknown job %q", src.JobID)
	}
	hash := profile.CommandHash(desc.Command)
	_, err := s.profileStore.GenerateSurrogateModel(ctx, hash, s.ftioCommand)
	if err != nil {
		return fmt.Errorf("scrape: run ftio %q: %w", src.JobID, err)
	}
	return nil
}
