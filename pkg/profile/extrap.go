package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// surrogateSample is one line of a <md5(command)>.jsonl file: the
// per-job parameters an Extra-P-style surrogate model regresses over.
type surrogateSample struct {
	JobID     string             `json:"jobid"`
	Size      int                `json:"size"`
	Counters  map[string]float64 `json:"counters"`
	Timestamp int64              `json:"timestamp"`
}

func (s *Store) jsonlPath(commandHash string) string {
	return filepath.Join(s.profileDir, commandHash+".jsonl")
}

// appendSurrogateSample appends one JSON line recording this profile's
// scalar counter values, for later surrogate-model generation.
func (s *Store) appendSurrogateSample(commandHash string, p *Profile) error {
	values := make(map[string]float64, len(p.Counters))
	for _, c := range p.Counters {
		values[c.Name] = c.Value.Scalar()
	}
	sample := surrogateSample{
		JobID:     p.Desc.JobID,
		Size:      p.Desc.Size,
		Counters:  values,
		Timestamp: time.Now().UnixMicro(),
	}
	line, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("profile: marshal surrogate sample: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.jsonlPath(commandHash), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("profile: open surrogate log %s: %w", commandHash, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("profile: append surrogate sample %s: %w", commandHash, err)
	}
	return nil
}

// GenerateSurrogateModel invokes the external Extra-P-style helper
// (ftioCommand) against the accumulated samples for commandHash and
// returns its stdout verbatim — the helper itself, like the rest of
// the FTIO pipeline, is an external program out of scope for this
// daemon; this is only the hook that shells out to it.
func (s *Store) GenerateSurrogateModel(ctx context.Context, commandHash, ftioCommand string) ([]byte, error) {
	if ftioCommand == "" {
		return nil, fmt.Errorf("profile: no surrogate-model command configured")
	}
	jsonlPath := s.jsonlPath(commandHash)
	if _, err := os.Stat(jsonlPath); err != nil {
		return nil, fmt.Errorf("profile: no samples for %s: %w", commandHash, err)
	}

	cmd := exec.CommandContext(ctx, ftioCommand, jsonlPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("profile: surrogate model helper failed: %w", err)
	}
	return out, nil
}
