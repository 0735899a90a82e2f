// Package profile persists one on-disk JSON profile per terminated job
// and indexes profiles by command hash (bbolt) for Extra-P surrogate
// modelling across repeated runs of the same command.
package profile

import (
	"crypto/md5" //nolint:gosec // used as a grouping key, not for security
	"encoding/hex"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

// Profile is the on-disk shape of one job's final counter values.
type Profile struct {
	Desc     job.Desc           `json:"desc"`
	Counters []counter.Snapshot `json:"counters"`
}

// CommandHash returns the MD5 hex digest used to group same-command
// profiles for surrogate modelling.
func CommandHash(command string) string {
	sum := md5.Sum([]byte(command)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
