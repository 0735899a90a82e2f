// Package job owns the per-job exporter registry: JobDesc derivation
// from batch-scheduler environment variables, reference-counted
// per-job Exporter lifecycle, and the two pinned sentinel jobs every
// proxy carries ("main" and "node: <host>").
package job

import "strings"

// Desc describes one job whose metrics this proxy is tracking.
type Desc struct {
	JobID     string `json:"jobid"`
	Command   string `json:"command"`
	Size      int    `json:"size"`
	NodeList  string `json:"nodelist"`
	Partition string `json:"partition"`
	Cluster   string `json:"cluster"`
	RunDir    string `json:"run_dir"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

// jobidEnvCandidates lists the environment variables consulted, in
// priority order, to derive a JobID.
var jobidEnvCandidates = []string{
	"PROXY_JOB_ID",
	"SLURM_JOBID",
	"PMIX_ID",
	"METRIC_PROXY_LAUNCHER_PPID",
}

// DeriveJobID walks jobidEnvCandidates for the first non-empty value,
// strips any trailing rank suffix after the first '.', then appends
// SLURM_STEP_ID with a '-' when present. An empty result means "no real
// job" to the caller.
func DeriveJobID(getenv func(string) string) string {
	var base string
	for _, key := range jobidEnvCandidates {
		if v := getenv(key); v != "" {
			base = v
			break
		}
	}
	if base == "" {
		return ""
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if step := getenv("SLURM_STEP_ID"); step != "" {
		base = base + "-" + step
	}
	return base
}

// DescFromEnv builds a Desc from the environment, using getenv so tests
// can inject a fake environment.
func DescFromEnv(getenv func(string) string) Desc {
	return Desc{
		JobID:     DeriveJobID(getenv),
		Command:   getenv("METRIC_PROXY_COMMAND"),
		NodeList:  getenv("SLURM_NODELIST"),
		Partition: getenv("SLURM_PARTITION"),
		Cluster:   getenv("SLURM_CLUSTER_NAME"),
		RunDir:    getenv("PWD"),
	}
}
