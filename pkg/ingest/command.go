// Package ingest runs the UNIX-socket listener instrumented
// applications push metrics into: one thread per accepted connection,
// each decoding a stream of null-terminated JSON ProxyCommand messages
// per the daemon's wire protocol.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

// CommandKind tags which ProxyCommand variant a decoded message holds.
type CommandKind string

const (
	CommandDesc    CommandKind = "Desc"
	CommandValue   CommandKind = "Value"
	CommandJobDesc CommandKind = "JobDesc"
)

// ValueDesc declares a metric's name, doc, and kind ahead of its first
// value, mirroring the client library's Desc message.
type ValueDesc struct {
	Name string       `json:"name"`
	Doc  string       `json:"doc"`
	Kind counter.Kind `json:"kind"`
}

// CounterValue carries one sample for an already-declared metric.
type CounterValue struct {
	Name  string              `json:"name"`
	Value counter.CounterType `json:"value"`
}

// envelope is the wire shape: a tag plus one of the three payloads,
// only one of which is populated per message.
type envelope struct {
	Kind    CommandKind   `json:"kind"`
	Desc    *ValueDesc    `json:"desc,omitempty"`
	Value   *CounterValue `json:"value,omitempty"`
	JobDesc *job.Desc     `json:"jobdesc,omitempty"`
}

// Command is one decoded ProxyCommand, exactly one field of which is
// non-nil matching Kind.
type Command struct {
	Kind    CommandKind
	Desc    *ValueDesc
	Value   *CounterValue
	JobDesc *job.Desc
}

// DecodeCommand unmarshals one null-delimited JSON chunk into a
// Command, rejecting anything whose Kind doesn't match a populated
// payload.
func DecodeCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, fmt.Errorf("ingest: decode command: %w", err)
	}

	switch env.Kind {
	case CommandDesc:
		if env.Desc == nil {
			return Command{}, fmt.Errorf("ingest: Desc command missing desc payload")
		}
		return Command{Kind: CommandDesc, Desc: env.Desc}, nil
	case CommandValue:
		if env.Value == nil {
			return Command{}, fmt.Errorf("ingest: Value command missing value payload")
		}
		return Command{Kind: CommandValue, Value: env.Value}, nil
	case CommandJobDesc:
		if env.JobDesc == nil {
			return Command{}, fmt.Errorf("ingest: JobDesc command missing jobdesc payload")
		}
		return Command{Kind: CommandJobDesc, JobDesc: env.JobDesc}, nil
	default:
		return Command{}, fmt.Errorf("ingest: unknown command kind %q", env.Kind)
	}
}
