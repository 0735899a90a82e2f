package ingest

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/exporter"
	"github.com/cuemby/metricproxy/pkg/job"
	"github.com/cuemby/metricproxy/pkg/log"
)

// Server is the UNIX stream socket ingest listener. It accepts one
// connection per instrumented client and hands each to its own
// goroutine.
type Server struct {
	socketPath string
	factory    *job.Factory

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server bound to socketPath, fanning decoded
// commands into factory's exporters.
func NewServer(socketPath string, factory *job.Factory) *Server {
	return &Server{socketPath: socketPath, factory: factory}
}

// Start removes any stale socket file, binds, and begins accepting
// connections in the background. It returns once the listener is live.
func (s *Server) Start() error {
	if err := os.RemoveAll(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and waits for the accept loop and every
// connection handler to return; a handler returns only once its client
// disconnects or a read on its connection fails.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	logger := log.WithComponent("ingest")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn().Err(err).Msg("ingest: accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// connState tracks the per-connection job association: the declared
// descriptor, whether a JobDesc with a non-empty jobid was resolved (so
// close-time relax only fires in that case), and the resolved per-job
// exporter.
type connState struct {
	desc       job.Desc
	haveJob    bool
	jobExp     *exporter.Exporter
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	logger := log.WithComponent("ingest")

	main := s.factory.Main()
	node := s.factory.Node()

	var state connState
	dec := NewDecoder(conn)

	for {
		cmd, err := dec.Next()
		if err != nil {
			if err != io.EOF {
				logger.Warn().Err(err).Msg("ingest: connection decode error")
			}
			break
		}

		switch cmd.Kind {
		case CommandJobDesc:
			desc := *cmd.JobDesc
			if desc.JobID == "" {
				continue
			}
			exp, err := s.factory.ResolveJob(desc, true)
			if err != nil {
				logger.Warn().Err(err).Str("jobid", desc.JobID).Msg("ingest: resolve job failed")
				continue
			}
			state.desc = desc
			state.haveJob = true
			state.jobExp = exp

		case CommandDesc:
			targets := targetsFor(main, node, state.jobExp)
			for _, exp := range targets {
				_ = exp.Push(counter.Snapshot{
					Name:  cmd.Desc.Name,
					Doc:   cmd.Desc.Doc,
					Value: zeroValue(cmd.Desc.Kind),
				})
			}

		case CommandValue:
			targets := targetsFor(main, node, state.jobExp)
			for _, exp := range targets {
				if err := exp.Accumulate(counter.Snapshot{Name: cmd.Value.Name, Value: cmd.Value.Value}, false); err != nil {
					logger.Debug().Err(err).Str("name", cmd.Value.Name).Msg("ingest: accumulate on unknown metric")
				}
			}
		}
	}

	if state.haveJob {
		state.desc.EndTime = time.Now().UnixMicro()
		if err := s.factory.RelaxJob(state.desc); err != nil {
			logger.Warn().Err(err).Str("jobid", state.desc.JobID).Msg("ingest: relax on disconnect failed")
		}
	}
}

func targetsFor(main, node, jobExp *exporter.Exporter) []*exporter.Exporter {
	targets := []*exporter.Exporter{main, node}
	if jobExp != nil {
		targets = append(targets, jobExp)
	}
	return targets
}

// zeroValue builds the placeholder value a Desc message pushes ahead
// of any real sample. It deliberately carries no data (HasData()==false)
// so the metric stays suppressed from non-full profiles until its first
// Value arrives.
func zeroValue(kind counter.Kind) counter.CounterType {
	return counter.CounterType{Kind: kind}
}
