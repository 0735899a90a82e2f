// Package webserver is the chi-routed HTTP facade: a thin adapter
// translating the HTTP routes onto the exporter/job/trace/profile/
// federation packages. It holds no metric-engine state of its own.
package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cuemby/metricproxy/pkg/federation"
	"github.com/cuemby/metricproxy/pkg/job"
	"github.com/cuemby/metricproxy/pkg/log"
	"github.com/cuemby/metricproxy/pkg/profile"
	"github.com/cuemby/metricproxy/pkg/scrape"
	"github.com/cuemby/metricproxy/pkg/trace"
)

// Server is the HTTP facade, adapter only: every handler reads from
// components constructed and owned in cmd/metric-proxy/main.go.
type Server struct {
	factory      *job.Factory
	traceMgr     *trace.Manager
	profileStore *profile.Store
	scheduler    *scrape.Scheduler
	federation   *federation.Controller
	ftioCommand  string

	httpServer *http.Server
	router     chi.Router
}

// New builds a Server wired to the daemon's components and registers
// every route the daemon serves.
func New(factory *job.Factory, traceMgr *trace.Manager, profileStore *profile.Store, scheduler *scrape.Scheduler, fed *federation.Controller, ftioCommand string) *Server {
	s := &Server{
		factory:      factory,
		traceMgr:     traceMgr,
		profileStore: profileStore,
		scheduler:    scheduler,
		federation:   fed,
		ftioCommand:  ftioCommand,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/is_admire_proxy.html", s.handleProxyMarker)
	r.Get("/metrics", s.handleMetrics)

	r.Get("/job", s.handleJob)
	r.Get("/job/list", s.handleJobList)

	r.Get("/trace/list", s.handleTraceList)
	r.Get("/trace/read", s.handleTraceRead)
	r.Get("/trace/plot", s.handleTracePlot)

	r.Get("/profiles", s.handleProfilesAll)
	r.Get("/profiles/get", s.handleProfileGet)
	r.Get("/profiles/percmd", s.handleProfilesPerCommand)
	r.Get("/profiles/extrap", s.handleProfilesExtrap)

	r.Get("/pivot", s.handlePivot)
	r.Get("/join", s.handleJoin)
	r.Get("/join/list", s.handleJoinList)
	r.Get("/topo", s.handleTopo)

	r.Route("/alarms", func(r chi.Router) {
		r.Get("/list", s.handleAlarmList)
		r.Post("/list", s.handleAlarmList)
		r.Get("/add", s.handleAlarmAdd)
		r.Post("/add", s.handleAlarmAdd)
		r.Get("/del", s.handleAlarmDel)
		r.Post("/del", s.handleAlarmDel)
	})

	r.Get("/set", s.handleSet)
	r.Post("/set", s.handleSet)
	r.Get("/accumulate", s.handleAccumulate)
	r.Post("/accumulate", s.handleAccumulate)
	r.Get("/push", s.handlePush)
	r.Post("/push", s.handlePush)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, opResult{Operation: r.URL.Path, Success: false, Error: "unknown route"})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	logger := log.WithComponent("webserver")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// Start runs the HTTP server, blocking until it stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
