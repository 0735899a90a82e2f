package webserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/metricproxy/pkg/scrape"
)

// handlePivot implements /pivot: the caller (identified by
// ?from=host:port) is assigned an attach point in the reduction tree.
func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		writeFail(w, "pivot", errMissingParam("from"))
		return
	}
	parent, err := s.federation.Pivot(from)
	if err != nil {
		writeFail(w, "pivot", err)
		return
	}
	writeOK(w, map[string]string{"parent": parent})
}

// handleJoin implements /join: the caller registers ?to= as a new
// scrape target with the given period, as a Prometheus source when
// Classify identifies one and as a Proxy source otherwise.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")
	if to == "" {
		writeFail(w, "join", errMissingParam("to"))
		return
	}
	periodStr := r.URL.Query().Get("period")
	period := 5 * time.Second
	if periodStr != "" {
		secs, err := strconv.ParseFloat(periodStr, 64)
		if err != nil {
			writeFail(w, "join", err)
			return
		}
		period = time.Duration(secs * float64(time.Second))
	}

	url := to
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	// Classify the target on first contact: a peer proxy is scraped via
	// /job diffing, anything else serving /metrics is ingested as a
	// Prometheus endpoint. An unreachable target is registered as a
	// Proxy anyway; the scheduler evicts it on its first failed pull.
	kind, err := scrape.Classify(r.Context(), url)
	if err == nil && kind == scrape.KindPrometheus {
		s.scheduler.RegisterPrometheus(url+"/metrics", period)
	} else {
		s.scheduler.RegisterProxy(url, period)
	}
	writeSuccess(w, "join")
}

func (s *Server) handleJoinList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.scheduler.Sources())
}

// handleTopo serves the federation edge list as JSON, or an indented
// adjacency-walk tree when the client asks for text/plain.
func (s *Server) handleTopo(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(s.federation.TopoTree()))
		return
	}
	writeOK(w, s.federation.Topo())
}
