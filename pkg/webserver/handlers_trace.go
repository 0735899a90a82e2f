package webserver

import "net/http"

func (s *Server) handleTraceList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.traceMgr.List())
}

// handleTraceRead serves a job's full trace export, or a single
// metric's series (plus derivative) when ?filter=NAME is given.
func (s *Server) handleTraceRead(w http.ResponseWriter, r *http.Request) {
	jobid := r.URL.Query().Get("job")
	if jobid == "" {
		writeFail(w, "trace/read", errMissingParam("job"))
		return
	}
	tr, ok := s.traceMgr.Get(jobid)
	if !ok {
		writeFail(w, "trace/read", errUnknownJob(jobid))
		return
	}

	result := tr.Export()
	if filter := r.URL.Query().Get("filter"); filter != "" {
		series, ok := result.FilterMetric(filter)
		if !ok {
			writeFail(w, "trace/read", errUnknownJob(filter))
			return
		}
		deriv, _ := result.FilterMetric("deriv__" + filter)
		writeOK(w, map[string]interface{}{
			"jobid":   jobid,
			"metric":  series,
			"derived": deriv,
		})
		return
	}
	writeOK(w, result)
}

// handleTracePlot serves a single metric's (ts, value) series as a bare
// array, the shape a plotting widget consumes directly.
func (s *Server) handleTracePlot(w http.ResponseWriter, r *http.Request) {
	jobid := r.URL.Query().Get("job")
	filter := r.URL.Query().Get("filter")
	if jobid == "" || filter == "" {
		writeFail(w, "trace/plot", errMissingParam("job and filter"))
		return
	}
	tr, ok := s.traceMgr.Get(jobid)
	if !ok {
		writeFail(w, "trace/plot", errUnknownJob(jobid))
		return
	}

	series, ok := tr.Export().FilterMetric(filter)
	if !ok {
		writeFail(w, "trace/plot", errUnknownJob(filter))
		return
	}
	writeOK(w, series.Points)
}
