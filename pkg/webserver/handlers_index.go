package webserver

import "net/http"

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(mustAsset("index.html"))
}

func (s *Server) handleProxyMarker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(mustAsset("is_admire_proxy.html"))
}

// handleMetrics serves the text-format exposition. A ?job=ID
// query scopes the output to one job's exporter instead of "main".
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	jobid := r.URL.Query().Get("job")

	var exp interface {
		Serialize() ([]byte, error)
	}
	if jobid == "" {
		exp = s.factory.Main()
	} else {
		e, ok := s.factory.ResolveByID(jobid)
		if !ok {
			writeFail(w, "metrics", errUnknownJob(jobid))
			return
		}
		exp = e
	}

	body, err := exp.Serialize()
	if err != nil {
		writeFail(w, "metrics", err)
		return
	}
	w.Header().Set("Content-Type", "application/openmetrics-text; version=1.0.0; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
