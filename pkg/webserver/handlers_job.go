package webserver

import "net/http"

// handleJob serves one job's profile as JSON, or every tracked job's
// profile when no ?job= query is given.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobid := r.URL.Query().Get("job")
	if jobid == "" {
		writeOK(w, s.factory.Profiles(true))
		return
	}
	p, err := s.factory.ProfileOf(jobid, true)
	if err != nil {
		writeFail(w, "job", err)
		return
	}
	writeOK(w, p)
}

// handleJobList serves every tracked job's descriptor.
func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.factory.ListJobs())
}
