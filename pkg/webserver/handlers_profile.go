package webserver

import (
	"net/http"

	"github.com/cuemby/metricproxy/pkg/profile"
)

// handleProfilesAll serves every persisted profile indexed by jobid.
func (s *Server) handleProfilesAll(w http.ResponseWriter, r *http.Request) {
	jobids := s.profileStore.KnownJobIDs()
	out := make([]*profile.Profile, 0, len(jobids))
	for _, jobid := range jobids {
		p, err := s.profileStore.Load(jobid)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	writeOK(w, out)
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	jobid := r.URL.Query().Get("jobid")
	if jobid == "" {
		writeFail(w, "profiles/get", errMissingParam("jobid"))
		return
	}
	p, err := s.profileStore.Load(jobid)
	if err != nil {
		writeFail(w, "profiles/get", err)
		return
	}
	writeOK(w, p)
}

// handleProfilesPerCommand groups every persisted jobid by its
// command-hash, for surrogate-model grouping.
func (s *Server) handleProfilesPerCommand(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.profileStore.PerCommand()
	if err != nil {
		writeFail(w, "profiles/percmd", err)
		return
	}
	writeOK(w, grouped)
}

// handleProfilesExtrap invokes the external surrogate-model helper for
// one jobid's command group and streams its JSONL output back.
func (s *Server) handleProfilesExtrap(w http.ResponseWriter, r *http.Request) {
	jobid := r.URL.Query().Get("jobid")
	if jobid == "" {
		writeFail(w, "profiles/extrap", errMissingParam("jobid"))
		return
	}
	p, err := s.profileStore.Load(jobid)
	if err != nil {
		writeFail(w, "profiles/extrap", err)
		return
	}

	hash := profile.CommandHash(p.Desc.Command)
	out, err := s.profileStore.GenerateSurrogateModel(r.Context(), hash, s.ftioCommand)
	if err != nil {
		writeFail(w, "profiles/extrap", err)
		return
	}
	w.Header().Set("Content-Type", "application/jsonl")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
