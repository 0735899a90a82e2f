package webserver

import (
	"net/http"
	"strconv"

	"github.com/cuemby/metricproxy/pkg/exporter"
)

func (s *Server) scopeExporter(r *http.Request) (*exporter.Exporter, bool) {
	jobid := r.URL.Query().Get("job")
	if jobid == "" {
		return s.factory.Main(), true
	}
	return s.factory.ResolveByID(jobid)
}

func (s *Server) handleAlarmAdd(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	metric := q.Get("metric")
	op := q.Get("op")
	thresholdStr := q.Get("value")
	if name == "" || metric == "" || op == "" || thresholdStr == "" {
		writeFail(w, "alarms/add", errMissingParam("name, metric, op, value"))
		return
	}
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		writeFail(w, "alarms/add", err)
		return
	}

	exp, ok := s.scopeExporter(r)
	if !ok {
		writeFail(w, "alarms/add", errUnknownJob(q.Get("job")))
		return
	}
	if err := exp.AddAlarm(name, metric, exporter.CompareOp(op), threshold); err != nil {
		writeFail(w, "alarms/add", err)
		return
	}
	writeSuccess(w, "alarms/add")
}

func (s *Server) handleAlarmDel(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeFail(w, "alarms/del", errMissingParam("name"))
		return
	}
	exp, ok := s.scopeExporter(r)
	if !ok {
		writeFail(w, "alarms/del", errUnknownJob(r.URL.Query().Get("job")))
		return
	}
	exp.DeleteAlarm(name)
	writeSuccess(w, "alarms/del")
}

func (s *Server) handleAlarmList(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.scopeExporter(r)
	if !ok {
		writeFail(w, "alarms/list", errUnknownJob(r.URL.Query().Get("job")))
		return
	}
	writeOK(w, map[string]interface{}{
		"alarms":   exp.ListAlarms(),
		"triggers": exp.CheckAlarms(),
	})
}
