package scrape

import (
	"fmt"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/cuemby/metricproxy/pkg/counter"
)

// ParsePrometheusText decodes a Prometheus text exposition body into
// snapshots. Counter families become Counter{ts=now, value}; Gauge
// families become Gauge{min=0,max=0,hits=1,total=value}; histograms
// and summaries are ignored.
func ParsePrometheusText(body string) ([]counter.Snapshot, error) {
	parser := expfmt.NewTextParser(model.LegacyValidation)
	families, err := parser.TextToMetricFamilies(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("scrape: parse prometheus text: %w", err)
	}

	now := time.Now().UnixMicro()
	var out []counter.Snapshot
	for _, mf := range families {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			for _, m := range mf.Metric {
				out = append(out, counter.Snapshot{
					Name:  labeledName(mf.GetName(), m),
					Doc:   mf.GetHelp(),
					Value: counter.NewCounter(now, m.GetCounter().GetValue()),
				})
			}
		case dto.MetricType_GAUGE:
			for _, m := range mf.Metric {
				out = append(out, counter.Snapshot{
					Name:  labeledName(mf.GetName(), m),
					Doc:   mf.GetHelp(),
					Value: counter.CounterType{Kind: counter.KindGauge, Hits: 1, Total: m.GetGauge().GetValue()},
				})
			}
		default:
			// Histograms and summaries are ignored.
		}
	}
	return out, nil
}

func labeledName(basename string, m *dto.Metric) string {
	if len(m.Label) == 0 {
		return basename
	}
	var b strings.Builder
	b.WriteString(basename)
	b.WriteByte('{')
	for i, lp := range m.Label {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", lp.GetName(), lp.GetValue())
	}
	b.WriteByte('}')
	return b.String()
}
