package counter

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// ParseLabels splits a "basename{k=\"v\",k2=\"v2\"}" name into its label
// set. Names without a '{' have no labels.
func ParseLabels(name string) (map[string]string, error) {
	open := strings.IndexByte(name, '{')
	if open < 0 {
		return nil, nil
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	inner := name[open+1 : len(name)-1]
	labels := make(map[string]string)
	if inner == "" {
		return labels, nil
	}
	for _, pair := range strings.Split(inner, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("counter: malformed label pair %q in %q", pair, name)
		}
		labels[kv[0]] = strings.Trim(kv[1], `"`)
	}
	return labels, nil
}

// MetricFamily builds a client_model MetricFamily out of one exporter
// group (a basename plus all of its label variants), so the resulting
// proto can be handed to expfmt's OpenMetrics encoder to produce the
// "# HELP / # TYPE / samples / # EOF" exposition.
func MetricFamily(basename, doc string, kind Kind, members map[string]Snapshot) (*dto.MetricFamily, error) {
	mf := &dto.MetricFamily{
		Name: proto.String(basename),
		Help: proto.String(doc),
	}

	switch kind {
	case KindCounter:
		mf.Type = dto.MetricType_COUNTER.Enum()
	case KindGauge:
		mf.Type = dto.MetricType_GAUGE.Enum()
	default:
		return nil, fmt.Errorf("counter: unknown kind for family %s", basename)
	}

	for name, snap := range members {
		labels, err := ParseLabels(name)
		if err != nil {
			return nil, err
		}
		metric := &dto.Metric{}
		for k, v := range labels {
			metric.Label = append(metric.Label, &dto.LabelPair{
				Name:  proto.String(k),
				Value: proto.String(v),
			})
		}

		value := snap.Value.CleanNaN()
		switch kind {
		case KindCounter:
			metric.Counter = &dto.Counter{Value: proto.Float64(value.Value)}
		case KindGauge:
			metric.Gauge = &dto.Gauge{Value: proto.Float64(value.Scalar())}
		}
		mf.Metric = append(mf.Metric, metric)
	}

	return mf, nil
}

// WriteText serializes a sequence of families as OpenMetrics text,
// terminated by the "# EOF" line the format requires.
func WriteText(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeOpenMetrics))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("counter: encode family %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("counter: close encoder: %w", err)
		}
	}
	return nil
}
