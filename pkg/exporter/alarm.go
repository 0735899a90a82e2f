package exporter

import (
	"fmt"
)

// CompareOp is one of the three comparators an alarm can bind.
type CompareOp string

const (
	OpEqual   CompareOp = "="
	OpLess    CompareOp = "<"
	OpGreater CompareOp = ">"
)

// Alarm binds a comparator and threshold to a live counter handle. The
// handle is a shared *Entry, never a name re-looked-up on each check, so
// an alarm keeps working even if nothing else references the metric
// after the alarm was added.
type Alarm struct {
	Name      string
	Metric    string
	Op        CompareOp
	Threshold float64
	entry     *Entry
}

// Trigger is the result of one alarm evaluation.
type Trigger struct {
	Name    string
	Metric  string
	Current float64
	Active  bool
}

// AddAlarm binds name to metric's live handle. The metric must already
// exist.
func (x *Exporter) AddAlarm(name, metric string, op CompareOp, threshold float64) error {
	entry, err := x.lookup(metric)
	if err != nil {
		return fmt.Errorf("add alarm %s: %w", name, err)
	}

	x.alarmMu.Lock()
	defer x.alarmMu.Unlock()
	x.alarms[name] = &Alarm{Name: name, Metric: metric, Op: op, Threshold: threshold, entry: entry}
	return nil
}

// DeleteAlarm removes an alarm by name. Deleting an unknown alarm is a
// no-op.
func (x *Exporter) DeleteAlarm(name string) {
	x.alarmMu.Lock()
	defer x.alarmMu.Unlock()
	delete(x.alarms, name)
}

// ListAlarms returns every registered alarm's definition.
func (x *Exporter) ListAlarms() []Alarm {
	x.alarmMu.RLock()
	defer x.alarmMu.RUnlock()
	out := make([]Alarm, 0, len(x.alarms))
	for _, a := range x.alarms {
		out = append(out, *a)
	}
	return out
}

// CheckAlarms walks the registry and returns a Trigger for every alarm
// whose comparator currently holds.
func (x *Exporter) CheckAlarms() []Trigger {
	x.alarmMu.RLock()
	defer x.alarmMu.RUnlock()

	var triggers []Trigger
	for _, a := range x.alarms {
		current := a.entry.Get().Scalar()
		active := false
		switch a.Op {
		case OpEqual:
			active = current == a.Threshold
		case OpLess:
			active = current < a.Threshold
		case OpGreater:
			active = current > a.Threshold
		}
		if active {
			triggers = append(triggers, Trigger{
				Name:    a.Name,
				Metric:  a.Metric,
				Current: current,
				Active:  true,
			})
		}
	}
	return triggers
}
