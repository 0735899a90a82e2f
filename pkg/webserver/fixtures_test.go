package webserver

import (
	"time"

	"github.com/cuemby/metricproxy/pkg/counter"
)

func snapshotFixture(name string, value float64) counter.Snapshot {
	return counter.Snapshot{Name: name, Doc: "test counter", Value: counter.NewCounter(time.Now().UnixMicro(), value)}
}
