// Package sampler reads host-level metrics (cpu, memory, disks,
// network interfaces) via gopsutil, the same host-metrics library the
// retrieved OpenTelemetry collector components use for their scrapers.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/cuemby/metricproxy/pkg/counter"
)

// Sample turns one host-metrics pass into counter snapshots, scoped as
// the sentinel system scrape source. Values are Gauges (single
// instantaneous observation) except the per-interface network byte
// totals, which are Counters; per-interface and per-disk metrics carry
// a label so they group under one basename.
func Sample(ctx context.Context) ([]counter.Snapshot, error) {
	var out []counter.Snapshot

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("sampler: cpu percent: %w", err)
	}
	if len(cpuPercents) > 0 {
		out = append(out, gaugeSnapshot("cpu_percent", "overall CPU utilization percentage", cpuPercents[0]))
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sampler: virtual memory: %w", err)
	}
	out = append(out,
		gaugeSnapshot("mem_total_bytes", "total physical memory", float64(vm.Total)),
		gaugeSnapshot("mem_used_bytes", "used physical memory", float64(vm.Used)),
		gaugeSnapshot("mem_available_bytes", "available physical memory", float64(vm.Available)),
	)

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("sampler: disk partitions: %w", err)
	}
	for _, part := range partitions {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out,
			gaugeSnapshot(fmt.Sprintf(`disk_used_bytes{mount=%q}`, part.Mountpoint), "used disk bytes per mount", float64(usage.Used)),
			gaugeSnapshot(fmt.Sprintf(`disk_total_bytes{mount=%q}`, part.Mountpoint), "total disk bytes per mount", float64(usage.Total)),
		)
	}

	ioCounters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("sampler: net io counters: %w", err)
	}
	for _, nic := range ioCounters {
		out = append(out,
			counterSnapshot(fmt.Sprintf(`net_bytes_sent{iface=%q}`, nic.Name), "cumulative bytes sent per interface", float64(nic.BytesSent)),
			counterSnapshot(fmt.Sprintf(`net_bytes_recv{iface=%q}`, nic.Name), "cumulative bytes received per interface", float64(nic.BytesRecv)),
		)
	}

	// Not every host exposes thermal sensors; their absence is not a
	// sampling failure.
	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		out = append(out, temperatureSnapshots(temps)...)
	}

	return out, nil
}

// temperatureSnapshots maps one sensor pass onto gauges: the current
// reading per component, plus the critical threshold and a 0/1
// critical indicator for sensors that report one.
func temperatureSnapshots(temps []host.TemperatureStat) []counter.Snapshot {
	var out []counter.Snapshot
	for _, t := range temps {
		if t.SensorKey == "" {
			continue
		}
		out = append(out, gaugeSnapshot(
			fmt.Sprintf(`component_temperature_celsius{component=%q}`, t.SensorKey),
			"current temperature in celsius for the given component", t.Temperature))

		if t.Critical > 0 {
			out = append(out, gaugeSnapshot(
				fmt.Sprintf(`component_critical_temperature_celsius{component=%q}`, t.SensorKey),
				"critical temperature in celsius for the given component", t.Critical))

			crit := 0.0
			if t.Temperature >= t.Critical {
				crit = 1
			}
			out = append(out, gaugeSnapshot(
				fmt.Sprintf(`component_critical_temperature{component=%q}`, t.SensorKey),
				"whether the component reached its critical temperature", crit))
		}
	}
	return out
}

func gaugeSnapshot(name, doc string, value float64) counter.Snapshot {
	return counter.Snapshot{Name: name, Doc: doc, Value: counter.NewGauge(value)}
}

func counterSnapshot(name, doc string, value float64) counter.Snapshot {
	return counter.Snapshot{Name: name, Doc: doc, Value: counter.NewCounter(time.Now().UnixMicro(), value)}
}
