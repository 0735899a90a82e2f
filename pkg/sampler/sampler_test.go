package sampler

import (
	"context"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleReturnsMemoryMetrics(t *testing.T) {
	snaps, err := Sample(context.Background())
	require.NoError(t, err)

	var sawMemTotal bool
	for _, s := range snaps {
		if s.Name == "mem_total_bytes" {
			sawMemTotal = true
			assert.True(t, s.Value.HasData())
		}
	}
	assert.True(t, sawMemTotal, "expected a mem_total_bytes gauge in the sample")
}

func TestTemperatureSnapshots(t *testing.T) {
	snaps := temperatureSnapshots([]host.TemperatureStat{
		{SensorKey: "coretemp_core_0", Temperature: 95, Critical: 90},
		{SensorKey: "acpitz", Temperature: 40},
		{SensorKey: "", Temperature: 1},
	})

	byName := make(map[string]float64, len(snaps))
	for _, s := range snaps {
		byName[s.Name] = s.Value.Scalar()
	}

	assert.Equal(t, 95.0, byName[`component_temperature_celsius{component="coretemp_core_0"}`])
	assert.Equal(t, 90.0, byName[`component_critical_temperature_celsius{component="coretemp_core_0"}`])
	assert.Equal(t, 1.0, byName[`component_critical_temperature{component="coretemp_core_0"}`])

	assert.Equal(t, 40.0, byName[`component_temperature_celsius{component="acpitz"}`])
	assert.NotContains(t, byName, `component_critical_temperature_celsius{component="acpitz"}`)

	assert.Len(t, snaps, 4, "a sensor without a key is skipped")
}
