package exporter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/metricproxy/pkg/counter"
)

func snap(name string, v counter.CounterType) counter.Snapshot {
	return counter.Snapshot{Name: name, Doc: "doc for " + name, Value: v}
}

func TestPushIdempotent(t *testing.T) {
	x := New()
	require.NoError(t, x.Push(snap("hits", counter.NewCounter(0, 1))))
	require.NoError(t, x.Push(snap("hits", counter.NewCounter(0, 99))))

	entry, err := x.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, 1.0, entry.Get().Value)
}

func TestPushRejectsUnbalancedBraces(t *testing.T) {
	x := New()
	err := x.Push(snap(`hits{k="v"`, counter.NewCounter(0, 1)))
	assert.Error(t, err)
}

func TestAccumulateMissingIsSoftError(t *testing.T) {
	x := New()
	err := x.Accumulate(snap("hits", counter.NewCounter(0, 1)), true)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestAccumulateMerge(t *testing.T) {
	x := New()
	require.NoError(t, x.Push(snap("hits", counter.NewCounter(0, 3))))
	require.NoError(t, x.Accumulate(snap("hits", counter.NewCounter(0, 4)), true))

	entry, err := x.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, 7.0, entry.Get().Value)
}

func TestSetOverwrites(t *testing.T) {
	x := New()
	require.NoError(t, x.Push(snap("g", counter.NewGauge(1))))
	require.NoError(t, x.Set(snap("g", counter.NewGauge(99))))

	entry, err := x.Get("g")
	require.NoError(t, err)
	assert.Equal(t, 99.0, entry.Get().Scalar())
}

func TestProfileFullFalseSuppressesEmpty(t *testing.T) {
	x := New()
	require.NoError(t, x.Push(snap("zero", counter.NewCounter(0, 0))))
	require.NoError(t, x.Push(snap("nonzero", counter.NewCounter(0, 1))))

	full := x.Profile(true)
	assert.Len(t, full, 2)

	sparse := x.Profile(false)
	assert.Len(t, sparse, 1)
	assert.Equal(t, "nonzero", sparse[0].Name)
}

func TestSerializeProducesEOF(t *testing.T) {
	x := New()
	require.NoError(t, x.Push(snap("cnt", counter.NewCounter(0, 7))))

	out, err := x.Serialize()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimRight(string(out), "\n"), "# EOF"))
}

func TestAlarmLifecycle(t *testing.T) {
	x := New()
	require.NoError(t, x.Push(snap("m", counter.NewGauge(5))))
	require.NoError(t, x.AddAlarm("hi", "m", OpGreater, 10))

	assert.Empty(t, x.CheckAlarms())

	require.NoError(t, x.Set(snap("m", counter.NewGauge(20))))
	triggers := x.CheckAlarms()
	require.Len(t, triggers, 1)
	assert.Equal(t, "hi", triggers[0].Name)
	assert.Equal(t, 20.0, triggers[0].Current)

	x.DeleteAlarm("hi")
	assert.Empty(t, x.CheckAlarms())
}
