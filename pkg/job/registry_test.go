package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/metricproxy/pkg/exporter"
)

func TestResolveRelaxRoundTrip(t *testing.T) {
	f := NewFactory("node1", true, nil)
	var resolvedCount, relaxedCount int
	f.SetHooks(
		func(desc Desc, exp *exporter.Exporter) { resolvedCount++ },
		func(desc Desc, exp *exporter.Exporter) { relaxedCount++ },
	)

	desc := Desc{JobID: "42"}
	exp1, err := f.ResolveJob(desc, true)
	require.NoError(t, err)
	require.NotNil(t, exp1)

	exp2, err := f.ResolveJob(desc, false)
	require.NoError(t, err)
	assert.Same(t, exp1, exp2)
	assert.Equal(t, 1, resolvedCount)

	require.NoError(t, f.RelaxJob(desc))
	_, ok := f.ResolveByID("42")
	assert.True(t, ok, "still present after first relax (refcount 1)")

	require.NoError(t, f.RelaxJob(desc))
	_, ok = f.ResolveByID("42")
	assert.False(t, ok, "gone after second relax (refcount 0)")
	assert.Equal(t, 1, relaxedCount)
}

func TestResolveJobEmptyJobIDIsNoop(t *testing.T) {
	f := NewFactory("node1", true, nil)
	exp, err := f.ResolveJob(Desc{}, true)
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestSentinelsArePinned(t *testing.T) {
	f := NewFactory("node1", true, nil)
	assert.NotNil(t, f.Main())
	assert.NotNil(t, f.Node())

	err := f.RelaxJob(Desc{JobID: "main"})
	assert.NoError(t, err)
	assert.NotNil(t, f.Main(), "sentinel survives relax attempts")
}

func TestRelaxUnknownJobIsError(t *testing.T) {
	f := NewFactory("node1", true, nil)
	err := f.RelaxJob(Desc{JobID: "ghost"})
	assert.Error(t, err)
}

func TestLocalJobExportersFiltersNonLocal(t *testing.T) {
	f := NewFactory("node1", true, nil)
	_, err := f.ResolveJob(Desc{JobID: "local1"}, true)
	require.NoError(t, err)
	_, err = f.ResolveJob(Desc{JobID: "remote1"}, false)
	require.NoError(t, err)

	locals := f.LocalJobExporters()
	assert.Contains(t, locals, "local1")
	assert.NotContains(t, locals, "remote1")
	assert.NotContains(t, locals, "main")
}
