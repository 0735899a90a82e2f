package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

func TestManagerAllocateFinalize(t *testing.T) {
	m, err := NewManager(t.TempDir(), 1<<20)
	require.NoError(t, err)

	desc := job.Desc{JobID: "7"}
	require.NoError(t, m.Allocate(desc))

	tr, ok := m.Get("7")
	require.True(t, ok)
	_, err = tr.Push([]counter.Snapshot{{Name: "x", Value: counter.NewCounter(0, 1)}}, time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Finalize("7"))

	tr, ok = m.Get("7")
	require.True(t, ok, "a finalized trace stays readable")
	_, err = tr.Push([]counter.Snapshot{{Name: "x", Value: counter.NewCounter(0, 1)}}, time.Second)
	assert.Error(t, err, "but accepts no further pushes")

	result := tr.Export()
	assert.Contains(t, result.Metrics, "x")
	assert.Len(t, m.List(), 1)
}

func TestManagerAllocateEmptyJobIDNoop(t *testing.T) {
	m, err := NewManager(t.TempDir(), 1<<20)
	require.NoError(t, err)
	require.NoError(t, m.Allocate(job.Desc{}))
	assert.Empty(t, m.List())
}
