package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := &Profile{
		Desc: job.Desc{JobID: "42", Command: "mpirun ./app"},
		Counters: []counter.Snapshot{
			{Name: "hits", Doc: "", Value: counter.NewCounter(0, 3)},
		},
	}
	require.NoError(t, s.Save(p))

	loaded, err := s.Load("42")
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.Desc.JobID)
	require.Len(t, loaded.Counters, 1)
	assert.Equal(t, 3.0, loaded.Counters[0].Value.Value)
}

func TestPerCommandGroupsJobs(t *testing.T) {
	s := newTestStore(t)
	cmd := "mpirun ./app"
	require.NoError(t, s.Save(&Profile{Desc: job.Desc{JobID: "1", Command: cmd}}))
	require.NoError(t, s.Save(&Profile{Desc: job.Desc{JobID: "2", Command: cmd}}))

	grouped, err := s.PerCommand()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, grouped[CommandHash(cmd)])
}

func TestLoadMissingProfileIsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("ghost")
	assert.Error(t, err)
}

func TestGenerateSurrogateModelWithoutCommandIsError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Profile{Desc: job.Desc{JobID: "1", Command: "x"}}))
	_, err := s.GenerateSurrogateModel(context.Background(), CommandHash("x"), "")
	assert.Error(t, err)
}
