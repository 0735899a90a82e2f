package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasename(t *testing.T) {
	assert.Equal(t, "a", Basename(`a{k="v"}`))
	assert.Equal(t, "justname", Basename("justname"))
}

func TestValidateNameUnbalanced(t *testing.T) {
	assert.Error(t, ValidateName(`a{k="v"`))
	assert.NoError(t, ValidateName(`a{k="v"}`))
	assert.NoError(t, ValidateName("plain"))
}

func TestMergeCounter(t *testing.T) {
	a := NewCounter(1000, 3)
	b := NewCounter(2000, 4)
	out, err := Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, float64(7), out.Value)
	assert.EqualValues(t, 1500, out.TS)
}

func TestMergeGauge(t *testing.T) {
	a := CounterType{Kind: KindGauge, Min: 1, Max: 5, Hits: 2, Total: 6}
	b := CounterType{Kind: KindGauge, Min: 0, Max: 9, Hits: 3, Total: 12}
	out, err := Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Min)
	assert.Equal(t, 9.0, out.Max)
	assert.EqualValues(t, 5, out.Hits)
	assert.Equal(t, 18.0, out.Total)
}

func TestMergeVariantMismatch(t *testing.T) {
	_, err := Merge(NewCounter(0, 1), NewGauge(1))
	assert.ErrorIs(t, err, ErrVariantMismatch)
}

func TestSetCounterAccumulates(t *testing.T) {
	existing := NewCounter(0, 10)
	incoming := NewCounter(100, 5)
	out, err := Set(existing, incoming)
	require.NoError(t, err)
	assert.Equal(t, 15.0, out.Value)
}

func TestSetGaugeReplaces(t *testing.T) {
	existing := CounterType{Kind: KindGauge, Min: 1, Max: 100, Hits: 50, Total: 500}
	incoming := NewGauge(42)
	out, err := Set(existing, incoming)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out.Min)
	assert.Equal(t, 42.0, out.Max)
	assert.Equal(t, 42.0, out.Total)
	assert.EqualValues(t, 1, out.Hits)
}

func TestDeltaThenMergeReproducesCounter(t *testing.T) {
	earlier := NewCounter(1000, 3)
	later := NewCounter(3000, 8)

	d, err := Delta(later, earlier)
	require.NoError(t, err)
	assert.Equal(t, 5.0, d.Value)

	out, err := Merge(d, earlier)
	require.NoError(t, err)
	assert.Equal(t, later.Value, out.Value)
}

func TestHasData(t *testing.T) {
	assert.False(t, NewCounter(0, 0).HasData())
	assert.True(t, NewCounter(0, 1).HasData())
	assert.False(t, CounterType{Kind: KindGauge}.HasData())
	assert.True(t, NewGauge(0).HasData())
}

func TestScalar(t *testing.T) {
	assert.Equal(t, 7.0, NewCounter(0, 7).Scalar())
	g := CounterType{Kind: KindGauge, Hits: 2, Total: 10}
	assert.Equal(t, 5.0, g.Scalar())
	assert.Equal(t, 0.0, CounterType{Kind: KindGauge}.Scalar())
}

func TestCleanNaN(t *testing.T) {
	c := NewCounter(0, 0)
	c.Value = nan()
	assert.Equal(t, 0.0, c.CleanNaN().Value)
}

func nan() float64 {
	var zero float64
	return zero / zero
}
