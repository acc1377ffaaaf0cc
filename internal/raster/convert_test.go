package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T, values ...float64) *Grid {
	t.Helper()
	g := NewGrid(len(values), 1, [6]float64{0, 1, 0, 1, 0, -1}, "", -9999)
	copy(g.Data, values)
	return g
}

func TestConversion_Invertible(t *testing.T) {
	conversions := map[string]Conversion{
		"identity": Identity,
		"mm->in":   MillimetersToInches,
		"m->in":    MetersToInches,
		"in->mm":   InchesToMillimeters,
		"ft->m":    FeetToMeters,
		"C->F":     CelsiusToFahrenheit,
		"m/s->mph": MetersPerSecToMPH,
	}
	inputs := []float64{-40, -1.5, 0, 0.25, 12, 305.7, 1e4}

	for name, c := range conversions {
		t.Run(name, func(t *testing.T) {
			inv := c.Inverse()
			for _, v := range inputs {
				assert.InDelta(t, v, inv.Apply(c.Apply(v)), 1e-9, "round trip of %v", v)
			}
		})
	}
}

func TestConversion_CelsiusToFahrenheit(t *testing.T) {
	assert.InDelta(t, 32.0, CelsiusToFahrenheit.Apply(0), 1e-12)
	assert.InDelta(t, 212.0, CelsiusToFahrenheit.Apply(100), 1e-12)
	assert.InDelta(t, -40.0, CelsiusToFahrenheit.Apply(-40), 1e-12)
}

func TestConvert_PreservesNoData(t *testing.T) {
	g := testGrid(t, 10, -9999, math.NaN(), 254)
	out := g.Convert(MillimetersToInches)

	assert.InDelta(t, 0.393701, out.Data[0], 1e-9)
	assert.Equal(t, -9999.0, out.Data[1])
	assert.Equal(t, -9999.0, out.Data[2])
	assert.InDelta(t, 10.0000054, out.Data[3], 1e-6)
	// input untouched
	assert.Equal(t, 10.0, g.Data[0])
}

func TestConvert_IdentityIsNoop(t *testing.T) {
	g := testGrid(t, 1, 2, 3)
	assert.True(t, Identity.IsIdentity())
	assert.Equal(t, g.Data, g.Convert(Identity).Data)
}

func TestRemapAbove(t *testing.T) {
	g := testGrid(t, 0, 50, 100, 101, 250)
	g.NoData = 250
	out := g.RemapAbove(100)
	assert.Equal(t, []float64{0, 50, 100, 250, 250}, out.Data)
}

func TestWithNoData(t *testing.T) {
	g := testGrid(t, 250, 12, 250, 0)
	g.NoData = 250
	out := g.WithNoData(-1)
	assert.Equal(t, -1.0, out.NoData)
	assert.Equal(t, []float64{-1, 12, -1, 0}, out.Data)
	assert.Equal(t, 250.0, g.Data[0], "source grid is unchanged")
}

func TestVegetationCorrect(t *testing.T) {
	snow := testGrid(t, 40, 40, 90, 10, -9999)
	veg := testGrid(t, 0, 50, 50, 100, 20)

	out, err := VegetationCorrect(snow, veg)
	require.NoError(t, err)

	assert.InDelta(t, 40.0, out.Data[0], 1e-9)
	assert.InDelta(t, 80.0, out.Data[1], 1e-9)
	assert.InDelta(t, 100.0, out.Data[2], 1e-9, "clamped")
	assert.InDelta(t, 100.0, out.Data[3], 1e-9, "full canopy treated as 99")
	assert.Equal(t, -9999.0, out.Data[4])
}

func TestVegetationCorrect_ShapeMismatch(t *testing.T) {
	_, err := VegetationCorrect(testGrid(t, 1, 2), testGrid(t, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
