package raster

// Conversion is an affine per-pixel transform, applied as v*Scale + Offset.
type Conversion struct {
	Scale  float64
	Offset float64
}

// Identity leaves values unchanged.
var Identity = Conversion{Scale: 1}

// Common conversions between metric and english units.
var (
	MillimetersToInches = Conversion{Scale: 0.0393701}
	MetersToInches      = Conversion{Scale: 39.3701}
	InchesToMillimeters = Conversion{Scale: 25.4}
	FeetToMeters        = Conversion{Scale: 0.3048}
	CelsiusToFahrenheit = Conversion{Scale: 1.8, Offset: 32}
	MetersPerSecToMPH   = Conversion{Scale: 2.23694}
)

// Apply converts a single value.
func (c Conversion) Apply(v float64) float64 {
	return v*c.Scale + c.Offset
}

// Inverse returns the conversion that undoes c. Scale must be non-zero.
func (c Conversion) Inverse() Conversion {
	return Conversion{Scale: 1 / c.Scale, Offset: -c.Offset / c.Scale}
}

// IsIdentity reports whether c leaves values unchanged.
func (c Conversion) IsIdentity() bool {
	return c.Scale == 1 && c.Offset == 0
}

// Convert returns a new grid with c applied to every valid pixel.
func (g *Grid) Convert(c Conversion) *Grid {
	out := g.Clone()
	for i, v := range out.Data {
		if g.IsNoData(v) {
			out.Data[i] = g.NoData
			continue
		}
		out.Data[i] = c.Apply(v)
	}
	return out
}

// WithNoData returns a new grid whose nodata sentinel is v, rewriting every
// nodata pixel.
func (g *Grid) WithNoData(v float64) *Grid {
	out := g.Clone()
	out.NoData = v
	for i, x := range g.Data {
		if g.IsNoData(x) {
			out.Data[i] = v
		}
	}
	return out
}

// RemapAbove returns a new grid where values strictly greater than ceiling
// become nodata. MODIS-family products use this to drop cloud and fill codes.
func (g *Grid) RemapAbove(ceiling float64) *Grid {
	out := g.Clone()
	for i, v := range out.Data {
		if !g.IsNoData(v) && v > ceiling {
			out.Data[i] = g.NoData
		}
	}
	return out
}

// VegetationCorrect derives viewable snow fraction corrected for canopy:
// snow / (100 - veg) * 100, clamped to 100. A full canopy (veg == 100) is
// treated as 99 so the division stays finite.
func VegetationCorrect(snow, veg *Grid) (*Grid, error) {
	if !snow.SameShape(veg) {
		return nil, ErrShapeMismatch
	}
	out := snow.Clone()
	for i, s := range snow.Data {
		v := veg.Data[i]
		if snow.IsNoData(s) || veg.IsNoData(v) {
			out.Data[i] = snow.NoData
			continue
		}
		if v >= 100 {
			v = 99
		}
		corrected := s / (100 - v) * 100
		if corrected > 100 {
			corrected = 100
		}
		out.Data[i] = corrected
	}
	return out, nil
}
