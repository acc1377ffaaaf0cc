package raster

// TranslateOptions control format conversion of a single dataset.
type TranslateOptions struct {
	// SRS assigns a spatial reference without reprojecting, e.g. "EPSG:4326".
	SRS string
	// NoData assigns the nodata value when non-nil.
	NoData *float64
	// Bands selects 1-based bands; empty keeps all.
	Bands []int
}

// WarpOptions control reprojection, mosaicking and clipping.
type WarpOptions struct {
	// DstSRS is the target spatial reference, e.g. "EPSG:5070".
	DstSRS string
	// SrcSRS overrides the source spatial reference when set.
	SrcSRS string
	// SrcNoData is the nodata value of the inputs when non-nil.
	SrcNoData *float64
	// DstNoData fills pixels outside the data or the cutline.
	DstNoData float64
	// Cutline is a vector file whose features clip the output.
	Cutline string
	// CropToCutline shrinks the output extent to the cutline.
	CropToCutline bool
}

// Engine performs raster and vector file operations. Implementations wrap a
// geospatial library; the pipeline only depends on this contract.
type Engine interface {
	// Translate converts src into a GeoTIFF at dst.
	Translate(src, dst string, opts TranslateOptions) error
	// Warp reprojects and mosaics srcs into a GeoTIFF at dst.
	Warp(srcs []string, dst string, opts WarpOptions) error
	// Read loads the first band of path.
	Read(path string) (*Grid, error)
	// Write stores g as a single-band GeoTIFF.
	Write(path string, g *Grid) error
	// BandCount returns the number of raster bands in path.
	BandCount(path string) (int, error)
	// BandMetadata returns a metadata item of a 1-based band.
	BandMetadata(path string, band int, key string) (string, error)
	// VectorToGeoJSON converts a vector dataset to GeoJSON in the given EPSG code.
	VectorToGeoJSON(src, dst string, epsg int) error
}

// Float returns a pointer to v, for optional nodata fields.
func Float(v float64) *float64 {
	return &v
}
