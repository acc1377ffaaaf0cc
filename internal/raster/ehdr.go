package raster

import (
	"fmt"
	"os"
	"strings"
)

// EHdr describes a flat binary grid with an ESRI .hdr sidecar, which GDAL
// opens as a georeferenced raster.
type EHdr struct {
	Rows      int
	Cols      int
	Bits      int
	BigEndian bool
	Signed    bool
	ULXMap    float64 // center of the upper-left pixel
	ULYMap    float64
	XDim      float64
	YDim      float64
	NoData    float64
}

// String renders the header in ESRI BIL format.
func (h EHdr) String() string {
	order := "I"
	if h.BigEndian {
		order = "M"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "byteorder %s\n", order)
	b.WriteString("layout bil\n")
	b.WriteString("nbands 1\n")
	fmt.Fprintf(&b, "nbits %d\n", h.Bits)
	fmt.Fprintf(&b, "ncols %d\n", h.Cols)
	fmt.Fprintf(&b, "nrows %d\n", h.Rows)
	if h.Signed {
		b.WriteString("pixeltype signedint\n")
	}
	fmt.Fprintf(&b, "ulxmap %.15g\n", h.ULXMap)
	fmt.Fprintf(&b, "ulymap %.15g\n", h.ULYMap)
	fmt.Fprintf(&b, "xdim %.15g\n", h.XDim)
	fmt.Fprintf(&b, "ydim %.15g\n", h.YDim)
	fmt.Fprintf(&b, "nodata %g\n", h.NoData)
	return b.String()
}

// WriteFor writes the header next to a .bil/.dat payload. GDAL expects the
// sidecar to share the payload's base name with a .hdr extension.
func (h EHdr) WriteFor(payload string) (string, error) {
	base := strings.TrimSuffix(payload, extOf(payload))
	path := base + ".hdr"
	if err := os.WriteFile(path, []byte(h.String()), 0o644); err != nil {
		return "", fmt.Errorf("write header %s: %w", path, err)
	}
	return path, nil
}

func extOf(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 || strings.ContainsRune(p[i:], '/') {
		return ""
	}
	return p[i:]
}
