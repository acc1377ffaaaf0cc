// Package tiles resolves MODIS sinusoidal 10-degree tiles that intersect a
// geographic bounding box.
package tiles

import (
	"bufio"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Sentinel values marking a tile outside the sinusoidal projection's valid area.
const (
	NoLon = -999.0
	NoLat = -99.0
)

//go:embed sn_bound_10deg.txt
var boundsTable string

// Tile is one cell of the global 36x18 sinusoidal grid. Bounds follow the
// table's own column order: lon_min, lon_max, lat_min, lat_max.
type Tile struct {
	Row    int
	Col    int
	LonMin float64
	LonMax float64
	LatMin float64
	LatMax float64
}

// ID returns the tile identifier, e.g. "h08v05".
func (t Tile) ID() string {
	return fmt.Sprintf("h%02dv%02d", t.Col, t.Row)
}

// Valid reports whether the tile has a defined extent.
func (t Tile) Valid() bool {
	return t.LonMin != NoLon && t.LatMin != NoLat
}

// Intersects reports whether the tile extent overlaps the bbox
// [lon_min, lat_min, lon_max, lat_max]. Touching edges count as overlap.
func (t Tile) Intersects(bbox []float64) bool {
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	return t.LonMin <= east && west <= t.LonMax &&
		t.LatMin <= north && south <= t.LatMax
}

var (
	loadOnce sync.Once
	table    []Tile
	loadErr  error
)

// All returns every row of the embedded table, sentinel rows included.
func All() ([]Tile, error) {
	loadOnce.Do(func() {
		table, loadErr = parse(boundsTable)
	})
	return table, loadErr
}

// Find returns the ids of all valid tiles intersecting bbox, in table order.
// bbox is [lon_min, lat_min, lon_max, lat_max] in geographic coordinates.
// A nil or malformed bbox yields nil.
func Find(bbox []float64) []string {
	if len(bbox) < 4 {
		return nil
	}
	all, err := All()
	if err != nil {
		return nil
	}

	var ids []string
	for _, t := range all {
		if !t.Valid() {
			continue
		}
		if t.Intersects(bbox) {
			ids = append(ids, t.ID())
		}
	}
	return ids
}

func parse(data string) ([]Tile, error) {
	var out []Tile
	sc := bufio.NewScanner(strings.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) != 6 {
			continue
		}
		row, err := strconv.Atoi(fields[0])
		if err != nil {
			// header line
			continue
		}
		col, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid column: %w", line, err)
		}
		var v [4]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(fields[i+2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid bound %q: %w", line, fields[i+2], err)
			}
		}
		out = append(out, Tile{Row: row, Col: col, LonMin: v[0], LonMax: v[1], LatMin: v[2], LatMax: v[3]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
