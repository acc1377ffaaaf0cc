package product

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/raster"
	"github.com/robert-malhotra/shread/pkg/geojson"
)

// SRPTProduct is the NOHRSC daily snow observation report, published as KMZ
// point placemarks. Reported values are inches (depth, SWE) and feet
// (elevation).
type SRPTProduct struct{}

func (p *SRPTProduct) Descriptor() Descriptor {
	return Descriptor{
		Name:      SRPT,
		Source:    "NOHRSC",
		Variables: []string{"snowdepth", "swe", "elevation"},
		NoData:    -9999,
		Conversions: map[ConversionKey]raster.Conversion{
			{"snowdepth", config.Metric}: raster.InchesToMillimeters,
			{"swe", config.Metric}:       raster.InchesToMillimeters,
			{"elevation", config.Metric}: raster.FeetToMeters,
		},
	}
}

func (p *SRPTProduct) Jobs(dates []time.Time) []Job {
	return perDate(SRPT, dates)
}

func srptName(date time.Time) string {
	return "snow_reports_" + date.Format("20060102") + ".kmz"
}

// SRPTURL returns <host>/<path>/snow_reports_<YYYYMMDD>.kmz.
func SRPTURL(cfg config.HostConfig, date time.Time) string {
	return remoteURL(cfg.Host, cfg.Path, srptName(date))
}

func (p *SRPTProduct) Fetch(ctx context.Context, env *Env, job Job) error {
	dir, err := env.ensureDir(job)
	if err != nil {
		return err
	}
	return env.Retrieve(ctx, env.Fetch, SRPT, SRPTURL(env.Config.NOHRSC, job.Date),
		filepath.Join(dir, srptName(job.Date)))
}

func (p *SRPTProduct) Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error) {
	dir := env.JobDir(job)
	kmls, err := unzip(filepath.Join(dir, srptName(job.Date)), dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".kml")
	})
	if err != nil {
		return nil, err
	}
	if len(kmls) == 0 {
		return nil, noInput("no kml document in %s", srptName(job.Date))
	}

	f, err := os.Open(kmls[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reports, err := ParseReports(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(kmls[0]), err)
	}

	reports, err = projectPoints(env, dir, reports)
	if err != nil {
		return nil, err
	}
	inside := geojson.NewFeatureCollection()
	for _, feat := range reports.Features {
		ok, err := inBasin(env, feat.Geometry)
		if err != nil {
			return nil, err
		}
		if ok {
			inside.Features = append(inside.Features, feat)
		}
	}
	if len(inside.Features) == 0 {
		return nil, noInput("no snow reports inside basin %s", env.Basin.Name)
	}

	var layers []Layer
	for _, v := range p.Descriptor().Variables {
		fc := geojson.NewFeatureCollection()
		for _, feat := range inside.Features {
			if _, ok := feat.Properties[v]; ok {
				fc.Features = append(fc.Features, feat)
			}
		}
		if len(fc.Features) > 0 {
			layers = append(layers, Layer{Variable: v, Date: job.Date, Points: fc})
		}
	}
	return layers, nil
}

func (p *SRPTProduct) Derive(_ context.Context, env *Env, _ Job, layers []Layer) ([]Layer, error) {
	if len(layers) == 0 {
		return nil, noInput("no snow reports to convert")
	}
	desc := p.Descriptor()
	out := make([]Layer, 0, len(layers))
	for _, l := range layers {
		conv := desc.Conversion(l.Variable, env.Config.UnitSystem)
		fc := geojson.NewFeatureCollection()
		for _, feat := range l.Points.Features {
			props := make(map[string]any, len(feat.Properties))
			for k, v := range feat.Properties {
				if k == l.Variable {
					if f, ok := v.(float64); ok {
						v = conv.Apply(f)
					}
				}
				props[k] = v
			}
			// one measurement per table
			for _, other := range desc.Variables {
				if other != l.Variable {
					delete(props, other)
				}
			}
			fc.Features = append(fc.Features, geojson.NewFeature(feat.Geometry, props))
		}
		d := l
		d.Points = fc
		out = append(out, d)
	}
	return out, nil
}

// projectPoints moves EPSG:4326 reports into the output reference system.
func projectPoints(env *Env, dir string, fc *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	if env.Config.OutputEPSG == 4326 {
		return fc, nil
	}
	src := filepath.Join(dir, "reports_4326.geojson")
	if err := geojson.WriteFile(src, fc); err != nil {
		return nil, err
	}
	dst := filepath.Join(dir, fmt.Sprintf("reports_%d.geojson", env.Config.OutputEPSG))
	if err := env.Engine.VectorToGeoJSON(src, dst, env.Config.OutputEPSG); err != nil {
		return nil, fmt.Errorf("reproject reports: %w", err)
	}
	return geojson.ReadFile(dst)
}

func inBasin(env *Env, g *geojson.Geometry) (bool, error) {
	pt, err := g.Point()
	if err != nil {
		return false, err
	}
	for _, poly := range env.Basin.Polygons.Features {
		ok, err := poly.Geometry.Contains(pt[0], pt[1])
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type kmlPlacemark struct {
	Name         string `xml:"name"`
	ExtendedData struct {
		Data []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:"value"`
		} `xml:"Data"`
		SchemaData []struct {
			SimpleData []struct {
				Name  string `xml:"name,attr"`
				Value string `xml:",chardata"`
			} `xml:"SimpleData"`
		} `xml:"SchemaData"`
	} `xml:"ExtendedData"`
	Point struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
}

// reportFields maps normalized KML field names to report properties.
var reportFields = map[string]string{
	"stationid":           "station_id",
	"station":             "station_id",
	"id":                  "station_id",
	"stationname":         "name",
	"name":                "name",
	"snowdepth":           "snowdepth",
	"depth":               "snowdepth",
	"swe":                 "swe",
	"snowwaterequivalent": "swe",
	"elevation":           "elevation",
	"elev":                "elevation",
}

var numericFields = map[string]bool{"snowdepth": true, "swe": true, "elevation": true}

func normalizeField(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseReports reads every Placemark with a point into a feature collection
// in EPSG:4326. Non-numeric measurements (trace, missing) are omitted.
func ParseReports(r io.Reader) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Placemark" {
			continue
		}
		var pm kmlPlacemark
		if err := dec.DecodeElement(&pm, &se); err != nil {
			return nil, err
		}
		feat, ok := placemarkFeature(pm)
		if ok {
			fc.Features = append(fc.Features, feat)
		}
	}
	return fc, nil
}

func placemarkFeature(pm kmlPlacemark) (*geojson.Feature, bool) {
	coords := strings.Split(strings.TrimSpace(pm.Point.Coordinates), ",")
	if len(coords) < 2 {
		return nil, false
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}

	props := make(map[string]any)
	if pm.Name != "" {
		props["name"] = strings.TrimSpace(pm.Name)
	}
	set := func(field, value string) {
		key, ok := reportFields[normalizeField(field)]
		if !ok {
			return
		}
		value = strings.TrimSpace(value)
		if numericFields[key] {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				props[key] = f
			}
			return
		}
		if value != "" {
			props[key] = value
		}
	}
	for _, d := range pm.ExtendedData.Data {
		set(d.Name, d.Value)
	}
	for _, sd := range pm.ExtendedData.SchemaData {
		for _, d := range sd.SimpleData {
			set(d.Name, d.Value)
		}
	}
	return geojson.NewFeature(geojson.NewPoint(lon, lat), props), true
}
