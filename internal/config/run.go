package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-ini/ini"
)

// Unit systems.
const (
	Metric  = "metric"
	English = "english"
)

// Output types and formats.
const (
	OutputPoly    = "poly"
	OutputPoints  = "points"
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
)

// DefaultCMRURL is used when the earthdata section omits cmr_url.
const DefaultCMRURL = "https://cmr.earthdata.nasa.gov/search"

// MissingKeyError reports a required key absent from the INI file.
type MissingKeyError struct {
	Section string
	Key     string
}

func (e *MissingKeyError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("missing section [%s]", e.Section)
	}
	return fmt.Sprintf("missing key %q in section [%s]", e.Key, e.Section)
}

// RunConfig is the typed view of the INI run configuration. It is read-only
// once loaded.
type RunConfig struct {
	WorkDir    string
	OutputDir  string
	ArchiveDir string
	Archive    bool
	OutputEPSG int
	NoData     float64
	UnitSystem string

	BasinName       string
	BasinPolyPath   string
	BasinPointsPath string

	OutputTypes   []string
	OutputFormats []string

	Earthdata EarthdataConfig
	SNODAS    HostConfig
	NOHRSC    HostConfig
	JPL       JPLConfig
	NDFD      NDFDConfig
	SWANN     SWANNConfig
	S3        *S3Config
}

// EarthdataConfig holds NASA Earthdata Login credentials and the CMR endpoint.
type EarthdataConfig struct {
	Username string
	Password string
	CMRURL   string
}

// HostConfig is a remote host plus a base path.
type HostConfig struct {
	Host string
	Path string
}

// JPLConfig holds the digest-authenticated snow server settings.
type JPLConfig struct {
	Host      string
	Username  string
	Password  string
	SSLVerify bool
}

// NDFDConfig lists the forecast parameters to import.
type NDFDConfig struct {
	Host   string
	Path   string
	Params []string
}

// SWANNConfig holds the water-year archive and real-time paths.
type SWANNConfig struct {
	Host         string
	ArchivePath  string
	RealtimePath string
}

// S3Config enables mirroring archived payloads to an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Wants reports whether an output type was requested.
func (c *RunConfig) Wants(outputType string) bool {
	return contains(c.OutputTypes, outputType)
}

// WritesFormat reports whether an output format was requested.
func (c *RunConfig) WritesFormat(format string) bool {
	return contains(c.OutputFormats, format)
}

// SRS returns the output spatial reference as an "EPSG:n" string.
func (c *RunConfig) SRS() string {
	return fmt.Sprintf("EPSG:%d", c.OutputEPSG)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// reader wraps an INI file and accumulates every problem it sees.
type reader struct {
	file *ini.File
	errs []error
}

func (r *reader) section(name string) *ini.Section {
	s, err := r.file.GetSection(name)
	if err != nil {
		r.errs = append(r.errs, &MissingKeyError{Section: name})
		return nil
	}
	return s
}

func (r *reader) required(s *ini.Section, key string) string {
	if s == nil {
		return ""
	}
	if !s.HasKey(key) || strings.TrimSpace(s.Key(key).String()) == "" {
		r.errs = append(r.errs, &MissingKeyError{Section: s.Name(), Key: key})
		return ""
	}
	return strings.TrimSpace(s.Key(key).String())
}

func (r *reader) optional(s *ini.Section, key, def string) string {
	if s == nil || !s.HasKey(key) {
		return def
	}
	v := strings.TrimSpace(s.Key(key).String())
	if v == "" {
		return def
	}
	return v
}

func (r *reader) integer(s *ini.Section, key string) int {
	raw := r.required(s, key)
	if raw == "" {
		return 0
	}
	v, err := s.Key(key).Int()
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("[%s] %s: %q is not an integer", s.Name(), key, raw))
	}
	return v
}

func (r *reader) boolean(s *ini.Section, key string, def bool) bool {
	if s == nil || !s.HasKey(key) {
		return def
	}
	v, err := s.Key(key).Bool()
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("[%s] %s: %q is not a boolean", s.Name(), key, s.Key(key).String()))
		return def
	}
	return v
}

func (r *reader) list(s *ini.Section, key string, allowed ...string) []string {
	raw := r.required(s, key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if len(allowed) > 0 && !contains(allowed, item) {
			r.errs = append(r.errs, fmt.Errorf("[%s] %s: invalid value %q, must be one of: %s",
				s.Name(), key, item, strings.Join(allowed, ", ")))
			continue
		}
		out = append(out, item)
	}
	return out
}

// LoadRun reads and validates the run configuration at path. Every missing
// key and invalid value is reported; the returned error joins them all.
func LoadRun(path string) (*RunConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return parseRun(file)
}

func parseRun(file *ini.File) (*RunConfig, error) {
	r := &reader{file: file}
	cfg := &RunConfig{}

	s := r.section("shread")
	cfg.WorkDir = r.required(s, "work_dir")
	cfg.OutputDir = r.required(s, "database_dir")
	cfg.ArchiveDir = r.optional(s, "archive_dir", "")
	cfg.Archive = r.boolean(s, "archive", false)
	cfg.OutputEPSG = r.integer(s, "proj_epsg")
	cfg.NoData = float64(r.integer(s, "null_value"))
	cfg.UnitSystem = strings.ToLower(r.required(s, "unit_sys"))
	cfg.BasinName = r.required(s, "basin_name")
	cfg.BasinPolyPath = r.required(s, "basin_poly_path")
	cfg.BasinPointsPath = r.optional(s, "basin_points_path", "")
	cfg.OutputTypes = r.list(s, "output_type", OutputPoly, OutputPoints)
	cfg.OutputFormats = r.list(s, "output_format", FormatCSV, FormatGeoJSON)

	if cfg.UnitSystem != "" && cfg.UnitSystem != Metric && cfg.UnitSystem != English {
		r.errs = append(r.errs, fmt.Errorf("[shread] unit_sys: invalid value %q, must be one of: metric, english", cfg.UnitSystem))
	}
	if s != nil && cfg.Archive && cfg.ArchiveDir == "" {
		r.errs = append(r.errs, &MissingKeyError{Section: "shread", Key: "archive_dir"})
	}
	if s != nil && cfg.Wants(OutputPoints) && cfg.BasinPointsPath == "" {
		r.errs = append(r.errs, &MissingKeyError{Section: "shread", Key: "basin_points_path"})
	}

	s = r.section("earthdata")
	cfg.Earthdata = EarthdataConfig{
		Username: r.required(s, "username"),
		Password: r.required(s, "password"),
		CMRURL:   r.optional(s, "cmr_url", DefaultCMRURL),
	}

	s = r.section("snodas")
	cfg.SNODAS = HostConfig{Host: r.required(s, "host"), Path: r.required(s, "path")}

	s = r.section("nohrsc")
	cfg.NOHRSC = HostConfig{Host: r.required(s, "host"), Path: r.required(s, "path")}

	s = r.section("jpl")
	cfg.JPL = JPLConfig{
		Host:      r.required(s, "host"),
		Username:  r.required(s, "username"),
		Password:  r.required(s, "password"),
		SSLVerify: r.boolean(s, "ssl_verify", true),
	}

	s = r.section("ndfd")
	cfg.NDFD = NDFDConfig{
		Host:   r.required(s, "host"),
		Path:   r.required(s, "path"),
		Params: r.list(s, "params"),
	}

	s = r.section("swann")
	cfg.SWANN = SWANNConfig{
		Host:         r.required(s, "host"),
		ArchivePath:  r.required(s, "archive_path"),
		RealtimePath: r.required(s, "realtime_path"),
	}

	if file.HasSection("s3") {
		s = file.Section("s3")
		cfg.S3 = &S3Config{
			Endpoint:  r.required(s, "endpoint"),
			Bucket:    r.required(s, "bucket"),
			AccessKey: r.required(s, "access_key"),
			SecretKey: r.required(s, "secret_key"),
			Region:    r.optional(s, "region", ""),
			UseSSL:    r.boolean(s, "use_ssl", true),
		}
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}
