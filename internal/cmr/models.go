package cmr

import (
	"fmt"
	"strings"
	"time"
)

// UMMSearchResponse represents a CMR UMM-G search response.
type UMMSearchResponse struct {
	Hits  int             `json:"hits"`
	Took  int             `json:"took"`
	Items []UMMResultItem `json:"items"`
}

// UMMResultItem wraps a UMM granule with metadata.
type UMMResultItem struct {
	Meta UMMMeta    `json:"meta"`
	UMM  UMMGranule `json:"umm"`
}

// UMMMeta contains metadata about a CMR result item.
type UMMMeta struct {
	ConceptID    string    `json:"concept-id"`
	RevisionID   int       `json:"revision-id"`
	NativeID     string    `json:"native-id"`
	ProviderID   string    `json:"provider-id"`
	FormatString string    `json:"format"`
	RevisionDate time.Time `json:"revision-date"`
}

// UMMGranule represents the subset of a UMM-G record shread reads.
type UMMGranule struct {
	GranuleUR           string              `json:"GranuleUR"`
	CollectionReference CollectionReference `json:"CollectionReference"`
	RelatedUrls         []RelatedURL        `json:"RelatedUrls,omitempty"`
	TemporalExtent      *TemporalExtent     `json:"TemporalExtent,omitempty"`
}

// CollectionReference identifies the parent collection.
type CollectionReference struct {
	ShortName string `json:"ShortName"`
	Version   string `json:"Version"`
}

// RelatedURL represents a URL related to the granule.
type RelatedURL struct {
	URL         string `json:"URL"`
	Type        string `json:"Type"` // e.g., "GET DATA", "GET RELATED VISUALIZATION"
	Subtype     string `json:"Subtype,omitempty"`
	Description string `json:"Description,omitempty"`
	Format      string `json:"Format,omitempty"`
	MimeType    string `json:"MimeType,omitempty"`
}

// TemporalExtent contains temporal information.
type TemporalExtent struct {
	RangeDateTime  *RangeDateTime `json:"RangeDateTime,omitempty"`
	SingleDateTime string         `json:"SingleDateTime,omitempty"`
}

// RangeDateTime represents a time range.
type RangeDateTime struct {
	BeginningDateTime string `json:"BeginningDateTime"`
	EndingDateTime    string `json:"EndingDateTime"`
}

// IsDataLink reports whether a related URL points at a downloadable data
// file: it must have a target, be classified "GET DATA", and not be an
// OPeNDAP service endpoint.
func (r RelatedURL) IsDataLink() bool {
	if r.URL == "" {
		return false
	}
	if r.Type != "GET DATA" {
		return false
	}
	if strings.Contains(strings.ToLower(r.URL), "opendap") ||
		strings.Contains(strings.ToLower(r.Subtype), "opendap") {
		return false
	}
	return true
}

// DataLinks returns the granule's downloadable data URLs.
func (g *UMMGranule) DataLinks() []string {
	var links []string
	for _, u := range g.RelatedUrls {
		if u.IsDataLink() {
			links = append(links, u.URL)
		}
	}
	return links
}

// GetStartTime returns the start time of the granule.
func (g *UMMGranule) GetStartTime() (time.Time, error) {
	if g.TemporalExtent == nil {
		return time.Time{}, nil
	}

	if g.TemporalExtent.RangeDateTime != nil && g.TemporalExtent.RangeDateTime.BeginningDateTime != "" {
		return parseTime(g.TemporalExtent.RangeDateTime.BeginningDateTime)
	}

	if g.TemporalExtent.SingleDateTime != "" {
		return parseTime(g.TemporalExtent.SingleDateTime)
	}

	return time.Time{}, nil
}

// parseTime parses a CMR timestamp string.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time: %s", s)
}
