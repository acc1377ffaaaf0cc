// Package cmr provides a client for NASA's Common Metadata Repository (CMR)
// granule search and Earthdata Login authenticated downloads.
package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the default CMR API base URL.
	DefaultBaseURL = "https://cmr.earthdata.nasa.gov/search"

	// DefaultPageSize is the default number of results per page.
	DefaultPageSize = 250

	// MaxPageSize is the maximum page size supported by CMR.
	MaxPageSize = 2000

	// CMRSearchAfterHeader is the header used for cursor-based pagination.
	CMRSearchAfterHeader = "CMR-Search-After"

	defaultUserAgent = "shread/1.0"
)

// Client handles communication with the CMR API.
type Client struct {
	baseURL    string
	provider   string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new CMR API client. An empty provider searches all
// providers. A zero timeout disables the per-request timeout.
func NewClient(baseURL, provider string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		provider:  provider,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithUserAgent sets the User-Agent header sent with every request.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// SearchResult contains the results of a CMR search.
type SearchResult struct {
	Granules    []UMMGranule
	Hits        int
	SearchAfter string // Cursor for next page
	TookMs      int
}

// Search performs a single granule search page against CMR.
func (c *Client) Search(ctx context.Context, params *SearchParams) (*SearchResult, error) {
	searchURL := c.baseURL + "/granules.umm_json"

	queryParams := params.ToURLValues()
	if c.provider != "" {
		queryParams.Set("provider", c.provider)
	}

	c.logger.DebugContext(ctx, "executing CMR search",
		slog.String("url", searchURL),
		slog.String("params", queryParams.Encode()),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+queryParams.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.nasa.cmr.umm_results+json")
	req.Header.Set("User-Agent", c.userAgent)

	if params.SearchAfter != "" {
		req.Header.Set(CMRSearchAfterHeader, params.SearchAfter)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "CMR API request failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("CMR API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "CMR API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("CMR API returned status %d: %s", resp.StatusCode, string(body))
	}

	var cmrResp UMMSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&cmrResp); err != nil {
		return nil, fmt.Errorf("failed to decode CMR response: %w", err)
	}

	granules := make([]UMMGranule, 0, len(cmrResp.Items))
	for _, item := range cmrResp.Items {
		granules = append(granules, item.UMM)
	}

	searchAfter := resp.Header.Get(CMRSearchAfterHeader)

	c.logger.DebugContext(ctx, "CMR search completed",
		slog.Int("hits", cmrResp.Hits),
		slog.Int("returned", len(granules)),
		slog.Bool("has_next", searchAfter != ""),
	)

	return &SearchResult{
		Granules:    granules,
		Hits:        cmrResp.Hits,
		SearchAfter: searchAfter,
		TookMs:      cmrResp.Took,
	}, nil
}

// GranuleQuery selects granules of one collection version.
type GranuleQuery struct {
	ShortName string
	Version   string
	Start     time.Time
	End       time.Time
	// BoundingBox is [west, south, east, north]; optional.
	BoundingBox []float64
	// Polygon is a closed counter-clockwise ring of lon/lat pairs; optional.
	Polygon [][]float64
	// FilenameFilter keeps only links whose file name contains it; optional.
	FilenameFilter string
	// StartWithin drops granules that merely overlap [Start, End] and begin
	// outside it.
	StartWithin bool
	PageSize    int
}

// Params converts the query into search parameters.
func (q GranuleQuery) Params() *SearchParams {
	p := &SearchParams{
		ShortName: []string{q.ShortName},
		PageSize:  q.PageSize,
		SortKey:   "start_date",
	}
	if q.Version != "" {
		p.Version = q.Version
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		p.Temporal = formatTemporal(q.Start, q.End)
	}
	if len(q.BoundingBox) == 4 {
		p.BoundingBox = joinFloats(q.BoundingBox)
	}
	if len(q.Polygon) > 0 {
		flat := make([]float64, 0, len(q.Polygon)*2)
		for _, pt := range q.Polygon {
			if len(pt) >= 2 {
				flat = append(flat, pt[0], pt[1])
			}
		}
		p.Polygon = joinFloats(flat)
	}
	return p
}

// Granules returns the data download URLs of every granule matching q,
// following the search-after cursor until a page comes back empty or without
// a cursor. Links are deduplicated by file name in first-seen order. A
// transport error aborts the whole search; no matches is not an error.
func (c *Client) Granules(ctx context.Context, q GranuleQuery) ([]string, error) {
	params := q.Params()
	seen := make(map[string]bool)
	var urls []string

	for page := 1; ; page++ {
		result, err := c.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("search %s page %d: %w", q.ShortName, page, err)
		}
		if len(result.Granules) == 0 {
			break
		}

		for i := range result.Granules {
			g := &result.Granules[i]
			if q.StartWithin && !q.startsWithin(g) {
				c.logger.DebugContext(ctx, "granule starts outside the search window",
					slog.String("granule", g.GranuleUR),
				)
				continue
			}
			for _, link := range g.DataLinks() {
				name := FileName(link)
				if q.FilenameFilter != "" && !strings.Contains(name, q.FilenameFilter) {
					continue
				}
				if seen[name] {
					continue
				}
				seen[name] = true
				urls = append(urls, link)
			}
		}

		if result.SearchAfter == "" {
			break
		}
		params.SearchAfter = result.SearchAfter
	}

	c.logger.InfoContext(ctx, "CMR granule search",
		slog.String("short_name", q.ShortName),
		slog.String("version", q.Version),
		slog.Int("links", len(urls)),
	)
	return urls, nil
}

// startsWithin reports whether g begins inside [q.Start, q.End]. Granules
// without a readable start time are kept.
func (q GranuleQuery) startsWithin(g *UMMGranule) bool {
	start, err := g.GetStartTime()
	if err != nil || start.IsZero() {
		return true
	}
	if !q.Start.IsZero() && start.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && start.After(q.End) {
		return false
	}
	return true
}

// FileName returns the last path element of a download URL.
func FileName(link string) string {
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		link = u.Path
	}
	if i := strings.LastIndexByte(link, '/'); i >= 0 {
		return link[i+1:]
	}
	return link
}

// SearchParams represents parameters for CMR granule searches.
type SearchParams struct {
	// Collection identification
	ShortName []string // Collection short names
	Version   string   // Collection version
	ConceptID []string // Collection or granule concept IDs

	// Granule identification
	GranuleUR []string

	// Spatial filters
	BoundingBox string // west,south,east,north
	Polygon     string // lon1,lat1,lon2,lat2,...
	Point       string // lon,lat

	// Temporal filters
	Temporal string // start,end in ISO 8601 format

	// Pagination
	PageSize    int
	SearchAfter string // CMR-Search-After cursor

	// Sorting
	SortKey string // CMR sort key (e.g., "-start_date" for descending)
}

// ToURLValues converts SearchParams to URL query parameters.
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	for _, sn := range p.ShortName {
		values.Add("short_name", sn)
	}
	if p.Version != "" {
		values.Set("version", p.Version)
	}
	for _, cid := range p.ConceptID {
		values.Add("concept_id", cid)
	}

	for _, gur := range p.GranuleUR {
		values.Add("granule_ur", gur)
	}

	if p.BoundingBox != "" {
		values.Set("bounding_box", p.BoundingBox)
	}
	if p.Polygon != "" {
		values.Set("polygon", p.Polygon)
	}
	if p.Point != "" {
		values.Set("point", p.Point)
	}

	if p.Temporal != "" {
		values.Set("temporal", p.Temporal)
	}

	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	values.Set("page_size", fmt.Sprintf("%d", pageSize))

	if p.SortKey != "" {
		values.Set("sort_key", p.SortKey)
	} else {
		values.Set("sort_key", "-start_date")
	}

	return values
}

func formatTemporal(start, end time.Time) string {
	var s, e string
	if !start.IsZero() {
		s = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		e = end.UTC().Format(time.RFC3339)
	}
	return s + "," + e
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}
