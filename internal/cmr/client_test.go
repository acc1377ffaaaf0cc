package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSearchParams_ToURLValues(t *testing.T) {
	tests := []struct {
		name     string
		params   *SearchParams
		contains []string
	}{
		{
			name: "basic params",
			params: &SearchParams{
				ShortName: []string{"MOD10A1"},
				Version:   "61",
				PageSize:  100,
			},
			contains: []string{
				"short_name=MOD10A1",
				"version=61",
				"page_size=100",
			},
		},
		{
			name: "spatial params",
			params: &SearchParams{
				BoundingBox: "-180,-90,180,90",
				PageSize:    250,
			},
			contains: []string{
				"bounding_box=-180%2C-90%2C180%2C90",
			},
		},
		{
			name: "temporal params",
			params: &SearchParams{
				Temporal: "2020-01-01T00:00:00Z,2020-12-31T23:59:59Z",
				PageSize: 250,
			},
			contains: []string{
				"temporal=2020-01-01T00",
			},
		},
		{
			name:     "page size capped",
			params:   &SearchParams{PageSize: 5000},
			contains: []string{"page_size=2000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := tt.params.ToURLValues()
			encoded := values.Encode()

			for _, want := range tt.contains {
				if !strings.Contains(encoded, want) {
					t.Errorf("ToURLValues() = %s, want to contain %s", encoded, want)
				}
			}
		})
	}
}

func TestGranuleQuery_Params(t *testing.T) {
	q := GranuleQuery{
		ShortName:   "MOD10A1",
		Version:     "61",
		Start:       time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2020, 2, 1, 23, 59, 59, 0, time.UTC),
		BoundingBox: []float64{-109, 38.5, -106, 40.5},
	}
	p := q.Params()

	if p.Temporal != "2020-02-01T00:00:00Z,2020-02-01T23:59:59Z" {
		t.Errorf("Temporal = %s", p.Temporal)
	}
	if p.BoundingBox != "-109,38.5,-106,40.5" {
		t.Errorf("BoundingBox = %s", p.BoundingBox)
	}
	if p.Version != "61" {
		t.Errorf("Version = %s", p.Version)
	}
}

func granule(ur string, links ...RelatedURL) UMMResultItem {
	return UMMResultItem{UMM: UMMGranule{GranuleUR: ur, RelatedUrls: links}}
}

func dataLink(u string) RelatedURL {
	return RelatedURL{URL: u, Type: "GET DATA"}
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/granules.umm_json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		if r.URL.Query().Get("provider") != "NSIDC_ECS" {
			t.Errorf("expected provider NSIDC_ECS, got %s", r.URL.Query().Get("provider"))
		}

		resp := UMMSearchResponse{
			Hits:  1,
			Took:  100,
			Items: []UMMResultItem{granule("SC:MOD10A1.061:1")},
		}

		w.Header().Set(CMRSearchAfterHeader, "next-cursor-value")
		w.Header().Set("Content-Type", "application/vnd.nasa.cmr.umm_results+json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, "NSIDC_ECS", 30*time.Second)

	result, err := client.Search(context.Background(), &SearchParams{
		ShortName: []string{"MOD10A1"},
		PageSize:  10,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if result.Hits != 1 {
		t.Errorf("Search() hits = %d, want 1", result.Hits)
	}

	if result.SearchAfter != "next-cursor-value" {
		t.Errorf("Search() SearchAfter = %s, want next-cursor-value", result.SearchAfter)
	}
}

func TestClient_Granules_PagesFiltersAndDedupes(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		cursor := r.Header.Get(CMRSearchAfterHeader)

		var resp UMMSearchResponse
		switch n {
		case 1:
			if cursor != "" {
				t.Errorf("first request sent cursor %q", cursor)
			}
			w.Header().Set(CMRSearchAfterHeader, "cursor-1")
			resp.Items = []UMMResultItem{
				granule("g1",
					dataLink("https://data.example/MOD10A1.A2020032.h09v04.061.hdf"),
					RelatedURL{URL: "https://data.example/MOD10A1.A2020032.h09v04.061.hdf.xml", Type: "EXTENDED METADATA"},
					RelatedURL{URL: "https://opendap.example/MOD10A1.A2020032.h09v04.061.hdf", Type: "GET DATA"},
					RelatedURL{URL: "", Type: "GET DATA"},
				),
				granule("g2",
					dataLink("https://data.example/MOD10A1.A2020032.h10v04.061.hdf"),
					dataLink("https://data.example/BROWSE.MOD10A1.A2020032.h10v04.jpg"),
				),
			}
		case 2:
			if cursor != "cursor-1" {
				t.Errorf("second request cursor = %q, want cursor-1", cursor)
			}
			w.Header().Set(CMRSearchAfterHeader, "cursor-1")
			resp.Items = []UMMResultItem{
				// same file name from a mirror
				granule("g1-mirror", dataLink("https://mirror.example/MOD10A1.A2020032.h09v04.061.hdf")),
				granule("g3", dataLink("https://data.example/MOD10A1.A2020032.h08v05.061.hdf")),
			}
		default:
			resp.Items = []UMMResultItem{}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0)
	urls, err := client.Granules(context.Background(), GranuleQuery{
		ShortName:      "MOD10A1",
		Version:        "61",
		FilenameFilter: ".hdf",
	})
	if err != nil {
		t.Fatalf("Granules() error = %v", err)
	}

	want := []string{
		"https://data.example/MOD10A1.A2020032.h09v04.061.hdf",
		"https://data.example/MOD10A1.A2020032.h10v04.061.hdf",
		"https://data.example/MOD10A1.A2020032.h08v05.061.hdf",
	}
	if fmt.Sprint(urls) != fmt.Sprint(want) {
		t.Errorf("Granules() = %v, want %v", urls, want)
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
}

func TestClient_Granules_StopsWithoutCursor(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		json.NewEncoder(w).Encode(UMMSearchResponse{
			Items: []UMMResultItem{granule("g1", dataLink("https://data.example/a.hdf"))},
		})
	}))
	defer server.Close()

	urls, err := NewClient(server.URL, "", 0).Granules(context.Background(), GranuleQuery{ShortName: "MOD10A1"})
	if err != nil {
		t.Fatalf("Granules() error = %v", err)
	}
	if len(urls) != 1 || atomic.LoadInt32(&requests) != 1 {
		t.Errorf("urls = %v, requests = %d", urls, requests)
	}
}

func TestClient_Granules_EmptyIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UMMSearchResponse{Items: []UMMResultItem{}})
	}))
	defer server.Close()

	urls, err := NewClient(server.URL, "", 0).Granules(context.Background(), GranuleQuery{ShortName: "MOD10A1"})
	if err != nil {
		t.Fatalf("Granules() error = %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("expected no urls, got %v", urls)
	}
}

func TestClient_Granules_StartWithin(t *testing.T) {
	timed := func(ur, begin string) UMMResultItem {
		item := granule(ur, dataLink("https://data.example/"+ur+".hdf"))
		item.UMM.TemporalExtent = &TemporalExtent{RangeDateTime: &RangeDateTime{BeginningDateTime: begin}}
		return item
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		untimed := granule("untimed", dataLink("https://data.example/untimed.hdf"))
		single := granule("single", dataLink("https://data.example/single.hdf"))
		single.UMM.TemporalExtent = &TemporalExtent{SingleDateTime: "2020-02-01T12:00:00.000Z"}
		json.NewEncoder(w).Encode(UMMSearchResponse{Items: []UMMResultItem{
			timed("previous-day", "2020-01-31T23:55:00Z"),
			timed("same-day", "2020-02-01T10:30:00Z"),
			timed("next-day", "2020-02-02T00:00:00Z"),
			untimed,
			single,
		}})
	}))
	defer server.Close()

	start := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	q := GranuleQuery{ShortName: "MOD10A1", Start: start, End: start.Add(24*time.Hour - time.Second)}

	urls, err := NewClient(server.URL, "", 0).Granules(context.Background(), q)
	if err != nil {
		t.Fatalf("Granules() error = %v", err)
	}
	if len(urls) != 5 {
		t.Errorf("without StartWithin got %d urls, want 5", len(urls))
	}

	q.StartWithin = true
	urls, err = NewClient(server.URL, "", 0).Granules(context.Background(), q)
	if err != nil {
		t.Fatalf("Granules() error = %v", err)
	}
	want := []string{
		"https://data.example/same-day.hdf",
		"https://data.example/untimed.hdf",
		"https://data.example/single.hdf",
	}
	if fmt.Sprint(urls) != fmt.Sprint(want) {
		t.Errorf("Granules() = %v, want %v", urls, want)
	}
}

func TestClient_Granules_TransportErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", 0).Granules(context.Background(), GranuleQuery{ShortName: "MOD10A1"})
	if err == nil {
		t.Fatal("Granules() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should mention status, got %v", err)
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"https://data.example/a/b/MOD10A1.hdf":     "MOD10A1.hdf",
		"https://data.example/a/b/MOD10A1.hdf?x=1": "MOD10A1.hdf",
		"MOD10A1.hdf":                              "MOD10A1.hdf",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEarthdataTransport(t *testing.T) {
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	client := &http.Client{Transport: &EarthdataTransport{
		Username: "user",
		Password: "pass",
		Host:     u.Hostname(),
	}}

	resp, err := client.Get(server.URL + "/login")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	other := &http.Client{Transport: &EarthdataTransport{Username: "user", Password: "pass"}}
	resp, err = other.Get(server.URL + "/data")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if len(authHeaders) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(authHeaders))
	}
	if !strings.HasPrefix(authHeaders[0], "Basic ") {
		t.Errorf("expected basic auth for login host, got %q", authHeaders[0])
	}
	if authHeaders[1] != "" {
		t.Errorf("expected no credentials for data host, got %q", authHeaders[1])
	}
}
