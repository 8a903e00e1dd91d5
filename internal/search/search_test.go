package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"github.com/greenproof/fleetscore/internal/criteria"
)

func TestGoogleSearchParsesItems(t *testing.T) {
	var gotQuery, gotCx string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCx = r.URL.Query().Get("cx")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"title": "Acme Sustainability", "link": "https://acmelogistics.com/sustainability", "snippet": "Acme operates 40 CNG trucks."},
				{"title": "No link item"},
				{"title": "News", "link": "https://news.example.com/acme", "snippet": "Coverage."}
			]
		}`))
	}))
	defer server.Close()

	g, err := NewGoogle(context.Background(), Config{APIKey: "k", EngineID: "cx-1"}, nil,
		option.WithEndpoint(server.URL), option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new google: %v", err)
	}

	results, err := g.Search(context.Background(), "acme cng trucks", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "acme cng trucks" {
		t.Fatalf("unexpected query sent: %q", gotQuery)
	}
	if gotCx != "cx-1" {
		t.Fatalf("unexpected engine id sent: %q", gotCx)
	}
	if len(results) != 2 {
		t.Fatalf("expected linkless items dropped, got %d results", len(results))
	}
	if results[0].Link != "https://acmelogistics.com/sustainability" {
		t.Fatalf("unexpected first link: %q", results[0].Link)
	}
	if results[1].Snippet != "Coverage." {
		t.Fatalf("unexpected snippet: %q", results[1].Snippet)
	}
}

func TestGoogleSearchPropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	g, err := NewGoogle(context.Background(), Config{APIKey: "k", EngineID: "cx-1"}, nil,
		option.WithEndpoint(server.URL), option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new google: %v", err)
	}
	if _, err := g.Search(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error from api failure")
	}
}

func TestNewGoogleValidatesConfig(t *testing.T) {
	if _, err := NewGoogle(context.Background(), Config{EngineID: "cx"}, nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewGoogle(context.Background(), Config{APIKey: "k"}, nil); err == nil {
		t.Fatal("expected error for missing engine id")
	}
}

func TestCriterionQueriesCoverEveryCriterion(t *testing.T) {
	for _, c := range criteria.All() {
		queries := CriterionQueries("Acme Logistics", c.ID)
		if len(queries) != 2 {
			t.Fatalf("criterion %s: expected 2 queries, got %d", c.ID, len(queries))
		}
		for _, q := range queries {
			if !strings.Contains(q, "Acme Logistics") {
				t.Fatalf("criterion %s: query %q does not name the entity", c.ID, q)
			}
		}
	}
	if got := CriterionQueries("Acme", criteria.ID("bogus")); got != nil {
		t.Fatalf("expected nil for unknown criterion, got %v", got)
	}
}

func TestReportQueriesTargetPDFs(t *testing.T) {
	queries := ReportQueries("Acme Logistics")
	if len(queries) != 3 {
		t.Fatalf("expected 3 report queries, got %d", len(queries))
	}
	for _, q := range queries {
		if !strings.Contains(q, "filetype:pdf") {
			t.Fatalf("report query %q must target pdf documents", q)
		}
		if !strings.Contains(q, "Acme Logistics") {
			t.Fatalf("report query %q does not name the entity", q)
		}
	}
}
