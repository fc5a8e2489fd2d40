package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Port finance</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Port finance</h1>
<p>Orion funds Bexley. The agreement was signed on Monday after months of negotiation between the harbour board and the investors, according to people familiar with the talks.</p>
<p>The money will pay for two new berths and a rail link. Officials said construction would begin in the spring and take roughly three years, with the first ships expected shortly after.</p>
<p>Critics of the plan have questioned how the investment was arranged and who ultimately benefits from the new capacity at the port.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/note.txt", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Fund report\nBexley pays Carver.\nNothing else."))
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollect(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)

	c := NewCollector(NewCollectorParams{
		Seeds: []Seed{
			{URL: srv.URL + "/article", Title: "Port finance"},
			{URL: srv.URL + "/note.txt"},
			{URL: srv.URL + "/missing"},
			{URL: srv.URL + "/image.png"},
			{URL: "ftp://example.com/file"},
		},
		BatchSize: 10,
	})

	var got []common.Evidence
	err := c.Collect(context.Background(), "bexley", func(batch []common.Evidence) error {
		got = append(got, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Collect() returned %d items, want 2", len(got))
	}

	article, note := got[0], got[1]
	if article.Title != "Port finance" || !strings.Contains(article.Excerpt, "Orion funds Bexley.") {
		t.Errorf("article = %+v, want title and text", article)
	}
	if article.ID != EvidenceID(srv.URL+"/article") {
		t.Errorf("article.ID = %s, want %s", article.ID, EvidenceID(srv.URL+"/article"))
	}
	if note.Title != "Fund report" || note.Excerpt != "Bexley pays Carver. Nothing else." {
		t.Errorf("note = %+v, want title from first line", note)
	}
}

func TestFetchCachesPages(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewCollector(NewCollectorParams{PerDomainRate: 100})

	for range 3 {
		if _, err := c.Fetch(context.Background(), Seed{URL: srv.URL + "/note.txt"}); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short", "One. Two.", 100, "One. Two."},
		{"sentence boundary", "First sentence here. Second one is longer.", 30, "First sentence here."},
		{"hard cut", "abcdefghij", 4, "abcd"},
		{"collapses whitespace", "a\n\n b", 10, "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.text, tt.max); got != tt.want {
				t.Errorf("truncate() = %q, want %q", got, tt.want)
			}
		})
	}
}
