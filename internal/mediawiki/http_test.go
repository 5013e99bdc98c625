package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wikiloom/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Wiki.APIURL = server.URL + "/api.php"
	client, err := NewHTTPClient(&cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestPageWikitext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("titles") != "Main Page" {
			t.Errorf("titles: %s", r.URL.Query().Get("titles"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{{
					"revisions": []map[string]any{{
						"revid": 42,
						"slots": map[string]any{"main": map[string]any{"content": "<translate>Hello</translate>"}},
					}},
				}},
			},
		})
	})

	rev, err := client.PageWikitext(context.Background(), "Main Page")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rev.ID != 42 || rev.Wikitext != "<translate>Hello</translate>" {
		t.Fatalf("revision: %+v", rev)
	}
}

func TestPageWikitextMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{{"missing": true}},
			},
		})
	})

	_, err := client.PageWikitext(context.Background(), "Nope")
	if !errors.Is(err, ErrPageMissing) {
		t.Fatalf("expected ErrPageMissing, got %v", err)
	}
}

func TestEditSendsTokenAndDetectsConflict(t *testing.T) {
	step := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		step++
		switch step {
		case 1:
			// csrf token fetch
			json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{"tokens": map[string]any{"csrftoken": "tok+\\"}},
			})
		case 2:
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if r.Form.Get("token") != "tok+\\" {
				t.Errorf("token: %q", r.Form.Get("token"))
			}
			if r.Form.Get("title") != "Main Page" {
				t.Errorf("title: %q", r.Form.Get("title"))
			}
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": "editconflict", "info": "conflict"},
			})
		}
	})

	err := client.Edit(context.Background(), "Main Page", "text", "summary")
	var conflict *WriteConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected WriteConflictError, got %v", err)
	}
}

func TestRateLimitedIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{"tokens": map[string]any{"csrftoken": "tok"}},
		})
	})
	_ = client

	err := error(&RateLimitedError{Cause: errors.New("429")})
	if !IsTransient(err) {
		t.Fatal("rate limit should be transient")
	}
	if !IsTransient(&WriteConflictError{Title: "X"}) {
		t.Fatal("conflict should be transient")
	}
	if !IsTransient(&APIError{Code: "maxlag"}) {
		t.Fatal("maxlag should be transient")
	}
	if IsTransient(&APIError{Code: "permissiondenied"}) {
		t.Fatal("permission denial is not transient")
	}
	if IsTransient(ErrPageMissing) {
		t.Fatal("missing page is not transient")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{{
					"revisions": []map[string]any{{
						"revid": 7,
						"slots": map[string]any{"main": map[string]any{"content": `{"de":"reviewed"}`}},
					}},
				}},
			},
		})
	})

	meta, err := client.Metadata(context.Background(), "Main Page")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["de"] != "reviewed" {
		t.Fatalf("meta: %v", meta)
	}
}

func TestMetadataMissingPageIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{"pages": []map[string]any{{"missing": true}}},
		})
	})

	meta, err := client.Metadata(context.Background(), "Main Page")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if len(meta) != 0 {
		t.Fatalf("meta: %v", meta)
	}
}

func TestRecentChanges(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rcstart") != "2026-08-01T00:00:00Z" {
			t.Errorf("rcstart: %s", r.URL.Query().Get("rcstart"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"recentchanges": []map[string]any{
					{"title": "Main Page", "revid": 10, "timestamp": "2026-08-01T01:00:00Z"},
					{"title": "Help", "revid": 11, "timestamp": "2026-08-01T02:00:00Z"},
				},
			},
		})
	})

	events, err := client.RecentChanges(context.Background(), "2026-08-01T00:00:00Z", 50)
	if err != nil {
		t.Fatalf("recent changes: %v", err)
	}
	if len(events) != 2 || events[0].Title != "Main Page" || events[1].Revision != 11 {
		t.Fatalf("events: %+v", events)
	}
}

func TestAllPagesContinuation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"continue": map[string]any{"apcontinue": "Next Page"},
			"query": map[string]any{
				"allpages": []map[string]any{{"title": "Alpha"}, {"title": "Beta"}},
			},
		})
	})

	pages, cont, err := client.AllPages(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("all pages: %v", err)
	}
	if len(pages) != 2 || cont != "Next Page" {
		t.Fatalf("pages=%v cont=%q", pages, cont)
	}
}

func TestUnitPageTitle(t *testing.T) {
	if got := UnitPageTitle("Main Page", "3", "de"); got != "Translations:Main Page/3/de" {
		t.Fatalf("unit title: %q", got)
	}
}
