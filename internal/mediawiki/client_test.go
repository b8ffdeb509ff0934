package mediawiki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCategoryMembersFollowsContinue(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("list") != "categorymembers" || q.Get("cmtitle") != "Category:Watched" {
			t.Errorf("unexpected query %v", q)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("cmcontinue") {
		case "":
			_, _ = w.Write([]byte(`{"continue":{"cmcontinue":"page|2","continue":"-||"},"query":{"categorymembers":[{"ns":0,"title":"Alpha"},{"ns":0,"title":"Beta"}]}}`))
		case "page|2":
			_, _ = w.Write([]byte(`{"query":{"categorymembers":[{"ns":0,"title":"Gamma"},{"ns":0,"title":"Alpha"}]}}`))
		default:
			t.Errorf("unexpected cmcontinue %q", q.Get("cmcontinue"))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithUserAgent("test-agent/1.0"))
	got, err := c.CategoryMembers(context.Background(), "Watched", nil)
	if err != nil {
		t.Fatalf("CategoryMembers: %v", err)
	}
	want := []string{"Alpha", "Beta", "Gamma"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEmbeddedInNamespaces(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("eititle") != "Template:Watch" || q.Get("einamespace") != "0|4" || q.Get("eilimit") != "50" {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`{"query":{"embeddedin":[{"ns":0,"title":"One"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithPageLimit(50))
	got, err := c.EmbeddedIn(context.Background(), "Watch", []int{0, 4})
	if err != nil || len(got) != 1 || got[0] != "One" {
		t.Fatalf("EmbeddedIn = %v, %v", got, err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"query":{"categorymembers":[{"ns":0,"title":"Ok"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(3, time.Millisecond))
	got, err := c.CategoryMembers(context.Background(), "Category:X", nil)
	if err != nil || len(got) != 1 {
		t.Fatalf("CategoryMembers = %v, %v", got, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(3, time.Millisecond))
	_, err := c.CategoryMembers(context.Background(), "Category:X", nil)
	if !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestAPIErrorObject(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":"badvalue","info":"bad title"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).EmbeddedIn(context.Background(), "Template:X", nil)
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Code != "badvalue" {
		t.Fatalf("err = %v, want api error badvalue", err)
	}
}
