package hnapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMaxItemID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "123456")
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 4, nil)
	id, err := c.MaxItemID(t.Context())
	if err != nil {
		t.Fatalf("MaxItemID: %v", err)
	}
	if id != 123456 {
		t.Fatalf("got %d, want 123456", id)
	}
}

func TestFetchItemReturnsParsedItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":42,"type":"story","by":"pg","title":"Ask HN"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 4, nil)
	item, err := c.FetchItem(t.Context(), 42)
	if err != nil {
		t.Fatalf("FetchItem: %v", err)
	}
	if item == nil {
		t.Fatal("expected non-nil item")
	}
	if item.ID != 42 || item.Type != "story" || item.Title != "Ask HN" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestFetchItemNullBodyYieldsNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "null")
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 4, nil)
	item, err := c.FetchItem(t.Context(), 1)
	if err != nil {
		t.Fatalf("FetchItem: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item for null body, got %+v", item)
	}
}

func TestFetchItemServerErrorYieldsNoResultNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 200*time.Millisecond, 4, nil)
	item, err := c.FetchItem(t.Context(), 1)
	if err != nil {
		t.Fatalf("expected transient failure to collapse to (nil, nil), got error: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %+v", item)
	}
}
