package ui

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

func TestImageCache(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	loaded := make(chan string, 4)
	c := newImageCache(func(url string) { loaded <- url })

	wait := func(url string) {
		t.Helper()
		select {
		case got := <-loaded:
			if got != url {
				t.Fatalf("loaded %q, want %q", got, url)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout loading %s", url)
		}
	}

	tests := []struct {
		path string
		ok   bool
	}{
		{"/ok.png", true},
		{"/missing.png", false},
		{"/page", false},
	}
	for _, tt := range tests {
		url := srv.URL + tt.path
		if res := c.Get(url); res != nil {
			t.Fatalf("Get(%s) before load = %v, want nil", tt.path, res)
		}
		wait(url)
		res := c.Get(url)
		if (res != nil) != tt.ok {
			t.Errorf("Get(%s) after load = %v, want loaded=%v", tt.path, res, tt.ok)
		}
		if tt.ok && string(res.Content()) != string(pngHeader) {
			t.Errorf("content mismatch for %s", tt.path)
		}
	}

	c.Get(srv.URL + "/ok.png")
	c.Get(srv.URL + "/missing.png")
	select {
	case url := <-loaded:
		t.Errorf("unexpected refetch of %s", url)
	case <-time.After(50 * time.Millisecond):
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestImageCacheEmptyURL(t *testing.T) {
	c := newImageCache(func(string) { t.Errorf("onLoad called for empty url") })
	if c.Get("") != nil {
		t.Errorf("empty url should yield nil")
	}
}
