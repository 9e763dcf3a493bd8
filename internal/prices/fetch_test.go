package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestFetcher(t *testing.T, primary, relay string) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetcherOptions{
		URL:             primary,
		RelayURL:        relay,
		BlockedStatuses: []int{403, 406, 429},
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func TestFetchDirect(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleItems))
	}))
	defer srv.Close()

	p, err := newTestFetcher(t, srv.URL+"/v1/items", "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(p.Body) != sampleItems || p.UsedRelay || p.Status != 200 {
		t.Fatalf("payload = %+v", p)
	}
	if gotHeaders.Get("User-Agent") != browserUserAgent {
		t.Errorf("user agent = %q", gotHeaders.Get("User-Agent"))
	}
	if gotHeaders.Get("Accept-Encoding") != acceptEncoding {
		t.Errorf("accept-encoding = %q", gotHeaders.Get("Accept-Encoding"))
	}
	if gotHeaders.Get("Origin") == "" || gotHeaders.Get("Referer") == "" {
		t.Errorf("origin/referer missing: %v", gotHeaders)
	}
}

func TestFetchKeepsCompressedBody(t *testing.T) {
	gz := gzipBytes(t, sampleItems)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(gz)
	}))
	defer srv.Close()

	p, err := newTestFetcher(t, srv.URL, "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.ContentEncoding != "gzip" || len(p.Body) != len(gz) {
		t.Fatalf("body was altered in transit: encoding=%q len=%d", p.ContentEncoding, len(p.Body))
	}
	text, err := Decode(p)
	if err != nil || text != sampleItems {
		t.Fatalf("Decode = %q, %v", text, err)
	}
}

func TestFetchFallsBackToRelay(t *testing.T) {
	for _, status := range []int{403, 406, 429} {
		var relayCalls atomic.Int32
		relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			relayCalls.Add(1)
			if r.Header.Get("Origin") != "" {
				t.Errorf("relay request carries Origin %q", r.Header.Get("Origin"))
			}
			w.Write([]byte(`{"contents":"[]"}`))
		}))
		primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		p, err := newTestFetcher(t, primary.URL, relay.URL).Fetch(context.Background())
		if err != nil {
			t.Fatalf("status %d: Fetch: %v", status, err)
		}
		if !p.UsedRelay || relayCalls.Load() != 1 {
			t.Fatalf("status %d: relay not used: %+v", status, p)
		}
		primary.Close()
		relay.Close()
	}
}

func TestFetchUnhandledStatus(t *testing.T) {
	var relayCalls atomic.Int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayCalls.Add(1)
	}))
	defer relay.Close()
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()

	_, err := newTestFetcher(t, primary.URL, relay.URL).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 FetchError, got %v", err)
	}
	if relayCalls.Load() != 0 {
		t.Fatal("relay used for unblocked status")
	}
}

func TestFetchRelayAlsoBlocked(t *testing.T) {
	blocked := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	relay := httptest.NewServer(blocked)
	defer relay.Close()
	primary := httptest.NewServer(blocked)
	defer primary.Close()

	_, err := newTestFetcher(t, primary.URL, relay.URL).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 FetchError, got %v", err)
	}
}

func TestFetchBlockedWithoutRelay(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer primary.Close()

	_, err := newTestFetcher(t, primary.URL, "").Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusForbidden {
		t.Fatalf("expected 403 FetchError, got %v", err)
	}
}

func TestFetchConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher(t, url, "").Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Err == nil {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleItems))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(t, srv.URL, "").Fetch(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfiguredHeadersOverrideDefaults(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	f, err := NewFetcher(FetcherOptions{URL: srv.URL, Headers: map[string]string{"User-Agent": "price-bot/2"}})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ua != "price-bot/2" {
		t.Fatalf("user agent = %q", ua)
	}
}

func TestSiteOrigin(t *testing.T) {
	if got := siteOrigin("https://api.skinport.com/v1/items?app_id=730"); got != "https://skinport.com" {
		t.Fatalf("siteOrigin = %q", got)
	}
	if got := siteOrigin("not a url"); got != "" {
		t.Fatalf("siteOrigin = %q", got)
	}
}

func TestNewFetcherRequiresURL(t *testing.T) {
	if _, err := NewFetcher(FetcherOptions{}); err == nil {
		t.Fatal("expected error")
	}
}
