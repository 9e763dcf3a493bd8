package prices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"skinprice/internal/logger"
	"skinprice/internal/observability"
)

const (
	connectTimeout = 60 * time.Second
	readTimeout    = 120 * time.Second
	maxBodyBytes   = 64 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	acceptHeader     = "application/json, text/plain, */*"
	acceptEncoding   = "gzip, deflate, br"
)

type FetcherOptions struct {
	URL             string
	RelayURL        string
	BlockedStatuses []int
	// Headers are added to primary requests, replacing the browser defaults.
	Headers map[string]string
	// RequestsPerSecond spaces upstream requests; <= 0 disables the limit.
	RequestsPerSecond float64
	Client            *http.Client
	Log               *logger.Entry
}

// Fetcher downloads the price list, retrying once through a relay when the
// source answers with a blocked status.
type Fetcher struct {
	url      string
	relayURL string
	blocked  map[int]bool
	headers  http.Header
	client   *http.Client
	limiter  *rate.Limiter
	log      *logger.Entry
}

func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("source URL is required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}

	blocked := make(map[int]bool, len(opts.BlockedStatuses))
	for _, code := range opts.BlockedStatuses {
		blocked[code] = true
	}

	headers := browserHeaders(opts.URL)
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	client := opts.Client
	if client == nil {
		client = NewHTTPClient()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	log := opts.Log
	if log == nil {
		log = logger.GetLogger().WithComponent("fetcher")
	}

	return &Fetcher{
		url:      opts.URL,
		relayURL: opts.RelayURL,
		blocked:  blocked,
		headers:  headers,
		client:   client,
		limiter:  rate.NewLimiter(limit, 2),
		log:      log,
	}, nil
}

// NewHTTPClient builds a client with the connect and read bounds the
// upstream needs. Compression is left to the decoder.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: connectTimeout + readTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			DisableCompression:    true,
			MaxIdleConns:          4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func (f *Fetcher) Fetch(ctx context.Context) (RawPayload, error) {
	resp, err := f.get(ctx, f.url, f.headers)
	if err != nil {
		return RawPayload{}, &FetchError{URL: f.url, Err: err}
	}

	usedRelay := false
	if f.blocked[resp.StatusCode] {
		drain(resp)
		if f.relayURL == "" {
			return RawPayload{}, &FetchError{URL: f.url, Status: resp.StatusCode}
		}
		f.log.WithField("status", resp.StatusCode).Warn("direct access blocked, using relay")
		observability.RelayFallbacksTotal.Inc()

		usedRelay = true
		resp, err = f.get(ctx, f.relayURL, relayHeaders())
		if err != nil {
			return RawPayload{}, &FetchError{URL: f.relayURL, Err: err}
		}
	}
	defer resp.Body.Close()

	reqURL := resp.Request.URL.String()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawPayload{}, &FetchError{URL: reqURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return RawPayload{}, &FetchError{URL: reqURL, Err: fmt.Errorf("read body: %w", err)}
	}

	return RawPayload{
		Body:            body,
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		Status:          resp.StatusCode,
		URL:             reqURL,
		UsedRelay:       usedRelay,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, u string, headers http.Header) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = headers.Clone()
	return f.client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}

func browserHeaders(source string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Encoding", acceptEncoding)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "no-cache")
	if origin := siteOrigin(source); origin != "" {
		h.Set("Origin", origin)
		h.Set("Referer", origin+"/")
	}
	return h
}

func relayHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Encoding", acceptEncoding)
	return h
}

// siteOrigin maps an API host to the storefront origin a browser would send,
// e.g. https://api.skinport.com/v1/items to https://skinport.com.
func siteOrigin(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + strings.TrimPrefix(u.Host, "api.")
}
