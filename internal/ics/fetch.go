package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"calproxy/internal/retry"
)

const (
	fetchTimeout = 15 * time.Second
	acceptHeader = "text/calendar, application/calendar;q=0.9, */*;q=0.1"
	userAgent    = "calproxy/1.0"
)

// FetchResult contains the outcome of fetching a single calendar URL.
type FetchResult struct {
	Body      []byte // ICS payload (freshly fetched, or remembered on 304)
	FromCache bool   // true if the upstream answered 304 Not Modified
}

// urlMemo holds HTTP revalidation state for one upstream URL.
type urlMemo struct {
	etag         string
	lastModified string
	body         []byte
	updatedAt    time.Time
}

// Fetcher retrieves ICS documents over HTTP with conditional requests.
// It remembers the ETag/Last-Modified validators and the last body per
// URL in memory so that a 304 Not Modified still yields a full payload.
// Nothing is written to disk.
type Fetcher struct {
	client  *http.Client
	retryer *retry.Retryer
	logger  *slog.Logger

	mu    sync.Mutex
	memos map[string]*urlMemo
}

// NewFetcher creates a new Fetcher. A nil client gets a 15 second
// timeout, a nil retryCfg the default retry behavior and a nil logger
// falls back to slog.Default().
func NewFetcher(client *http.Client, retryCfg *retry.Config, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{
			Timeout: fetchTimeout,
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:  client,
		retryer: retry.NewRetryer(retryCfg, logger),
		logger:  logger,
		memos:   make(map[string]*urlMemo),
	}
}

// Fetch retrieves rawURL, honoring ETag and Last-Modified from earlier
// responses. Transport errors and retriable statuses are retried with
// backoff; whatever error remains after that is returned as-is, so the
// caller can decide about stale fallbacks.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	if rawURL == "" {
		return FetchResult{}, errors.New("fetch URL is empty")
	}

	f.logger.Debug("fetching calendar", "url", RedactURL(rawURL))

	var result FetchResult
	err := f.retryer.Do(ctx, func() error {
		res, err := f.fetchOnce(ctx, rawURL)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", RedactURL(rawURL), err)
	}

	f.logger.Info("calendar fetched",
		"url", RedactURL(rawURL),
		"bytes", len(result.Body),
		"from_cache", result.FromCache)

	return result, nil
}

// fetchOnce performs a single conditional GET.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (FetchResult, error) {
	f.mu.Lock()
	var etag, lastModified string
	var cachedBody []byte
	var rememberedAt time.Time
	if memo := f.memos[rawURL]; memo != nil {
		etag = memo.etag
		lastModified = memo.lastModified
		cachedBody = memo.body
		rememberedAt = memo.updatedAt
	}
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}
		f.remember(rawURL, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), body)
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			// 304 without a remembered body cannot be served.
			return FetchResult{}, errors.New("received 304 Not Modified but no remembered body")
		}
		f.logger.Debug("upstream not modified, serving remembered body",
			"url", RedactURL(rawURL),
			"age", time.Since(rememberedAt).Round(time.Second))
		return FetchResult{Body: cachedBody, FromCache: true}, nil

	default:
		return FetchResult{}, retry.NewHTTPError(resp.StatusCode, resp.Status, RedactURL(rawURL))
	}
}

func (f *Fetcher) remember(rawURL, etag, lastModified string, body []byte) {
	f.mu.Lock()
	f.memos[rawURL] = &urlMemo{
		etag:         etag,
		lastModified: lastModified,
		body:         body,
		updatedAt:    time.Now().UTC(),
	}
	f.mu.Unlock()
}

// RedactURL hides the path and query of a calendar URL for logging.
// Feed URLs routinely embed access tokens, so only scheme and host are kept.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
