package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "diaryface/internal/log"
)

var (
	ErrNoURL        = errors.New("ics: source URL is empty")
	ErrNoCachedBody = errors.New("ics: 304 Not Modified without cached body")
)

// Source is one ICS subscription. Its position in the configured list is
// the reminder list index the companion reports.
type Source struct {
	ID   string
	Name string
	URL  string
}

// FetchResult is the body a source produced on one refresh.
type FetchResult struct {
	Source Source
	Body   []byte
	// Digest is the hex SHA-256 of Body. The store skips parsing when it
	// matches the digest it last parsed for the source.
	Digest string
	// FromCache is set when Body came from disk: a 304, or a failed fetch
	// with a cached copy to fall back on.
	FromCache bool
}

func (r FetchResult) digest() string {
	if r.Digest != "" {
		return r.Digest
	}
	return bodyDigest(r.Body)
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// feedMeta sits beside a cached body. It names the source so a cache
// directory can be read without the config, and never stores the URL.
type feedMeta struct {
	SourceID     string    `json:"source_id"`
	Name         string    `json:"name,omitempty"`
	Origin       string    `json:"origin"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Digest       string    `json:"digest"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// feedCache is the on-disk copy of every feed: <key>.ics and <key>.json,
// keyed by a hash of the URL so a changed URL starts cold.
type feedCache struct {
	dir string
}

func (c feedCache) key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:8])
}

func (c feedCache) load(src Source) (feedMeta, []byte) {
	k := c.key(src.URL)
	body, err := os.ReadFile(filepath.Join(c.dir, k+".ics"))
	if err != nil {
		return feedMeta{}, nil
	}
	var meta feedMeta
	data, err := os.ReadFile(filepath.Join(c.dir, k+".json"))
	if err == nil && json.Unmarshal(data, &meta) == nil && meta.Digest == bodyDigest(body) {
		return meta, body
	}
	// A body without matching validators can still serve as a fallback,
	// but must not be revalidated against.
	return feedMeta{SourceID: src.ID, Digest: bodyDigest(body)}, body
}

func (c feedCache) save(src Source, meta feedMeta, body []byte) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	k := c.key(src.URL)
	if err := os.WriteFile(filepath.Join(c.dir, k+".ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, k+".json"), data, 0o600)
}

// Fetcher downloads feeds with conditional requests, revalidating against
// the ETag and Last-Modified of the cached copy.
type Fetcher struct {
	client *http.Client
	cache  feedCache
}

// NewFetcher creates a Fetcher caching under cacheDir. An empty cacheDir
// falls back to ./var/ics-cache.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  feedCache{dir: cacheDir},
	}
}

// FetchAll fetches sources in order. Only sources that produced a body are
// in the results; the rest are logged and returned as errors.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error
	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches a single source. A network error or non-OK status falls
// back to the cached body when there is one.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, ErrNoURL
	}
	meta, cached := f.cache.load(src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch", "id", src.ID, "url", redactURL(src.URL), "etag", meta.ETag)
	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache(src, meta, cached, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fromCache(src, meta, cached, err)
		}
		fresh := feedMeta{
			SourceID:     src.ID,
			Name:         src.Name,
			Origin:       redactURL(src.URL),
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Digest:       bodyDigest(body),
			FetchedAt:    time.Now().UTC(),
		}
		if err := f.cache.save(src, fresh, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID)
		}
		appLog.Info("ics feed downloaded", "id", src.ID, "bytes", len(body), "changed", fresh.Digest != meta.Digest)
		return FetchResult{Source: src, Body: body, Digest: fresh.Digest}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, ErrNoCachedBody
		}
		appLog.Debug("ics feed not modified", "id", src.ID)
		return FetchResult{Source: src, Body: cached, Digest: meta.Digest, FromCache: true}, nil

	default:
		return fromCache(src, meta, cached, fmt.Errorf("ics: fetch %s: %s", src.ID, resp.Status))
	}
}

// fromCache serves the cached body in place of a failed fetch, or returns
// cause when nothing is cached.
func fromCache(src Source, meta feedMeta, cached []byte, cause error) (FetchResult, error) {
	if len(cached) == 0 {
		return FetchResult{}, cause
	}
	appLog.Warn("ics fetch failed; serving cached feed", "err", cause, "id", src.ID, "fetched_at", meta.FetchedAt)
	return FetchResult{Source: src, Body: cached, Digest: meta.Digest, FromCache: true}, nil
}

// redactURL keeps only the scheme and host of a feed URL. Subscription
// URLs usually carry their secret in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
