// Package fetcher issues GET requests against JSON APIs, one at a time or as a
// bounded concurrent fan-out over offset-paginated listings.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/queue"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPageSize    = 10
	DefaultParallelism = 8
	defaultCulture     = "en"
	defaultUserAgent   = "scraping-assignment/1.0 (+https://github.com/chenoh1990/scraping-assignment)"
)

// Payload is a raw JSON document. A nil Payload means the fetch failed.
type Payload = json.RawMessage

// PageBatch is the merged result of a paginated listing.
type PageBatch struct {
	Total   int               `json:"total"`
	Results []json.RawMessage `json:"results"`
}

// Config holds HTTP settings and the detail endpoint.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Parallelism int
	// ContentURL is the base of the per-item detail endpoint: {ContentURL}/{slug}?culture={Culture}.
	ContentURL string
	Culture    string
}

// Fetcher fetches JSON documents. Failures are logged and reported as nil
// payloads; they never surface as errors.
type Fetcher struct {
	cfg    Config
	client *http.Client
	log    log.FieldLogger
}

func New(cfg Config, logger log.FieldLogger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Culture == "" {
		cfg.Culture = defaultCulture
	}
	return &Fetcher{
		cfg:    cfg,
		client: DefaultHTTPClient(cfg.Timeout),
		log:    logger,
	}
}

func (f *Fetcher) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetClient(f.client)
	return c
}

// Fetch GETs rawURL with optional headers and returns the JSON body, or nil on
// a non-2xx status, a transport failure or a body that is not JSON.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, header http.Header) Payload {
	logger := f.log.WithField("url", rawURL)
	c := f.newCollector(ctx)

	var (
		payload Payload
		logged  bool
	)
	c.OnResponse(func(r *colly.Response) {
		if !json.Valid(r.Body) {
			logger.WithField("status_code", r.StatusCode).Error("Response is not valid JSON")
			return
		}
		payload = append(Payload(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		logged = true
		logFailure(logger, r, err)
	})

	if err := c.Request(http.MethodGet, rawURL, nil, nil, header.Clone()); err != nil && !logged {
		logger.WithError(err).Error("Request failed")
	}
	return payload
}

// FetchDetail fetches the detail document of an item, addressed by the last
// path segment of its key.
func (f *Fetcher) FetchDetail(ctx context.Context, itemKey string) Payload {
	detailURL, err := f.DetailURL(itemKey)
	if err != nil {
		f.log.WithError(err).WithField("item", itemKey).Error("Cannot build detail URL")
		return nil
	}
	return f.Fetch(ctx, detailURL, nil)
}

// DetailURL builds {ContentURL}/{slug}?culture={Culture} for an item key.
func (f *Fetcher) DetailURL(itemKey string) (string, error) {
	if f.cfg.ContentURL == "" {
		return "", fmt.Errorf("no content URL configured")
	}
	slug := Slug(itemKey)
	if slug == "" {
		return "", fmt.Errorf("item key %q has no slug", itemKey)
	}
	base, err := url.Parse(strings.TrimRight(f.cfg.ContentURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse content URL: %w", err)
	}
	base = base.JoinPath(slug)
	q := base.Query()
	q.Set("culture", f.cfg.Culture)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Slug returns the last path segment of an item URL.
func Slug(itemKey string) string {
	if u, err := url.Parse(itemKey); err == nil && u.Path != "" {
		if seg := path.Base(strings.TrimRight(u.Path, "/")); seg != "/" && seg != "." {
			return seg
		}
		return ""
	}
	parts := strings.Split(strings.TrimRight(itemKey, "/"), "/")
	return parts[len(parts)-1]
}

// PageURLs returns the offset URLs needed to cover total records after the
// first page: skip=pageSize, 2*pageSize, ... while skip < total.
func PageURLs(baseURL string, total, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %s: %w", baseURL, err)
	}

	var urls []string
	for skip := pageSize; skip < total; skip += pageSize {
		u := *base
		q := u.Query()
		q.Set("skip", strconv.Itoa(skip))
		u.RawQuery = q.Encode()
		urls = append(urls, u.String())
	}
	return urls, nil
}

// FetchPaginated fetches every page after the first concurrently, at most
// Parallelism at a time, and concatenates their results in completion order.
// A failed page contributes nothing.
func (f *Fetcher) FetchPaginated(ctx context.Context, baseURL string, total, pageSize int) PageBatch {
	logger := f.log.WithFields(log.Fields{"base_url": baseURL, "total": total})
	batch := PageBatch{Total: total}

	urls, err := PageURLs(baseURL, total, pageSize)
	if err != nil {
		logger.WithError(err).Error("Cannot plan pagination")
		return batch
	}
	if len(urls) == 0 {
		return batch
	}

	c := f.newCollector(ctx)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: f.cfg.Parallelism}); err != nil {
		logger.WithError(err).Warn("Failed to set limit rule")
	}

	var (
		mu     sync.Mutex
		failed int
	)
	c.OnResponse(func(r *colly.Response) {
		var page PageBatch
		if err := json.Unmarshal(r.Body, &page); err != nil {
			logger.WithError(err).WithField("url", r.Request.URL.String()).Error("Malformed page")
			mu.Lock()
			failed++
			mu.Unlock()
			return
		}
		mu.Lock()
		batch.Results = append(batch.Results, page.Results...)
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		logFailure(logger, r, err)
		mu.Lock()
		failed++
		mu.Unlock()
	})

	q, err := queue.New(f.cfg.Parallelism, &queue.InMemoryQueueStorage{MaxSize: len(urls)})
	if err != nil {
		logger.WithError(err).Error("Failed to create request queue")
		return batch
	}
	for _, u := range urls {
		if err := q.AddURL(u); err != nil {
			logger.WithError(err).WithField("url", u).Warn("Failed to add page to queue")
		}
	}
	if err := q.Run(c); err != nil {
		logger.WithError(err).Error("Request queue stopped")
	}
	c.Wait()

	logger.WithFields(log.Fields{
		"pages":   len(urls),
		"failed":  failed,
		"results": len(batch.Results),
	}).Info("Fetched paginated results")
	return batch
}

func logFailure(logger log.FieldLogger, r *colly.Response, err error) {
	fields := log.Fields{}
	if r != nil {
		fields["status_code"] = r.StatusCode
		if r.Request != nil && r.Request.URL != nil {
			fields["url"] = r.Request.URL.String()
		}
	}
	logger.WithFields(fields).WithError(err).Error("Request failed")
}
