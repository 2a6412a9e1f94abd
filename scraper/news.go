package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/chenoh1990/scraping-assignment/fetcher"
	"github.com/chenoh1990/scraping-assignment/store"
)

// ErrNoContent is returned when an item's detail document cannot be fetched.
var ErrNoContent = errors.New("no content returned")

// NewsFetcher is the part of the fetcher the news pipeline uses.
type NewsFetcher interface {
	Fetch(ctx context.Context, rawURL string, header http.Header) fetcher.Payload
	FetchPaginated(ctx context.Context, baseURL string, total, pageSize int) fetcher.PageBatch
	FetchDetail(ctx context.Context, itemKey string) fetcher.Payload
}

// NewsPipeline ingests a paginated news listing into an article collection.
type NewsPipeline struct {
	cfg     NewsConfig
	fetcher NewsFetcher
	store   *store.Store[Article]
	log     log.FieldLogger
}

func NewNewsPipeline(cfg NewsConfig, f NewsFetcher, s *store.Store[Article], logger log.FieldLogger) *NewsPipeline {
	return &NewsPipeline{
		cfg:     cfg,
		fetcher: f,
		store:   s,
		log:     logger.WithField("source", "news"),
	}
}

// Run fetches the first listing page and persists it, then fetches the
// remaining pages concurrently and persists those. Only store failures and
// cancellation are returned; a missing first page ends the run quietly.
func (p *NewsPipeline) Run(ctx context.Context) error {
	listingURL, err := p.cfg.ListingURL()
	if err != nil {
		return err
	}
	logger := p.log.WithField("url", listingURL)

	payload := p.fetcher.Fetch(ctx, listingURL, nil)
	if payload == nil {
		logger.Error("First page could not be fetched, nothing to ingest")
		return nil
	}
	var first fetcher.PageBatch
	if err := json.Unmarshal(payload, &first); err != nil {
		logger.WithError(err).Error("First page is not a listing")
		return nil
	}

	stats, err := store.SaveChunked(ctx, p.store, p.decode(first.Results), p.cfg.FirstChunkSize, newsItemKey, p.transform)
	if err != nil {
		return fmt.Errorf("save first page: %w", err)
	}
	p.logStats(stats, "Articles in first page have been saved")

	rest := p.fetcher.FetchPaginated(ctx, listingURL, first.Total, p.cfg.PageSize)
	stats, err = store.SaveChunked(ctx, p.store, p.decode(rest.Results), p.cfg.ChunkSize, newsItemKey, p.transform)
	if err != nil {
		return fmt.Errorf("save remaining pages: %w", err)
	}
	p.logStats(stats, "Articles in remaining pages have been saved")
	return nil
}

func (p *NewsPipeline) decode(results []json.RawMessage) []NewsItem {
	items := make([]NewsItem, 0, len(results))
	for _, raw := range results {
		var item NewsItem
		if err := json.Unmarshal(raw, &item); err != nil {
			p.log.WithError(err).Warn("Skipping undecodable listing result")
			continue
		}
		items = append(items, item)
	}
	return items
}

// transform fetches the item's detail document and builds the Article.
func (p *NewsPipeline) transform(ctx context.Context, item NewsItem) (Article, error) {
	payload := p.fetcher.FetchDetail(ctx, item.URL)
	if payload == nil {
		return Article{}, fmt.Errorf("%w for %s", ErrNoContent, item.URL)
	}

	content, err := SectionText(payload)
	if err != nil {
		p.log.WithError(err).WithField("url", item.URL).Warn("Error extracting content from response")
	}

	return Article{
		Title:          item.Title,
		URL:            item.URL,
		PublishDate:    PublishDate(item.Tags),
		Description:    item.Description,
		Tags:           MergeTags(item.Tags),
		ArticleContent: content,
	}, nil
}

func (p *NewsPipeline) logStats(stats store.ChunkStats, msg string) {
	p.log.WithFields(log.Fields{
		"added":       stats.Added,
		"duplicates":  stats.Duplicates,
		"failed":      stats.Failed,
		"checkpoints": stats.Checkpoints,
		"file":        p.store.Path(),
	}).Info(msg)
}
