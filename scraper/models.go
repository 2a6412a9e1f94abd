package scraper

import (
	"fmt"
	"net/url"
	"time"

	"github.com/chenoh1990/scraping-assignment/browser"
)

// Placeholders stored when an optional field cannot be extracted.
const (
	NotAvailable = "N/A"
	NotExist     = "not exist"
)

// Article is a persisted news record, unique by URL.
type Article struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	PublishDate    *string `json:"publish_date"`
	Description    string  `json:"description"`
	Tags           TagSet  `json:"tags"`
	ArticleContent *string `json:"article_content"`
}

// ArticleKey is the dedup key of an Article.
func ArticleKey(a Article) string {
	return a.URL
}

// TagSet maps a tag category to its display labels in delivery order.
type TagSet map[string][]string

// NewsItem is one raw result of the news listing API.
type NewsItem struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        NewsTags `json:"tags"`
}

func newsItemKey(item NewsItem) string {
	return item.URL
}

// NewsTags holds the two tag namespaces of a listing result.
type NewsTags struct {
	MetaData         map[string][]Tag `json:"metaData"`
	PromotedMetaData map[string][]Tag `json:"promotedMetaData"`
}

type Tag struct {
	Title string `json:"title"`
}

// contentPage is the part of the detail document we read.
type contentPage struct {
	ContentMain struct {
		HTMLContents []struct {
			SectionData *string `json:"sectionData"`
		} `json:"htmlContents"`
	} `json:"contentMain"`
}

// Product is a persisted catalog record, unique by InternalLink.
type Product struct {
	Name            string `json:"name"`
	RegularPrice    string `json:"regular_price"`
	DiscountedPrice string `json:"discounted_price"`
	Volume          string `json:"volume"`
	InternalLink    string `json:"internal_link"`
	Description     string `json:"description"`
	BottleImage     string `json:"bottle_image"`
}

// ProductKey is the dedup key of a Product.
func ProductKey(p Product) string {
	return p.InternalLink
}

// NewsConfig configures the news listing pipeline.
type NewsConfig struct {
	CollectorURL   string `mapstructure:"collector_url"`
	CollectorType  string `mapstructure:"collector_type"`
	ContentURL     string `mapstructure:"content_url"`
	Culture        string `mapstructure:"culture"`
	PageSize       int    `mapstructure:"page_size"`
	FirstChunkSize int    `mapstructure:"first_chunk_size"`
	ChunkSize      int    `mapstructure:"chunk_size"`
	OutputFile     string `mapstructure:"output_file"`
}

// ListingURL returns the first-page listing URL:
// {CollectorURL}?CollectorType={CollectorType}&culture={Culture}.
func (c NewsConfig) ListingURL() (string, error) {
	u, err := url.Parse(c.CollectorURL)
	if err != nil {
		return "", fmt.Errorf("parse collector URL %s: %w", c.CollectorURL, err)
	}
	q := u.Query()
	q.Set("CollectorType", c.CollectorType)
	q.Set("culture", c.Culture)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CatalogConfig configures the catalog enrichment pipeline.
type CatalogConfig struct {
	URL               string           `mapstructure:"url"`
	OutputFile        string           `mapstructure:"output_file"`
	MaxScrollAttempts int              `mapstructure:"max_scroll_attempts"`
	ScrollPause       time.Duration    `mapstructure:"scroll_pause"`
	ElementTimeout    time.Duration    `mapstructure:"element_timeout"`
	ReadyTimeout      time.Duration    `mapstructure:"ready_timeout"`
	CheckpointEvery   int              `mapstructure:"checkpoint_every"`
	Selectors         CatalogSelectors `mapstructure:"selectors"`
}

// CatalogSelectors locate the elements of the listing and detail pages.
// Item sub-selectors are resolved inside each list item.
type CatalogSelectors struct {
	Overlay        browser.Selector `mapstructure:"overlay"`
	OverlayDismiss browser.Selector `mapstructure:"overlay_dismiss"`
	LoadIndicator  browser.Selector `mapstructure:"load_indicator"`
	Item           browser.Selector `mapstructure:"item"`
	Name           browser.Selector `mapstructure:"name"`
	Price          browser.Selector `mapstructure:"price"`
	OldPrice       browser.Selector `mapstructure:"old_price"`
	SpecialPrice   browser.Selector `mapstructure:"special_price"`
	Volume         browser.Selector `mapstructure:"volume"`
	Link           browser.Selector `mapstructure:"link"`
	PageReady      browser.Selector `mapstructure:"page_ready"`
	ImageContainer browser.Selector `mapstructure:"image_container"`
	Image          browser.Selector `mapstructure:"image"`
	Description    browser.Selector `mapstructure:"description"`
}

// DefaultCatalogSelectors matches the whiskey catalog markup.
func DefaultCatalogSelectors() CatalogSelectors {
	return CatalogSelectors{
		Overlay:        browser.CSS("#dy-over-18yrs-popup"),
		LoadIndicator:  browser.Class("amscroll-page"),
		Item:           browser.CSS("li.item.product"),
		Name:           browser.CSS("strong.product-item-name a"),
		Price:          browser.CSS("span.price-container .price-wrapper .price"),
		OldPrice:       browser.CSS(".old-price .price"),
		SpecialPrice:   browser.CSS(".special-price .price"),
		Volume:         browser.CSS("span.unit"),
		Link:           browser.Tag("a"),
		PageReady:      browser.Class("page-wrapper"),
		ImageContainer: browser.Class("fotorama__stage__shaft"),
		Image:          browser.Tag("img"),
		Description:    browser.ID("description"),
	}
}
