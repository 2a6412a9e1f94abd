package scraper

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/chenoh1990/scraping-assignment/browser"
	"github.com/chenoh1990/scraping-assignment/store"
)

// DefaultCheckpointEvery is how many enriched products are written between checkpoints.
const DefaultCheckpointEvery = 10

// CatalogPipeline lists a scroll-to-load catalog page, then visits every
// product page to add its description and image.
type CatalogPipeline struct {
	cfg      CatalogConfig
	launch   browser.Launcher
	store    *store.Store[Product]
	log      log.FieldLogger
	pageOpts []browser.PageOption
}

func NewCatalogPipeline(
	cfg CatalogConfig,
	launch browser.Launcher,
	s *store.Store[Product],
	logger log.FieldLogger,
	opts ...browser.PageOption,
) *CatalogPipeline {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	return &CatalogPipeline{
		cfg:      cfg,
		launch:   launch,
		store:    s,
		log:      logger.WithField("source", "catalog"),
		pageOpts: opts,
	}
}

// Run owns one browser session for the whole run and always releases it.
// Only a failure to start the session, a store failure or cancellation is returned.
func (p *CatalogPipeline) Run(ctx context.Context) error {
	driver, err := p.launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	page := browser.NewPage(driver, p.log, p.pageOpts...)
	defer func() {
		if err := page.Quit(); err != nil {
			p.log.WithError(err).Warn("Failed to close browser session")
		}
	}()

	products, err := p.list(ctx, page)
	if err != nil {
		p.log.WithError(err).WithField("url", p.cfg.URL).Error("Failed to list catalog")
		return nil
	}
	if len(products) == 0 {
		p.log.WithField("url", p.cfg.URL).Warn("No products found, keeping the stored collection")
		return nil
	}

	return p.enrich(ctx, page, products)
}

// list runs the listing phase and returns product stubs in discovery order.
func (p *CatalogPipeline) list(ctx context.Context, page *browser.Page) ([]Product, error) {
	sel := p.cfg.Selectors
	logger := p.log.WithField("url", p.cfg.URL)

	if err := page.Navigate(ctx, p.cfg.URL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	logger.WithField("title", page.Title(ctx)).Info("Opened catalog page")

	page.DismissOverlay(ctx, sel.Overlay, sel.OverlayDismiss)
	page.ScrollUntilStable(ctx, sel.LoadIndicator, p.cfg.MaxScrollAttempts, p.cfg.ScrollPause)
	if err := page.WaitReady(ctx, p.cfg.ReadyTimeout); err != nil {
		logger.WithError(err).Warn("Catalog page did not finish loading")
	}

	elements, err := page.FindAll(ctx, sel.Item)
	if err != nil {
		return nil, fmt.Errorf("collect products: %w", err)
	}

	products := make([]Product, 0, len(elements))
	seen := make(map[string]struct{}, len(elements))
	for i, el := range elements {
		product := p.extract(ctx, page, el)
		if product.InternalLink == "" {
			logger.WithField("index", i).Warn("Product has no detail link, skipping")
			continue
		}
		if _, ok := seen[product.InternalLink]; ok {
			logger.WithField("link", product.InternalLink).Debug("Duplicate product, skipping")
			continue
		}
		seen[product.InternalLink] = struct{}{}
		products = append(products, product)
	}

	logger.WithField("products", len(products)).Info("Collected products")
	return products, nil
}

func (p *CatalogPipeline) extract(ctx context.Context, page *browser.Page, el browser.Element) Product {
	sel := p.cfg.Selectors
	product := Product{
		Name:         cleanString(page.ChildText(ctx, el, sel.Name, NotAvailable)),
		Volume:       cleanString(page.ChildText(ctx, el, sel.Volume, NotAvailable)),
		InternalLink: p.link(ctx, el),
		Description:  NotAvailable,
		BottleImage:  NotAvailable,
	}
	product.RegularPrice, product.DiscountedPrice = p.prices(ctx, page, el)
	return product
}

// prices reads the regular and discounted price. A product is discounted only
// when its special-price element exists; its regular price is then the old price.
func (p *CatalogPipeline) prices(ctx context.Context, page *browser.Page, el browser.Element) (regular, discounted string) {
	sel := p.cfg.Selectors
	special := page.ChildText(ctx, el, sel.SpecialPrice, "")
	if special == "" {
		return cleanString(page.ChildText(ctx, el, sel.Price, NotAvailable)), NotExist
	}

	regular = page.ChildText(ctx, el, sel.OldPrice, "")
	if regular == "" {
		regular = page.ChildText(ctx, el, sel.Price, NotAvailable)
	}
	return cleanString(regular), cleanString(special)
}

// link returns the absolute detail URL of a list item, or "" when it has none.
func (p *CatalogPipeline) link(ctx context.Context, el browser.Element) string {
	a, err := el.Find(ctx, p.cfg.Selectors.Link)
	if err != nil {
		return ""
	}
	href, ok, err := a.Attribute(ctx, "href")
	if err != nil || !ok {
		return ""
	}
	if href = strings.TrimSpace(href); href == "" {
		return ""
	}
	return absoluteURL(p.cfg.URL, href)
}

// enrich runs the detail phase, checkpointing the enriched prefix every
// CheckpointEvery products and saving the full list at the end.
func (p *CatalogPipeline) enrich(ctx context.Context, page *browser.Page, products []Product) error {
	for i := range products {
		if err := ctx.Err(); err != nil {
			if saveErr := p.store.Save(products[:i]); saveErr != nil {
				return saveErr
			}
			return err
		}

		p.enrichProduct(ctx, page, &products[i])

		if (i+1)%p.cfg.CheckpointEvery == 0 {
			if err := p.store.Save(products[:i+1]); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			p.log.WithField("records", i+1).Info("Checkpoint saved")
		}
	}

	if err := p.store.Save(products); err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	p.log.WithFields(log.Fields{
		"records": len(products),
		"file":    p.store.Path(),
	}).Info("Products have been saved")
	return nil
}

// enrichProduct adds the detail page fields. Every failure degrades to a placeholder.
func (p *CatalogPipeline) enrichProduct(ctx context.Context, page *browser.Page, product *Product) {
	sel := p.cfg.Selectors
	logger := p.log.WithField("url", product.InternalLink)

	if err := page.Navigate(ctx, product.InternalLink); err != nil {
		logger.WithError(err).Error("Failed to open product page")
		return
	}
	if _, err := page.WaitFor(ctx, sel.PageReady, p.cfg.ElementTimeout); err != nil {
		logger.WithError(err).Warn("Product page not ready")
	}

	product.BottleImage = p.image(ctx, page, product.InternalLink, logger)

	if el, err := page.Find(ctx, sel.Description); err == nil {
		product.Description = browser.TextOr(ctx, el, NotAvailable)
	}
}

func (p *CatalogPipeline) image(ctx context.Context, page *browser.Page, pageURL string, logger log.FieldLogger) string {
	sel := p.cfg.Selectors
	container, err := page.WaitFor(ctx, sel.ImageContainer, p.cfg.ElementTimeout)
	if err != nil {
		logger.WithError(err).Warn("Bottle image not found")
		return NotAvailable
	}
	img, err := container.Find(ctx, sel.Image)
	if err != nil {
		logger.WithError(err).Warn("Bottle image not found")
		return NotAvailable
	}
	src, ok, err := img.Attribute(ctx, "src")
	if err != nil || !ok || strings.TrimSpace(src) == "" {
		return NotAvailable
	}
	return absoluteURL(pageURL, strings.TrimSpace(src))
}
