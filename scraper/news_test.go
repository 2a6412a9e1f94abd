package scraper_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenoh1990/scraping-assignment/fetcher"
	"github.com/chenoh1990/scraping-assignment/scraper"
	"github.com/chenoh1990/scraping-assignment/store"
)

const articlesFile = "output_data/articles.json"

// newsAPI fakes the listing and content endpoints.
type newsAPI struct {
	total     int
	pageSize  int
	failFirst bool
	noContent map[string]bool
	noSection map[string]bool

	mu           sync.Mutex
	detailHits   map[string]int
	listingSkips []int
}

func newNewsAPI(total int) *newsAPI {
	return &newsAPI{
		total:      total,
		pageSize:   10,
		noContent:  map[string]bool{},
		noSection:  map[string]bool{},
		detailHits: map[string]int{},
	}
}

func itemURL(i int) string {
	return fmt.Sprintf("https://www.gov.il/en/departments/news/item-%d", i)
}

func (a *newsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/collector":
		a.listing(w, r)
	case strings.HasPrefix(r.URL.Path, "/content/"):
		a.detail(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *newsAPI) listing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("CollectorType") != "news" || q.Get("culture") != "en" {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	skip, _ := strconv.Atoi(q.Get("skip"))
	a.mu.Lock()
	a.listingSkips = append(a.listingSkips, skip)
	a.mu.Unlock()

	if skip == 0 && a.failFirst {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}

	results := []map[string]any{}
	for i := skip; i < skip+a.pageSize && i < a.total; i++ {
		results = append(results, map[string]any{
			"title":       fmt.Sprintf("Item %d", i),
			"url":         itemURL(i),
			"description": fmt.Sprintf("Summary <b>%d</b>", i),
			"tags": map[string]any{
				"metaData": map[string]any{
					"Publish Date": []map[string]string{{"title": "01.01.2025"}},
					"category":     []map[string]string{{"title": "Tech"}},
				},
				"promotedMetaData": map[string]any{
					"topic": []map[string]string{{"title": "AI"}},
				},
			},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"total": a.total, "results": results})
}

func (a *newsAPI) detail(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/content/")
	a.mu.Lock()
	a.detailHits[slug]++
	a.mu.Unlock()

	if a.noContent[slug] || r.URL.Query().Get("culture") != "en" {
		http.NotFound(w, r)
		return
	}
	if a.noSection[slug] {
		fmt.Fprint(w, `{"contentMain":{"htmlContents":[]}}`)
		return
	}
	fmt.Fprintf(w, `{"contentMain":{"htmlContents":[{"sectionData":"<p>Body of</p><p>%s</p>"}]}}`, slug)
}

func (a *newsAPI) hits() (detail int, listing []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range a.detailHits {
		detail += n
	}
	return detail, append([]int(nil), a.listingSkips...)
}

type newsFixture struct {
	api      *newsAPI
	fs       afero.Fs
	store    *store.Store[scraper.Article]
	pipeline *scraper.NewsPipeline
	hook     *test.Hook
}

func newNewsFixture(t *testing.T, api *newsAPI) *newsFixture {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logger, hook := test.NewNullLogger()
	f := fetcher.New(fetcher.Config{
		Timeout:     5 * time.Second,
		Parallelism: 4,
		ContentURL:  srv.URL + "/content",
		Culture:     "en",
	}, logger)

	fs := afero.NewMemMapFs()
	s := store.New(fs, articlesFile, scraper.ArticleKey, logger)
	cfg := scraper.NewsConfig{
		CollectorURL:   srv.URL + "/collector",
		CollectorType:  "news",
		Culture:        "en",
		PageSize:       10,
		FirstChunkSize: 100,
		ChunkSize:      50,
		OutputFile:     articlesFile,
	}
	return &newsFixture{
		api:      api,
		fs:       fs,
		store:    s,
		pipeline: scraper.NewNewsPipeline(cfg, f, s, logger),
		hook:     hook,
	}
}

func TestNewsPipeline_EndToEnd(t *testing.T) {
	fx := newNewsFixture(t, newNewsAPI(20))

	require.NoError(t, fx.pipeline.Run(context.Background()))

	articles, err := fx.store.Load()
	require.NoError(t, err)
	require.Len(t, articles, 20)

	urls := map[string]bool{}
	for _, a := range articles {
		assert.False(t, urls[a.URL], "duplicate %s", a.URL)
		urls[a.URL] = true
		require.NotNil(t, a.ArticleContent)
		assert.NotContains(t, *a.ArticleContent, "<")
	}

	first := articles[0]
	assert.Equal(t, "Item 0", first.Title)
	assert.Equal(t, itemURL(0), first.URL)
	assert.Equal(t, "Body of item-0", *first.ArticleContent)
	assert.Equal(t, "Summary <b>0</b>", first.Description)
	require.NotNil(t, first.PublishDate)
	assert.Equal(t, "01.01.2025", *first.PublishDate)
	assert.Equal(t, scraper.TagSet{
		"Publish Date": {"01.01.2025"},
		"category":     {"Tech"},
		"topic":        {"AI"},
	}, first.Tags)

	_, skips := fx.api.hits()
	assert.ElementsMatch(t, []int{0, 10}, skips)
}

func TestNewsPipeline_MissingDetailSkipsOnlyThatItem(t *testing.T) {
	api := newNewsAPI(20)
	api.noContent["item-3"] = true
	api.noContent["item-14"] = true
	fx := newNewsFixture(t, api)

	require.NoError(t, fx.pipeline.Run(context.Background()))

	articles, err := fx.store.Load()
	require.NoError(t, err)
	assert.Len(t, articles, 18)
	for _, a := range articles {
		assert.NotEqual(t, itemURL(3), a.URL)
		assert.NotEqual(t, itemURL(14), a.URL)
	}
}

func TestNewsPipeline_MissingSectionKeepsArticle(t *testing.T) {
	api := newNewsAPI(5)
	api.noSection["item-2"] = true
	fx := newNewsFixture(t, api)

	require.NoError(t, fx.pipeline.Run(context.Background()))

	articles, err := fx.store.Load()
	require.NoError(t, err)
	require.Len(t, articles, 5)
	assert.Nil(t, articles[2].ArticleContent)

	data, err := afero.ReadFile(fx.fs, articlesFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"article_content": null`)
}

func TestNewsPipeline_SecondRunIsNoop(t *testing.T) {
	fx := newNewsFixture(t, newNewsAPI(20))
	ctx := context.Background()

	require.NoError(t, fx.pipeline.Run(ctx))
	before, err := afero.ReadFile(fx.fs, articlesFile)
	require.NoError(t, err)
	detailBefore, _ := fx.api.hits()

	require.NoError(t, fx.pipeline.Run(ctx))
	after, err := afero.ReadFile(fx.fs, articlesFile)
	require.NoError(t, err)
	detailAfter, _ := fx.api.hits()

	assert.Equal(t, string(before), string(after))
	assert.Equal(t, detailBefore, detailAfter, "known articles must not be fetched again")
}

func TestNewsPipeline_FirstPageFailureDegrades(t *testing.T) {
	api := newNewsAPI(20)
	api.failFirst = true
	fx := newNewsFixture(t, api)

	require.NoError(t, fx.pipeline.Run(context.Background()))

	exists, err := afero.Exists(fx.fs, articlesFile)
	require.NoError(t, err)
	assert.False(t, exists)

	detail, skips := api.hits()
	assert.Zero(t, detail)
	assert.Equal(t, []int{0}, skips)
}

func TestNewsPipeline_CorruptStoreFails(t *testing.T) {
	fx := newNewsFixture(t, newNewsAPI(20))
	require.NoError(t, afero.WriteFile(fx.fs, articlesFile, []byte("not json"), 0o644))

	err := fx.pipeline.Run(context.Background())
	require.ErrorIs(t, err, store.ErrCorrupt)
}
