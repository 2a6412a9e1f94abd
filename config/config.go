// Package config loads the scraper configuration from defaults, an optional
// config file, SCRAPER_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chenoh1990/scraping-assignment/browser"
	"github.com/chenoh1990/scraping-assignment/fetcher"
	"github.com/chenoh1990/scraping-assignment/logging"
	"github.com/chenoh1990/scraping-assignment/scraper"
)

const envPrefix = "SCRAPER"

// ErrInvalid is returned when a loaded configuration cannot be used.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	OutputDir string                `mapstructure:"output_dir"`
	Log       logging.Config        `mapstructure:"log"`
	HTTP      HTTPConfig            `mapstructure:"http"`
	Browser   browser.ChromeConfig  `mapstructure:"browser"`
	News      scraper.NewsConfig    `mapstructure:"news"`
	Catalog   scraper.CatalogConfig `mapstructure:"catalog"`
}

type HTTPConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Parallelism int           `mapstructure:"parallelism"`
}

// Option adjusts the viper instance before the config is decoded.
type Option func(*viper.Viper) error

// WithFlag lets a command-line flag override key when the flag was set.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
		return nil
	}
}

// Load reads the configuration. cfgFile is optional; when empty, config.yaml
// is looked up in the working directory and ./config.
func Load(cfgFile string, opts ...Option) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "output_data")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("http.user_agent", "scraping-assignment/1.0 (+https://github.com/chenoh1990/scraping-assignment)")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.parallelism", fetcher.DefaultParallelism)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.op_timeout", "30s")

	v.SetDefault("news.collector_url", "https://www.gov.il/CollectorsWebApi/api/DataCollector/GetResults")
	v.SetDefault("news.collector_type", "news")
	v.SetDefault("news.content_url", "https://www.gov.il/ContentPageWebApi/api/content-pages")
	v.SetDefault("news.culture", "en")
	v.SetDefault("news.page_size", fetcher.DefaultPageSize)
	v.SetDefault("news.first_chunk_size", 100)
	v.SetDefault("news.chunk_size", 50)
	v.SetDefault("news.output_file", "articles.json")

	v.SetDefault("catalog.url", "https://www.paneco.co.il/whiskey")
	v.SetDefault("catalog.output_file", "whiskey_data.json")
	v.SetDefault("catalog.max_scroll_attempts", 60)
	v.SetDefault("catalog.scroll_pause", "2s")
	v.SetDefault("catalog.element_timeout", "10s")
	v.SetDefault("catalog.ready_timeout", "15s")
	v.SetDefault("catalog.checkpoint_every", scraper.DefaultCheckpointEvery)
	for name, sel := range selectorDefaults() {
		v.SetDefault("catalog.selectors."+name+".by", sel.By.String())
		v.SetDefault("catalog.selectors."+name+".value", sel.Value)
	}
}

func selectorDefaults() map[string]browser.Selector {
	s := scraper.DefaultCatalogSelectors()
	return map[string]browser.Selector{
		"overlay":         s.Overlay,
		"overlay_dismiss": s.OverlayDismiss,
		"load_indicator":  s.LoadIndicator,
		"item":            s.Item,
		"name":            s.Name,
		"price":           s.Price,
		"old_price":       s.OldPrice,
		"special_price":   s.SpecialPrice,
		"volume":          s.Volume,
		"link":            s.Link,
		"page_ready":      s.PageReady,
		"image_container": s.ImageContainer,
		"image":           s.Image,
		"description":     s.Description,
	}
}

// Validate rejects settings the pipelines cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.OutputDir == "" {
		problems = append(problems, "output_dir is empty")
	}
	if c.HTTP.Parallelism <= 0 {
		problems = append(problems, "http.parallelism must be positive")
	}
	if c.HTTP.Timeout <= 0 {
		problems = append(problems, "http.timeout must be positive")
	}
	if c.News.CollectorURL == "" || c.News.ContentURL == "" {
		problems = append(problems, "news.collector_url and news.content_url are required")
	}
	if c.News.PageSize <= 0 || c.News.FirstChunkSize <= 0 || c.News.ChunkSize <= 0 {
		problems = append(problems, "news page and chunk sizes must be positive")
	}
	if c.Catalog.URL == "" {
		problems = append(problems, "catalog.url is required")
	}
	if c.Catalog.MaxScrollAttempts <= 0 || c.Catalog.CheckpointEvery <= 0 {
		problems = append(problems, "catalog.max_scroll_attempts and catalog.checkpoint_every must be positive")
	}
	if c.Catalog.Selectors.Item.IsZero() || c.Catalog.Selectors.Link.IsZero() {
		problems = append(problems, "catalog.selectors.item and catalog.selectors.link are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// NewsPath is where the article collection is stored.
func (c *Config) NewsPath() string {
	return c.outputPath(c.News.OutputFile)
}

// CatalogPath is where the product collection is stored.
func (c *Config) CatalogPath() string {
	return c.outputPath(c.Catalog.OutputFile)
}

func (c *Config) outputPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.OutputDir, file)
}

// FetcherConfig returns the HTTP settings of the news fetcher.
func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		UserAgent:   c.HTTP.UserAgent,
		Timeout:     c.HTTP.Timeout,
		Parallelism: c.HTTP.Parallelism,
		ContentURL:  c.News.ContentURL,
		Culture:     c.News.Culture,
	}
}
