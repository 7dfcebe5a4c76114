package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/globidx-search/config"
	"github.com/aluiziolira/globidx-search/models"
	"github.com/aluiziolira/globidx-search/parser"
)

// Collector runs one search against the index: discovery, pagination and
// detail enrichment, strictly one request at a time.
type Collector struct {
	cfg     *config.Config
	query   models.Query
	client  *colly.Collector
	cache   *lru.Cache[string, []models.Field]
	Metrics *Metrics

	// sleep paces consecutive requests.
	sleep func(ctx context.Context, d time.Duration) error

	requests  int
	pages     int
	details   int
	cacheHits int

	body     []byte
	fetchErr error
}

// NewCollector builds a collector configured from cfg.
func NewCollector(cfg *config.Config) (*Collector, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	client := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
	)
	client.SetRequestTimeout(cfg.Timeout)
	client.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return ErrRedirect{Location: req.URL.String()}
	})
	client.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	c := &Collector{
		cfg:     cfg,
		query:   cfg.Query(),
		client:  client,
		Metrics: NewMetrics(),
		sleep:   sleepContext,
	}
	if cfg.DetailCacheSize > 0 {
		cache, err := lru.New[string, []models.Field](cfg.DetailCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create detail cache: %w", err)
		}
		c.cache = cache
	}
	c.configureHandlers()
	return c, nil
}

// Run executes the search and returns every collected record in page order.
func (c *Collector) Run(ctx context.Context) (*models.SearchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := &models.SearchResult{StartTime: time.Now()}

	first, err := c.fetch(ctx, phaseDiscovery, c.SearchURL(0))
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	result.TotalRows, result.TotalPages = parser.ParseCounts(string(first))
	slog.Debug("discovered results",
		slog.Int("rows", result.TotalRows),
		slog.Int("pages", result.TotalPages),
	)

	if result.TotalRows > 0 {
		records, err := c.paginate(ctx, first, result.TotalPages)
		if err != nil {
			return nil, err
		}
		if len(records) != result.TotalRows {
			slog.Warn("row count differs from reported total",
				slog.Int("collected", len(records)),
				slog.Int("reported", result.TotalRows),
			)
		}
		if !c.cfg.SkipDetails {
			records, err = c.enrich(ctx, records)
			if err != nil {
				return nil, err
			}
		}
		result.Records = records
	}

	result.EndTime = time.Now()
	result.RequestCount = c.requests
	result.PageCount = c.pages
	result.DetailCount = c.details
	result.CacheHits = c.cacheHits
	return result, nil
}

// SearchURL returns the search URL for a zero-based page.
func (c *Collector) SearchURL(page int) string {
	return SearchURL(c.cfg.BaseURL, c.query, page)
}

func (c *Collector) paginate(ctx context.Context, first []byte, pages int) ([]*models.Record, error) {
	var records []*models.Record
	for page := 0; page < pages; page++ {
		body := first
		if page > 0 {
			var err error
			body, err = c.fetch(ctx, phaseListing, c.SearchURL(page))
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", page, err)
			}
		}

		rows, err := parser.ParseListing(body, c.cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		c.pages++
		c.Metrics.AddRecords(len(rows))
		records = append(records, rows...)
	}
	return records, nil
}

func (c *Collector) enrich(ctx context.Context, records []*models.Record) ([]*models.Record, error) {
	enriched := make([]*models.Record, 0, len(records))
	for _, record := range records {
		link := record.Value(parser.LinkField)
		if link == "" {
			enriched = append(enriched, record)
			continue
		}

		fields, err := c.detail(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("detail %s: %w", link, err)
		}
		for _, f := range fields {
			record.Set(f.Label, f.Value)
		}
		c.details++
		c.Metrics.IncDetails()
		enriched = append(enriched, record)
	}
	return enriched, nil
}

func (c *Collector) detail(ctx context.Context, link string) ([]models.Field, error) {
	if c.cache != nil {
		if fields, ok := c.cache.Get(link); ok {
			c.cacheHits++
			c.Metrics.IncCacheHit()
			return fields, nil
		}
	}

	body, err := c.fetch(ctx, phaseDetail, link)
	if err != nil {
		return nil, err
	}
	fields, err := parser.ParseDetail(body)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(link, fields)
	}
	return fields, nil
}

// fetch issues one GET and returns the buffered body. Every request but the
// first of a run waits for the configured delay.
func (c *Collector) fetch(ctx context.Context, phase, target string) ([]byte, error) {
	if c.requests > 0 {
		if err := c.sleep(ctx, c.query.Delay); err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.requests++

	slog.Debug("downloading", slog.String("url", target), slog.String("phase", phase))
	c.Metrics.IncRequest(phase)

	c.body, c.fetchErr = nil, nil
	start := time.Now()
	err := c.client.Visit(target)
	c.Metrics.ObserveDuration(time.Since(start))
	if c.fetchErr != nil {
		err = c.fetchErr
	}
	if err != nil {
		c.Metrics.IncError(errorTypeLabel(err))
		return nil, err
	}
	return c.body, nil
}

func (c *Collector) configureHandlers() {
	c.client.OnResponse(func(r *colly.Response) {
		c.body = r.Body
	})

	c.client.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		c.fetchErr = classifyError(err, statusCode)

		target := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			target = r.Request.URL.String()
		}
		slog.Error("request error",
			slog.String("url", target),
			slog.String("category", errorTypeLabel(c.fetchErr)),
			slog.Any("error", err),
		)
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
