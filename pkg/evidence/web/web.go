// Package web turns a list of seed URLs into evidence by fetching each
// page and extracting its readable text.
package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	gUtil "github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const maxBodySize = 8 << 20

// Seed is a page to fetch. Title and PublishedAt are kept when set.
type Seed struct {
	URL         string    `json:"url" validate:"required,url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Collector fetches seed pages with a per-domain rate limit and caches the
// extracted text, so repeated runs over the same seeds hit the network once.
type Collector struct {
	seeds      []Seed
	client     *http.Client
	batchSize  int
	parallel   int
	maxExcerpt int

	cache *gocache.Cache
	group singleflight.Group

	rps        rate.Limit
	burst      int
	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

// NewCollectorParams configures a Collector.
//
// PerDomainRate is the number of requests per second allowed against one
// host; zero means no limit. MaxExcerptChars truncates page text.
type NewCollectorParams struct {
	Seeds           []Seed
	HTTPClient      *http.Client
	BatchSize       int
	Parallel        int
	PerDomainRate   float64
	PerDomainBurst  int
	CacheTTL        time.Duration
	MaxExcerptChars int
}

func NewCollector(params NewCollectorParams) *Collector {
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	maxExcerpt := params.MaxExcerptChars
	if maxExcerpt <= 0 {
		maxExcerpt = 4000
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	rps := rate.Inf
	if params.PerDomainRate > 0 {
		rps = rate.Limit(params.PerDomainRate)
	}

	return &Collector{
		seeds:      params.Seeds,
		client:     client,
		batchSize:  batchSize,
		parallel:   parallel,
		maxExcerpt: maxExcerpt,
		cache:      gocache.New(ttl, 2*ttl),
		rps:        rps,
		burst:      max(params.PerDomainBurst, 1),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Collect implements evidence.Collector. Pages that cannot be fetched are
// logged and skipped, as are pages that do not mention the query.
func (c *Collector) Collect(ctx context.Context, query string, emit evidence.EmitFunc) error {
	for start := 0; start < len(c.seeds); start += c.batchSize {
		seeds := c.seeds[start:min(start+c.batchSize, len(c.seeds))]
		fetched := make([]*common.Evidence, len(seeds))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.parallel)
		for i, seed := range seeds {
			g.Go(func() error {
				ev, err := c.Fetch(gctx, seed)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					logger.Warn("[Web] Skipping page", "url", seed.URL, "err", err)
					return nil
				}
				fetched[i] = &ev
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		batch := make([]common.Evidence, 0, len(seeds))
		for _, ev := range fetched {
			if ev != nil && evidence.MatchesQuery(*ev, query) {
				batch = append(batch, *ev)
			}
		}
		if len(batch) == 0 {
			continue
		}
		if err := emit(batch); err != nil {
			return err
		}
	}
	return nil
}

// Fetch turns one seed into an evidence item. Concurrent fetches of the
// same URL share one request.
func (c *Collector) Fetch(ctx context.Context, seed Seed) (common.Evidence, error) {
	u, err := url.Parse(strings.TrimSpace(seed.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return common.Evidence{}, fmt.Errorf("invalid seed url %q", seed.URL)
	}
	key := u.String()

	text, err := c.pageText(ctx, u)
	if err != nil {
		return common.Evidence{}, err
	}

	title := strings.TrimSpace(seed.Title)
	if title == "" {
		title, text = splitTitle(text)
	}
	return common.Evidence{
		ID:          EvidenceID(key),
		Title:       title,
		URL:         key,
		Excerpt:     truncate(text, c.maxExcerpt),
		PublishedAt: seed.PublishedAt,
	}, nil
}

func (c *Collector) pageText(ctx context.Context, u *url.URL) (string, error) {
	key := u.String()
	if cached, ok := c.cache.Get(key); ok {
		return cached.(string), nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.cache.Get(key); ok {
			return cached.(string), nil
		}
		if err := c.limiter(u.Host).Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
		}
		body := io.LimitReader(resp.Body, maxBodySize)

		var text string
		contentType := resp.Header.Get("Content-Type")
		switch {
		case strings.Contains(contentType, "text/html"):
			article, err := readability.FromReader(body, u)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			text = builder.String()
		case strings.HasPrefix(contentType, "text/"), contentType == "":
			raw, err := io.ReadAll(body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			text = string(raw)
		default:
			return nil, fmt.Errorf("unsupported content type %q", contentType)
		}

		text = strings.TrimSpace(gUtil.SanitizeText(text))
		if text == "" {
			return nil, errors.New("page has no text")
		}
		c.cache.SetDefault(key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Collector) limiter(host string) *rate.Limiter {
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = l
	}
	return l
}

// EvidenceID derives a stable evidence id from a page URL, so fetching the
// same page twice never adds it to a session twice.
func EvidenceID(pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return "web-" + hex.EncodeToString(sum[:8])
}

func splitTitle(text string) (string, string) {
	first, rest, found := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if !found || utf8.RuneCountInString(first) > 200 {
		return "", text
	}
	return first, strings.TrimSpace(rest)
}

func truncate(text string, maxChars int) string {
	text = gUtil.CollapseWhitespace(text)
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:maxChars])
	if i := strings.LastIndexAny(cut, ".!?"); i > maxChars/2 {
		return cut[:i+1]
	}
	return cut
}
