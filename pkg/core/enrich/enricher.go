// Package enrich fetches article bodies for candidates that carry URLs and
// upgrades their summaries, either through a keyed LLM provider or an
// extractive fallback. Fetching is SSRF-gated, per-host rate limited, and
// cached by URL.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/llm"
	"intel_briefing/pkg/core/utils"
)

const (
	fetchTimeout     = 8 * time.Second
	maxBodyBytes     = 2 << 20 // 2MB
	maxSummaryRunes  = 2000
	maxRedirects     = 5
	browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// Config tunes the enricher's pooling and caching behavior.
type Config struct {
	Workers         int
	CacheTTL        time.Duration
	CacheEntries    int
	DomainInterval  time.Duration
	DomainTableSize int
}

func DefaultConfig() Config {
	return Config{
		Workers:         4,
		CacheTTL:        24 * time.Hour,
		CacheEntries:    1000,
		DomainInterval:  500 * time.Millisecond,
		DomainTableSize: 256,
	}
}

// Enricher runs the fetch-extract-summarize path over a candidate batch.
type Enricher struct {
	cfg      Config
	client   *http.Client
	limiter  *HostLimiter
	cache    *summaryCache
	llm      *llm.Manager
	now      func() time.Time
	validate func(context.Context, string) error
}

func NewEnricher(cfg Config, manager *llm.Manager) *Enricher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	e := &Enricher{
		cfg:      cfg,
		limiter:  NewHostLimiter(cfg.DomainInterval, cfg.DomainTableSize),
		cache:    newSummaryCache(cfg.CacheTTL, cfg.CacheEntries),
		llm:      manager,
		now:      time.Now,
		validate: ValidateFetchURL,
	}
	// Redirect targets go through the same gate as the initial URL, otherwise
	// a public page could 302 into a private address.
	e.client = &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return e.validate(req.Context(), req.URL.String())
		},
	}
	return e
}

// Enrich upgrades summaries in place and returns the batch. A failure on one
// candidate never affects the others, and an enriched summary only replaces
// the original when it is strictly longer.
func (e *Enricher) Enrich(ctx context.Context, candidates []domain.Candidate) []domain.Candidate {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i := range candidates {
		c := &candidates[i]
		if c.URL == "" {
			continue
		}
		g.Go(func() error {
			summary, err := e.enrichOne(gctx, c.URL, c.Title)
			if err != nil {
				log.Debug().Err(err).Str("url", c.URL).Msg("enrichment skipped")
				return nil
			}
			if len([]rune(summary)) > len([]rune(c.Summary)) {
				c.Summary = summary
			}
			return nil
		})
	}
	_ = g.Wait()
	return candidates
}

// enrichOne produces a summary for one URL, consulting the cache first.
func (e *Enricher) enrichOne(ctx context.Context, rawURL, title string) (string, error) {
	now := e.now()
	if summary, ok := e.cache.get(rawURL, now); ok {
		return summary, nil
	}

	if err := e.validate(ctx, rawURL); err != nil {
		return "", fmt.Errorf("fetch gate: %w", err)
	}

	parsed, _ := url.Parse(rawURL)
	if wait := e.limiter.Reserve(parsed.Hostname(), now); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	html, err := e.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	paragraphs := ExtractArticleText(html)
	if len(paragraphs) == 0 {
		return "", fmt.Errorf("no article text at %s", rawURL)
	}

	summary := e.summarize(ctx, title, paragraphs)
	if summary == "" {
		return "", fmt.Errorf("summarization yielded nothing for %s", rawURL)
	}
	if runes := []rune(summary); len(runes) > maxSummaryRunes {
		summary = string(runes[:maxSummaryRunes])
	}

	e.cache.put(rawURL, summary, e.now())
	return summary, nil
}

func (e *Enricher) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d for %s", resp.StatusCode, rawURL)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text") {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		// Pages without a charset declaration are usually Latin-1.
		if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body); err == nil {
			body = decoded
		}
	}
	return string(body), nil
}

// summarize tries each keyed provider in order, then falls back to the
// extractive scorer. Provider failures are logged and absorbed.
func (e *Enricher) summarize(ctx context.Context, title string, paragraphs []string) string {
	if e.llm != nil {
		body := strings.Join(paragraphs, "\n\n")
		if runes := []rune(body); len(runes) > 6000 {
			body = string(runes[:6000])
		}
		prompt := fmt.Sprintf(
			"Summarize this article in 2-3 factual sentences. No preamble.\n\nTitle: %s\n\n%s",
			utils.SanitizePromptField(title, 300), body)

		for _, provider := range e.llm.KeyedProviders() {
			response, err := provider.GenerateResponse(ctx, prompt,
				"You are a news summarizer. Respond only with the summary text.", nil)
			if err != nil {
				log.Debug().Err(err).Msg("LLM summarization failed, trying next")
				continue
			}
			if summary := strings.TrimSpace(response); summary != "" {
				return summary
			}
		}
	}
	return ExtractiveSummary(paragraphs, 2)
}
