// Package content fetches help and marketing pages from the content API,
// caching each rendered page for a while.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("page not found")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,99}$`)

type Page struct {
	Slug  string `json:"slug"`
	Lang  string `json:"lang"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Cache is the shared TTL cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Client struct {
	http  *resty.Client
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func New(baseURL string, timeout, ttl time.Duration, cache Cache, log *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("User-Agent", "NotifyAdmin/1.0").
			SetTimeout(timeout),
		cache: cache,
		ttl:   ttl,
		log:   log.Named("content"),
	}
}

func cacheKey(lang, slug string) string {
	return "content:" + lang + ":" + slug
}

// wpPage is the subset of a WordPress page the admin renders.
type wpPage struct {
	Slug  string `json:"slug"`
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Rendered string `json:"rendered"`
	} `json:"content"`
}

// Page returns the page for slug in lang, from the cache when present.
func (c *Client) Page(ctx context.Context, slug, lang string) (Page, error) {
	if !slugPattern.MatchString(slug) {
		return Page{}, ErrNotFound
	}
	key := cacheKey(lang, slug)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("content cache read failed", zap.String("slug", slug), zap.Error(err))
	} else if ok {
		var p Page
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return p, nil
		}
	}

	var pages []wpPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"slug": slug, "lang": lang}).
		SetResult(&pages).
		ForceContentType("application/json").
		Get("/wp-json/wp/v2/pages")
	if err != nil {
		return Page{}, fmt.Errorf("content api: %w", err)
	}
	if resp.IsError() {
		return Page{}, fmt.Errorf("content api error (%d)", resp.StatusCode())
	}
	if len(pages) == 0 {
		return Page{}, ErrNotFound
	}

	p := Page{Slug: slug, Lang: lang, Title: pages[0].Title.Rendered, HTML: pages[0].Content.Rendered}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.log.Warn("content cache write failed", zap.String("slug", slug), zap.Error(err))
		}
	}
	return p, nil
}
