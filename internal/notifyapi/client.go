// Package notifyapi is the client for the Notify backend API, which owns
// services, templates, users, jobs and notifications.
package notifyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"NotifyAdmin/internal/config"
	"NotifyAdmin/internal/metrics"
)

// tokenTTL is shorter than the 30 second window in which the API accepts
// a token's iat.
const tokenTTL = 25 * time.Second

// TokenCache is the shared cache holding signed admin tokens.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Client struct {
	http     *resty.Client
	clientID string
	secret   []byte
	limiter  *rate.Limiter
	retries  uint64
	tokens   TokenCache
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg *config.Config, tokens TokenCache, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIHostName, "/")).
		SetHeader("User-Agent", "NotifyAdmin/1.0").
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.APITimeout)

	limit := rate.Limit(cfg.APIRateLimit)
	if cfg.APIRateLimit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		http:     httpClient,
		clientID: cfg.AdminClientID,
		secret:   []byte(cfg.AdminClientSecret),
		limiter:  rate.NewLimiter(limit, max(1, cfg.APIRateLimit)),
		retries:  uint64(max(0, cfg.APIRetryAttempts)),
		tokens:   tokens,
		log:      log.Named("notify-api"),
		now:      time.Now,
	}
}

func (c *Client) tokenKey() string {
	return "token:" + c.clientID
}

// token returns a signed admin token, reusing a cached one while it is
// fresh. Cache failures fall back to signing a new token.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens != nil {
		tok, ok, err := c.tokens.Get(ctx, c.tokenKey())
		if err != nil {
			c.log.Warn("token cache read failed", zap.Error(err))
		}
		if ok {
			return tok, nil
		}
	}

	claims := jwt.MapClaims{
		"iss": c.clientID,
		"iat": c.now().Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if c.tokens != nil {
		if err := c.tokens.Set(ctx, c.tokenKey(), tok, tokenTTL); err != nil {
			c.log.Warn("token cache write failed", zap.Error(err))
		}
	}
	return tok, nil
}

// call sends one request. endpoint is a low-cardinality name for metrics.
// GETs are retried on transport errors and 5xx responses.
func (c *Client) call(ctx context.Context, method, endpoint, path string, body, out any) error {
	attempt := func() error {
		err := c.once(ctx, method, endpoint, path, body, out)
		if err == nil {
			return nil
		}
		if method != http.MethodGet || !errors.Is(err, ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	if method != http.MethodGet || c.retries == 0 {
		err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx))
}

func (c *Client) once(ctx context.Context, method, endpoint, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok)
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		metrics.RecordBackendRequest(endpoint, 0, start)
		return fmt.Errorf("%s: %w: %v", endpoint, ErrUnavailable, err)
	}
	metrics.RecordBackendRequest(endpoint, resp.StatusCode(), start)

	if resp.IsError() {
		apiErr := parseError(resp.StatusCode(), resp.Body())
		if apiErr.Status >= 500 {
			c.log.Warn("notify api error",
				zap.String("endpoint", endpoint),
				zap.Int("status", apiErr.Status),
			)
		}
		return fmt.Errorf("%s: %w", endpoint, apiErr)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}
