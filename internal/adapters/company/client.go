// Package company is the HTTP adapter to the external company registry.
// It answers a single question, whether a company id exists, and keeps
// "definitely absent" apart from every other failure.
package company

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"company_reviews/internal/adapters/observability"
	"company_reviews/internal/domain"
)

var (
	ErrNotFound     = errors.New("company: not found")
	ErrUnauthorized = errors.New("company: unauthorized")
	ErrForbidden    = errors.New("company: forbidden")
	ErrMalformed    = errors.New("company: malformed response")
)

const (
	maxAttempts          = 4
	defaultLookupTimeout = 15 * time.Second
)

type Client struct {
	base    string
	key     string
	hc      *http.Client
	rl      *rate.Limiter
	backoff time.Duration
	// bounds a shared lookup, which outlives any single caller's context
	lookupTimeout time.Duration

	group singleflight.Group
	known *gocache.Cache // ids confirmed to exist
}

type Option func(*Client)

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithBackoffBase sets the first retry delay; later attempts double it.
func WithBackoffBase(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

// WithLookupTimeout bounds one registry lookup, retries included.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

// New builds a client for the registry at base. knownTTL controls how long a
// positive answer is remembered; zero disables memoisation.
func New(base, key string, rps int, knownTTL time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("company registry base URL is required")
	}
	if rps <= 0 {
		rps = 20
	}
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		key:     key,
		hc:      &http.Client{Timeout: 10 * time.Second},
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
		backoff: 200 * time.Millisecond,

		lookupTimeout: defaultLookupTimeout,
	}
	if knownTTL > 0 {
		c.known = gocache.New(knownTTL, 2*knownTTL)
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Exists implements domain.CompanyValidator.
func (c *Client) Exists(ctx context.Context, companyID int64) domain.CompanyCheck {
	key := strconv.FormatInt(companyID, 10)
	if c.known != nil {
		if _, ok := c.known.Get(key); ok {
			observability.ObserveCache("company", "hit")
			observability.ObserveCompanyCheck(domain.CompanyExists.String())
			return domain.CheckOK()
		}
	}

	// shared by concurrent callers for the id; each stops waiting on its own ctx
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()
		return c.lookup(lctx, companyID), nil
	})

	var res domain.CompanyCheck
	select {
	case <-ctx.Done():
		res = domain.CheckFailed(ctx.Err())
	case r := <-ch:
		res = r.Val.(domain.CompanyCheck)
	}

	if res.Status == domain.CompanyExists && c.known != nil {
		c.known.SetDefault(key, struct{}{})
	}
	observability.ObserveCompanyCheck(res.Status.String())
	return res
}

func (c *Client) lookup(ctx context.Context, companyID int64) domain.CompanyCheck {
	var body struct {
		ID *int64 `json:"id"`
	}
	err := c.get(ctx, fmt.Sprintf("%s/companies/%d", c.base, companyID), &body)
	if err == nil && body.ID == nil {
		err = fmt.Errorf("%w: company %d: response has no id", ErrMalformed, companyID)
	}
	switch {
	case err == nil:
		return domain.CheckOK()
	case errors.Is(err, ErrNotFound):
		return domain.CheckNotFound()
	default:
		return domain.CheckFailed(err)
	}
}

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, url string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		last := i == maxAttempts-1

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "company-reviews/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("company", "get_company", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if !last && sleepCtx(ctx, c.delay(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("company", "get_company", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = c.delay(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if !last && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

func (c *Client) delay(i int) time.Duration { return backoff(c.backoff, i) }

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles base per attempt and adds up to +50% jitter.
func backoff(base time.Duration, i int) time.Duration {
	d := time.Duration(1<<i) * base
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return d
	}
	f := float64(b[0]) / 255.0
	return d + time.Duration(0.5*f*float64(d))
}
