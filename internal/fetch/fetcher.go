// Package fetch loads job posting HTML, consulting the content-addressable
// page cache before touching the network.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/resilience"
	"github.com/sells-group/jobintel/internal/store"
	"github.com/sells-group/jobintel/internal/urlnorm"
)

// Error is a typed transport failure from a job board.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cleaner reduces raw HTML to extraction-ready text.
type Cleaner interface {
	Clean(rawHTML string) (string, error)
}

// Fetcher loads pages cache-first and rate-limits per host on misses.
type Fetcher struct {
	store   store.Store
	cleaner Cleaner
	client  *http.Client
	cfg     config.FetchConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Result is a loaded page plus its provenance.
type Result struct {
	Entry     *model.CachedHTML
	FromCache bool
}

// New creates a Fetcher with separate connect and request timeouts.
func New(st store.Store, cleaner Cleaner, cfg config.FetchConfig) *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout(),
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout(),
		MaxIdleConnsPerHost: 4,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return eris.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		store:    st,
		cleaner:  cleaner,
		client:   client,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Load returns the page for the given posting URL. A valid cache entry
// short-circuits the network entirely; a miss downloads, cleans, and
// persists a new entry keyed by content hash.
func (f *Fetcher) Load(ctx context.Context, jobID, rawURL string) (*Result, error) {
	normalized := urlnorm.Normalize(rawURL)

	cached, err := f.store.GetValidCachedHTML(ctx, jobID, normalized)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: cache lookup")
	}
	if cached != nil {
		zap.L().Debug("html cache hit",
			zap.String("job_id", jobID),
			zap.String("url", normalized),
			zap.String("content_hash", cached.ContentHash),
		)
		return &Result{Entry: cached, FromCache: true}, nil
	}

	rawHTML, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(rawHTML))
	hash := hex.EncodeToString(sum[:])

	cleaned := rawHTML
	if f.cleaner != nil {
		cleaned, err = f.cleaner.Clean(rawHTML)
		if err != nil {
			return nil, eris.Wrap(err, "fetch: clean html")
		}
	}

	now := time.Now().UTC()
	entry, err := f.store.CreateOrFindCachedHTML(ctx, &model.CachedHTML{
		JobID:         jobID,
		NormalizedURL: normalized,
		ContentHash:   hash,
		RawHTML:       rawHTML,
		CleanedHTML:   cleaned,
		FetchedAt:     now,
		ExpiresAt:     now.Add(f.cfg.CacheTTL()),
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch: cache write")
	}

	zap.L().Info("fetched job posting",
		zap.String("job_id", jobID),
		zap.String("url", normalized),
		zap.String("content_hash", hash),
		zap.Int("raw_bytes", len(rawHTML)),
		zap.Int("cleaned_bytes", len(cleaned)),
	)
	return &Result{Entry: entry, FromCache: false}, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	if err := f.limiter(req.URL.Host).Wait(ctx); err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cause := eris.Errorf("unexpected status %s", resp.Status)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", &Error{URL: rawURL, StatusCode: resp.StatusCode,
				Err: resilience.NewTransientError(cause, resp.StatusCode)}
		}
		return "", &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: cause}
	}

	maxBytes := f.cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	if int64(len(body)) > maxBytes {
		return "", &Error{URL: rawURL, Err: eris.Errorf("body exceeds %d bytes", maxBytes)}
	}
	return string(body), nil
}

// limiter returns the shared rate limiter for a host, creating it on first use.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		perSec := f.cfg.HostRatePerSec
		if perSec <= 0 {
			perSec = 1
		}
		burst := f.cfg.HostRateBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(perSec), burst)
		f.limiters[host] = l
	}
	return l
}
