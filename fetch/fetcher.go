// Package fetch keeps a fresh copy of the remote document. A Fetcher polls
// the snapshot endpoint on a fixed interval and refreshes on demand; when a
// fetch fails the last good document stays available and is only flagged
// stale. Local overrides are never touched here.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

const (
	defaultInterval = 60 * time.Second
	defaultTimeout  = 15 * time.Second
)

// State is the fetcher's current knowledge of the remote document.
type State struct {
	// Doc is the last successfully fetched document, nil before the first
	// success.
	Doc *domain.Document
	// Raw is the document exactly as served.
	Raw []byte
	// Stale is set when the most recent fetch failed; Doc then still holds
	// the previous snapshot.
	Stale bool
	// Err is the failure behind Stale, nil otherwise.
	Err error
}

// Fetcher polls GET /api/status.
type Fetcher struct {
	url      string
	token    string
	http     *http.Client
	interval time.Duration
	logger   *log.Logger

	mu      sync.RWMutex
	state   State
	updates chan struct{}
}

// Option adjusts fetcher construction.
type Option func(*Fetcher)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(f *Fetcher) { f.interval = d }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.http.Timeout = d }
}

func New(baseURL, token string, logger *log.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		url:      baseURL + "/api/status",
		token:    token,
		http:     &http.Client{Timeout: defaultTimeout},
		interval: defaultInterval,
		logger:   logger,
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current snapshot knowledge.
func (f *Fetcher) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Updates signals after every successful fetch. The channel is buffered and
// never blocks the fetch loop.
func (f *Fetcher) Updates() <-chan struct{} { return f.updates }

// Run polls until ctx is cancelled, starting with an immediate fetch.
func (f *Fetcher) Run(ctx context.Context) {
	if err := f.Refresh(ctx); err != nil {
		f.logger.WithField("error", err.Error()).Warn("initial snapshot fetch failed")
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.WithField("error", err.Error()).Debug("snapshot fetch failed")
			}
		}
	}
}

// Refresh fetches once, immediately. Safe to call concurrently with Run.
func (f *Fetcher) Refresh(ctx context.Context) error {
	raw, err := f.fetch(ctx)
	if err != nil {
		f.markStale(err)
		return err
	}
	doc := &domain.Document{}
	if err := sonic.ConfigStd.Unmarshal(raw, doc); err != nil {
		err = fmt.Errorf("decode snapshot: %w", domain.ErrParse)
		f.markStale(err)
		return err
	}

	f.mu.Lock()
	f.state = State{Doc: doc, Raw: raw}
	f.mu.Unlock()

	select {
	case f.updates <- struct{}{}:
	default:
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return raw, nil
}

// markStale keeps the last good document and records the failure.
func (f *Fetcher) markStale(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Stale = true
	f.state.Err = err
}

// WatchRedis refreshes whenever the server broadcasts an invalidation on
// channel, so edits made elsewhere show up without waiting out the poll
// interval. Blocks until ctx is cancelled.
func (f *Fetcher) WatchRedis(ctx context.Context, client *redis.Client, channel string) {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := f.Refresh(ctx); err != nil {
				f.logger.WithField("error", err.Error()).Debug("invalidation refresh failed")
			}
		}
	}
}
