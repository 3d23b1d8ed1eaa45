// Package transport sends save-state requests to the server. Each request
// carries its own durability policy: blocking requests complete before Save
// returns, non-blocking ones are sent in the background and their outcome
// is only logged.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/openedx/edx-platform-sub027/internal/codec"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
)

// RequestIDHeader carries a per-request UUID.
const RequestIDHeader = "X-Request-ID"

var (
	// ErrClosed is returned by Save after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("transport: unexpected status")
)

// Request is one save-state POST.
type Request struct {
	URL  string
	Data map[string]any
	// Async selects the non-blocking policy.
	Async bool
}

// Policy names the request's policy for logs and metrics.
func (r Request) Policy() string {
	if r.Async {
		return "async"
	}
	return "blocking"
}

// Saver delivers save-state requests.
type Saver interface {
	Save(ctx context.Context, req Request) error
}

// Config configures an HTTP transport. Zero values select defaults.
type Config struct {
	Client  *http.Client
	Timeout time.Duration // per request, default 10s
	// Form sends bodies as application/x-www-form-urlencoded instead of
	// the codec's content type.
	Form    bool
	Codec   codec.Codec
	Breaker *BreakerConfig // nil disables the circuit breaker
	Logger  logging.Logger
	Metrics metrics.MetricsRecorder
}

// BreakerConfig configures the optional circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func (c *Config) defaults() {
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Codec == nil {
		c.Codec = codec.Default
	}
	c.Logger = logging.OrNop(c.Logger)
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
}

// HTTP is a Saver over net/http.
type HTTP struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker[int]

	wg       sync.WaitGroup
	stopCh   chan struct{}
	closed   atomic.Bool
	inflight atomic.Int64
}

// NewHTTP returns an HTTP transport.
func NewHTTP(cfg Config) *HTTP {
	cfg.defaults()
	t := &HTTP{cfg: cfg, stopCh: make(chan struct{})}
	if b := cfg.Breaker; b != nil {
		threshold := b.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		name := b.Name
		if name == "" {
			name = "save-state"
		}
		t.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
			Name:        name,
			MaxRequests: b.MaxRequests,
			Interval:    b.Interval,
			Timeout:     b.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				cfg.Logger.Warn("transport: circuit breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return t
}

// Save sends req. Blocking requests return the delivery error; async
// requests return nil once queued.
func (t *HTTP) Save(ctx context.Context, req Request) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if !req.Async {
		return t.send(ctx, req)
	}

	t.wg.Add(1)
	t.inflight.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.inflight.Add(-1)
		ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		go func() {
			select {
			case <-t.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := t.send(ctx, req); err != nil {
			t.cfg.Logger.Debug("transport: async save dropped", "url", req.URL, "err", err)
		}
	}()
	return nil
}

// InFlight returns the number of async requests not yet finished.
func (t *HTTP) InFlight() int64 { return t.inflight.Load() }

// Wait blocks until every async request has finished.
func (t *HTTP) Wait() { t.wg.Wait() }

// Close stops accepting requests, cancels in-flight async requests and
// waits for them. Safe to call more than once.
func (t *HTTP) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.stopCh)
	t.wg.Wait()
	t.cfg.Client.CloseIdleConnections()
	return nil
}

func (t *HTTP) send(ctx context.Context, req Request) error {
	start := time.Now()
	var err error
	if t.breaker != nil {
		_, err = t.breaker.Execute(func() (int, error) {
			return t.post(ctx, req)
		})
	} else {
		_, err = t.post(ctx, req)
	}
	t.cfg.Metrics.RecordSave(req.Policy(), err == nil)
	t.cfg.Metrics.RecordLatency("transport", req.Policy(), time.Since(start))
	return err
}

func (t *HTTP) post(ctx context.Context, req Request) (int, error) {
	body, contentType, err := t.encode(req.Data)
	if err != nil {
		return 0, fmt.Errorf("transport: encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("transport: build request: %w", err)
	}
	hr.Header.Set("Content-Type", contentType)
	hr.Header.Set("Accept", "application/json")
	hr.Header.Set("X-Requested-With", "XMLHttpRequest")
	hr.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := t.cfg.Client.Do(hr)
	if err != nil {
		return 0, fmt.Errorf("transport: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (t *HTTP) encode(data map[string]any) ([]byte, string, error) {
	if !t.cfg.Form {
		b, err := t.cfg.Codec.Marshal(data)
		return b, t.cfg.Codec.ContentType(), err
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	form := url.Values{}
	for _, k := range keys {
		form.Set(k, fmt.Sprint(data[k]))
	}
	return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
}

// Recorder is a Saver that keeps every request it receives. It never fails
// unless Err is set.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
	Err      error
}

func (r *Recorder) Save(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.Err
}

// Requests returns a copy of the recorded requests.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// Last returns the most recent request.
func (r *Recorder) Last() (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return Request{}, false
	}
	return r.requests[len(r.requests)-1], true
}

// Reset forgets recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requests = nil
	r.mu.Unlock()
}
