// Package outbound buffers notification HTTP requests raised during one unit
// of work and issues them concurrently when that unit of work ends.
//
// A Queue moves through Empty -> Accumulating -> Flushing -> Empty. Senders
// enqueue requests without blocking; the owner of the unit of work calls
// Flush once, which waits until every request has completed or timed out.
// Delivery is best effort: failures are logged and counted, never returned.
package outbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/internal/metrics"
	"github.com/beaconhq/beacon/pkg/config"
)

// DefaultTimeout is the per-request timeout used when none is configured.
const DefaultTimeout = 5 * time.Second

// State is the lifecycle state of a Queue.
type State int

const (
	StateEmpty State = iota
	StateAccumulating
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request is a pending outbound HTTP call. It is not mutated after Enqueue.
type Request struct {
	Method  string
	URI     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// RequestOption configures a queued request.
type RequestOption func(*Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}

// WithBody sets the raw request body.
func WithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithJSONBody sets an already encoded JSON body and the matching
// Content-Type and Accept headers.
func WithJSONBody(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
	}
}

// WithTimeout overrides the queue's default timeout for one request.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		if d > 0 {
			r.Timeout = d
		}
	}
}

// Options configures a Queue.
type Options struct {
	// Timeout is the default per-request timeout.
	Timeout time.Duration
	// MaxConcurrency caps in-flight requests during a flush. Zero means no cap.
	MaxConcurrency int
	// Client is the HTTP client used for delivery. Defaults to NewClient().
	Client *resty.Client
	// Logger receives one record per failed delivery.
	Logger *zap.Logger
	// OnSchedule is called when the first request is enqueued on an empty queue.
	OnSchedule func()
}

// NewClient returns a resty client suited to webhook delivery: no retries and
// no redirect following, so a 3xx response is the final response.
func NewClient() *resty.Client {
	return resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", config.UserAgent()).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
}

// Queue buffers outbound requests for one unit of work.
type Queue struct {
	client         *resty.Client
	timeout        time.Duration
	maxConcurrency int
	logger         *zap.Logger
	onSchedule     func()

	flushMu sync.Mutex // serialises flush rounds

	mu        sync.Mutex
	state     State
	scheduled bool
	pending   []*Request
}

// New creates an empty queue.
func New(opts Options) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = NewClient()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{
		client:         opts.Client,
		timeout:        opts.Timeout,
		maxConcurrency: opts.MaxConcurrency,
		logger:         opts.Logger,
		onSchedule:     opts.OnSchedule,
	}
}

// Enqueue buffers a request. It never blocks on the network.
// Requests enqueued while a flush is running are issued by the next flush.
func (q *Queue) Enqueue(method, uri string, opts ...RequestOption) {
	req := &Request{
		Method:  strings.ToUpper(method),
		URI:     uri,
		Header:  make(http.Header),
		Timeout: q.timeout,
	}
	for _, opt := range opts {
		opt(req)
	}

	q.mu.Lock()
	q.pending = append(q.pending, req)
	schedule := false
	if q.state == StateEmpty {
		q.state = StateAccumulating
	}
	if !q.scheduled {
		q.scheduled = true
		schedule = true
	}
	q.mu.Unlock()

	metrics.OutboundPending.Inc()
	if schedule && q.onSchedule != nil {
		q.onSchedule()
	}
}

// Len returns the number of buffered requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending returns a copy of the buffered requests.
func (q *Queue) Pending() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Request, len(q.pending))
	copy(out, q.pending)
	return out
}

// Result is the outcome of one flushed request.
type Result struct {
	Request    *Request
	StatusCode int
	Duration   time.Duration
	Err        error
}

// FlushResult summarises one flush round.
type FlushResult struct {
	Sent    int
	Failed  int
	Results []Result
}

// Flush issues every buffered request concurrently and waits until all have
// completed or timed out. A failing or hanging request does not cancel its
// siblings, and no error is returned to the caller.
func (q *Queue) Flush(ctx context.Context) FlushResult {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.scheduled = false
	if len(batch) == 0 {
		q.state = StateEmpty
		q.mu.Unlock()
		return FlushResult{}
	}
	q.state = StateFlushing
	q.mu.Unlock()

	metrics.OutboundPending.Sub(float64(len(batch)))
	metrics.OutboundFlushesTotal.Inc()

	results := make([]Result, len(batch))
	var g errgroup.Group
	if q.maxConcurrency > 0 {
		g.SetLimit(q.maxConcurrency)
	}
	for i, req := range batch {
		g.Go(func() error {
			results[i] = q.do(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	q.mu.Lock()
	if len(q.pending) > 0 {
		q.state = StateAccumulating
	} else {
		q.state = StateEmpty
	}
	q.mu.Unlock()

	out := FlushResult{Results: results}
	for _, r := range results {
		if r.Err != nil {
			out.Failed++
		} else {
			out.Sent++
		}
	}
	q.logger.Debug("outbound queue flushed",
		zap.Int("sent", out.Sent),
		zap.Int("failed", out.Failed),
	)
	return out
}

// do performs a single request. It never panics out of the flush goroutine.
func (q *Queue) do(ctx context.Context, req *Request) (res Result) {
	res.Request = req
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Err = &DeliveryError{Method: req.Method, URI: req.URI, Err: fmt.Errorf("panic: %v", p)}
		}
		res.Duration = time.Since(start)
		metrics.OutboundRequestDuration.Observe(res.Duration.Seconds())
		q.record(res)
	}()

	reqCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	r := q.client.R().SetContext(reqCtx)
	for key, values := range req.Header {
		for _, v := range values {
			r.SetHeader(key, v)
		}
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URI)
	if err != nil {
		res.Err = &DeliveryError{Method: req.Method, URI: req.URI, Err: err}
		return res
	}

	res.StatusCode = resp.StatusCode()
	if !resp.IsSuccess() {
		res.Err = &DeliveryError{Method: req.Method, URI: req.URI, StatusCode: res.StatusCode}
	}
	return res
}

func (q *Queue) record(res Result) {
	switch {
	case res.Err == nil:
		metrics.OutboundRequestsTotal.WithLabelValues("success").Inc()
	case res.StatusCode != 0:
		metrics.OutboundRequestsTotal.WithLabelValues("http_error").Inc()
	default:
		metrics.OutboundRequestsTotal.WithLabelValues("transport_error").Inc()
	}

	if res.Err != nil {
		q.logger.Warn("notification delivery failed",
			zap.String("method", res.Request.Method),
			zap.String("uri", res.Request.URI),
			zap.Int("status", res.StatusCode),
			zap.Duration("duration", res.Duration),
			zap.Error(res.Err),
		)
	}
}
