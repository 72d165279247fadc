package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/username/wombats/backend/src/logger"
	"golang.org/x/time/rate"
)

// ErrQueueClosed is returned by Enqueue after Close has been called.
var ErrQueueClosed = errors.New("quote request queue is closed")

const maxResponseBodyBytes = 1 << 20

// QueueResponse is the raw provider reply handed back to the caller.
// A throttled reply (HTTP 429) is a normal QueueResponse, not an
// error; the queue keeps processing after one.
type QueueResponse struct {
	StatusCode int
	Body       []byte
}

// Throttled reports whether the provider rejected the request with a
// rate-limit signal.
func (r *QueueResponse) Throttled() bool {
	return r.StatusCode == http.StatusTooManyRequests
}

// OK reports whether the provider answered with HTTP 200.
func (r *QueueResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

type queueResult struct {
	resp *QueueResponse
	err  error
}

type quoteRequest struct {
	url string
	// Buffered with capacity 1 so an abandoned caller never blocks the
	// worker: the in-flight request completes and its result is dropped.
	replyCh chan queueResult
}

// QuoteRequestQueue serializes outbound calls to the quote provider.
// A single worker goroutine drains a FIFO channel, so there is never
// more than one request in flight and requests are serviced strictly
// in enqueue order. The spacing interval is waited out before each
// call is issued, which makes it a leading-edge guarantee: the starts
// of consecutive provider calls are at least the configured spacing
// apart. An empty queue leaves the worker blocked on the channel; no
// polling.
type QuoteRequestQueue struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	requests   chan quoteRequest

	workerCtx context.Context
	stop      context.CancelFunc
	closeOnce sync.Once
}

// NewQuoteRequestQueue starts the worker goroutine. A nil client gets
// a default with a 20s timeout. depth bounds how many requests may
// wait; Enqueue blocks (or honors its context) when the queue is full.
func NewQuoteRequestQueue(spacing time.Duration, depth int, client *http.Client) *QuoteRequestQueue {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if depth <= 0 {
		depth = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &QuoteRequestQueue{
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Every(spacing), 1),
		requests:   make(chan quoteRequest, depth),
		workerCtx:  ctx,
		stop:       cancel,
	}
	go q.process()
	return q
}

// Enqueue submits a GET for url and waits for the provider's reply.
// Cancelling ctx abandons the wait without disturbing the queue; a
// still-pending entry is allowed to complete and is simply ignored.
func (q *QuoteRequestQueue) Enqueue(ctx context.Context, url string) (*QueueResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-q.workerCtx.Done():
		return nil, ErrQueueClosed
	default:
	}

	req := quoteRequest{url: url, replyCh: make(chan queueResult, 1)}
	select {
	case q.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.workerCtx.Done():
		return nil, ErrQueueClosed
	}

	select {
	case res := <-req.replyCh:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.workerCtx.Done():
		// The worker may have stopped between accepting the request and
		// answering it; a buffered reply, if any, is preferred.
		select {
		case res := <-req.replyCh:
			return res.resp, res.err
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Close stops the worker. Requests already waiting in the channel are
// answered with ErrQueueClosed.
func (q *QuoteRequestQueue) Close() {
	q.closeOnce.Do(q.stop)
}

func (q *QuoteRequestQueue) process() {
	for {
		select {
		case <-q.workerCtx.Done():
			q.drain()
			return
		case req := <-q.requests:
			if err := q.limiter.Wait(q.workerCtx); err != nil {
				req.replyCh <- queueResult{err: ErrQueueClosed}
				q.drain()
				return
			}
			resp, err := q.doRequest(req.url)
			req.replyCh <- queueResult{resp: resp, err: err}
		}
	}
}

func (q *QuoteRequestQueue) drain() {
	for {
		select {
		case req := <-q.requests:
			req.replyCh <- queueResult{err: ErrQueueClosed}
		default:
			return
		}
	}
}

func (q *QuoteRequestQueue) doRequest(url string) (*QueueResponse, error) {
	resp, err := q.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("quote provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading quote provider response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		logger.L.Warn("Quote provider throttled request", "url", url)
	}
	return &QueueResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
