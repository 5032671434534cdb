// Package uploader groups events into per-index batches and writes them with
// bounded retries. Delivery is at-least-once: a retried batch may be
// persisted twice.
package uploader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
	"github.com/mosajjal/ocsf-composer/pkg/storage"
)

// Config holds batching and retry settings
type Config struct {
	BatchSize int
	// MaxAttempts counts every bulk request made for one batch, the first included
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
}

// Validate checks the settings
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.BackoffBase < 0 || c.BackoffMax < 0 {
		return fmt.Errorf("backoff intervals must not be negative")
	}
	return nil
}

// Document is an event bound for an index
type Document struct {
	Index    string
	ClassUID int
	Event    ocsf.Event
}

// Rejection is a document the destination refused
type Rejection struct {
	Position  int
	ClassUID  int
	Status    int
	ErrorType string
	Reason    string
}

// PartialRejectionError lists the documents of a batch the destination refused
type PartialRejectionError struct {
	Index      string
	Total      int
	Rejections []Rejection
}

func (e *PartialRejectionError) Error() string {
	first := e.Rejections[0]
	return fmt.Sprintf("%d of %d documents rejected by %s: position %d: %s: %s",
		len(e.Rejections), e.Total, e.Index, first.Position, first.ErrorType, first.Reason)
}

// Tally counts the fate of documents
type Tally struct {
	Accepted      int
	Rejected      int
	Failed        int
	NotDispatched int
}

// Add accumulates o into t
func (t *Tally) Add(o Tally) {
	t.Accepted += o.Accepted
	t.Rejected += o.Rejected
	t.Failed += o.Failed
	t.NotDispatched += o.NotDispatched
}

// BatchResult is the outcome of one batch
type BatchResult struct {
	Index      string
	Documents  []Document
	Accepted   int
	Rejections []Rejection
	Attempts   int
	// Dispatched is false when the batch was dropped before any request
	Dispatched bool
	// Err is the final TransportError, a PartialRejectionError, or the
	// cancellation that kept the batch from being sent
	Err error
}

// Failed reports whether no document of a dispatched batch was persisted
// because every attempt failed
func (r *BatchResult) Failed() bool {
	return r.Dispatched && r.Accepted == 0 && len(r.Rejections) == 0 && r.Err != nil
}

// Tally splits the batch outcome by class
func (r *BatchResult) Tally() map[int]Tally {
	out := make(map[int]Tally)
	rejected := make(map[int]bool, len(r.Rejections))
	for _, rej := range r.Rejections {
		rejected[rej.Position] = true
	}
	for i, doc := range r.Documents {
		t := out[doc.ClassUID]
		switch {
		case !r.Dispatched:
			t.NotDispatched++
		case r.Failed():
			t.Failed++
		case rejected[i]:
			t.Rejected++
		default:
			t.Accepted++
		}
		out[doc.ClassUID] = t
	}
	return out
}

// Option configures an Uploader
type Option func(*Uploader)

// WithDeadLetter stores failed and rejected documents in backend
func WithDeadLetter(backend storage.StorageBackend) Option {
	return func(u *Uploader) { u.deadLetter = backend }
}

// WithBatchCallback calls fn once for every resolved batch
func WithBatchCallback(fn func(*BatchResult)) Option {
	return func(u *Uploader) { u.onBatch = fn }
}

// Uploader buffers documents per index. It is safe for concurrent use:
// buffers are guarded by one lock, and requests and backoff sleeps happen
// outside it.
type Uploader struct {
	cfg        Config
	writer     sink.BulkWriter
	deadLetter storage.StorageBackend
	onBatch    func(*BatchResult)
	sleep      func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	buffers map[string][]Document
}

// New returns an Uploader writing through writer
func New(writer sink.BulkWriter, cfg Config, opts ...Option) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u := &Uploader{
		cfg:     cfg,
		writer:  writer,
		sleep:   sleepCtx,
		buffers: make(map[string][]Document),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// BatchSize returns the configured batch size
func (u *Uploader) BatchSize() int {
	return u.cfg.BatchSize
}

// Fork returns an Uploader with its own empty buffers that shares the
// writer, settings and options of u. Callers that must account for their
// own documents, like concurrent runs, each write through a fork.
func (u *Uploader) Fork() *Uploader {
	return &Uploader{
		cfg:        u.cfg,
		writer:     u.writer,
		deadLetter: u.deadLetter,
		onBatch:    u.onBatch,
		sleep:      u.sleep,
		buffers:    make(map[string][]Document),
	}
}

// WithBatchSize returns a fork of u that cuts batches of n documents
func (u *Uploader) WithBatchSize(n int) (*Uploader, error) {
	cfg := u.cfg
	cfg.BatchSize = n
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := u.Fork()
	f.cfg = cfg
	return f, nil
}

// Submit buffers doc. When its index buffer reaches the batch size the batch
// is written before Submit returns and its result is returned; otherwise the
// result is nil.
func (u *Uploader) Submit(ctx context.Context, doc Document) *BatchResult {
	u.mu.Lock()
	buf := append(u.buffers[doc.Index], doc)
	if len(buf) < u.cfg.BatchSize {
		u.buffers[doc.Index] = buf
		u.mu.Unlock()
		return nil
	}
	delete(u.buffers, doc.Index)
	u.mu.Unlock()

	return u.write(ctx, doc.Index, buf)
}

// Flush writes every partially filled batch, in index order
func (u *Uploader) Flush(ctx context.Context) []*BatchResult {
	u.mu.Lock()
	pending := u.buffers
	u.buffers = make(map[string][]Document)
	u.mu.Unlock()

	indices := make([]string, 0, len(pending))
	for index := range pending {
		indices = append(indices, index)
	}
	sort.Strings(indices)

	results := make([]*BatchResult, 0, len(indices))
	for _, index := range indices {
		results = append(results, u.write(ctx, index, pending[index]))
	}
	return results
}

// UploadResult aggregates the batches of one Upload call
type UploadResult struct {
	Batches    int
	Tally      Tally
	Rejections map[string][]Rejection
	Errors     []error
}

func (r *UploadResult) add(b *BatchResult) {
	r.Batches++
	for _, t := range b.Tally() {
		r.Tally.Add(t)
	}
	if len(b.Rejections) > 0 {
		r.Rejections[b.Index] = append(r.Rejections[b.Index], b.Rejections...)
	}
	if b.Err != nil {
		r.Errors = append(r.Errors, b.Err)
	}
}

// Upload drains docs into batches until the channel closes or ctx is done,
// then flushes what is left. Documents still queued on the channel when ctx
// is done are counted as not dispatched.
func (u *Uploader) Upload(ctx context.Context, docs <-chan Document) *UploadResult {
	res := &UploadResult{Rejections: make(map[string][]Rejection)}
loop:
	for {
		select {
		case <-ctx.Done():
			if n := drain(docs); n > 0 {
				res.Tally.NotDispatched += n
				res.Errors = append(res.Errors, fmt.Errorf("%d queued documents not dispatched: %w", n, ctx.Err()))
			}
			break loop
		case doc, ok := <-docs:
			if !ok {
				break loop
			}
			if b := u.Submit(ctx, doc); b != nil {
				res.add(b)
			}
		}
	}
	for _, b := range u.Flush(ctx) {
		res.add(b)
	}
	return res
}

// drain empties whatever is queued on docs without waiting for more
func drain(docs <-chan Document) int {
	n := 0
	for {
		select {
		case _, ok := <-docs:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (u *Uploader) write(ctx context.Context, index string, docs []Document) *BatchResult {
	res := &BatchResult{Index: index, Documents: docs}
	logger := log.With().Str("index", index).Int("documents", len(docs)).Logger()

	if err := ctx.Err(); err != nil {
		res.Err = err
		logger.Warn().Err(err).Msg("batch not dispatched")
		u.resolve(ctx, res)
		return res
	}
	res.Dispatched = true

	events := make([]ocsf.Event, len(docs))
	for i, doc := range docs {
		events[i] = doc.Event
	}

	var resp *sink.BulkResponse
	for {
		res.Attempts++
		var err error
		resp, err = u.attempt(ctx, index, events)
		if err == nil {
			break
		}
		res.Err = err
		if !sink.IsRetryable(err) || res.Attempts >= u.cfg.MaxAttempts {
			logger.Error().Err(err).Int("attempts", res.Attempts).Msg("batch failed")
			u.resolve(ctx, res)
			return res
		}
		delay := u.backoff(res.Attempts)
		logger.Warn().Err(err).Int("attempt", res.Attempts).Dur("backoff", delay).Msg("bulk request failed, retrying")
		if err := u.sleep(ctx, delay); err != nil {
			// cancelled between attempts
			logger.Warn().Int("attempts", res.Attempts).Msg("retries abandoned")
			u.resolve(ctx, res)
			return res
		}
	}
	res.Err = nil

	for i, item := range resp.Items {
		if item.Accepted() {
			res.Accepted++
			continue
		}
		res.Rejections = append(res.Rejections, Rejection{
			Position:  i,
			ClassUID:  docs[i].ClassUID,
			Status:    item.Status,
			ErrorType: item.ErrorType,
			Reason:    item.Reason,
		})
	}
	if len(res.Rejections) > 0 {
		res.Err = &PartialRejectionError{Index: index, Total: len(docs), Rejections: res.Rejections}
		logger.Warn().Int("rejected", len(res.Rejections)).Int("attempts", res.Attempts).Msg("batch partially rejected")
	} else {
		logger.Debug().Int("attempts", res.Attempts).Msg("batch accepted")
	}
	u.resolve(ctx, res)
	return res
}

// attempt sends one bulk request. It is not cut short by cancellation of
// ctx, only by the per-attempt timeout.
func (u *Uploader) attempt(ctx context.Context, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
	actx := context.WithoutCancel(ctx)
	if u.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, u.cfg.AttemptTimeout)
		defer cancel()
	}
	resp, err := u.writer.Bulk(actx, index, events)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Items) != len(events) {
		got := 0
		if resp != nil {
			got = len(resp.Items)
		}
		return nil, sink.Malformed("bulk", 0, nil, fmt.Errorf("got %d item results for %d documents", got, len(events)))
	}
	return resp, nil
}

// backoff doubles from BackoffBase for every failed attempt, capped at
// BackoffMax. Without a cap it saturates instead of overflowing.
func (u *Uploader) backoff(attempt int) time.Duration {
	d := u.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		if u.cfg.BackoffMax > 0 && d >= u.cfg.BackoffMax {
			return u.cfg.BackoffMax
		}
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	if u.cfg.BackoffMax > 0 && d > u.cfg.BackoffMax {
		return u.cfg.BackoffMax
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (u *Uploader) resolve(ctx context.Context, res *BatchResult) {
	if u.deadLetter != nil && res.Dispatched {
		u.storeUndelivered(ctx, res)
	}
	if u.onBatch != nil {
		u.onBatch(res)
	}
}

func (u *Uploader) storeUndelivered(ctx context.Context, res *BatchResult) {
	byClass := make(map[int]*storage.Record)
	var order []int
	add := func(doc Document, reason string) {
		rec, ok := byClass[doc.ClassUID]
		if !ok {
			rec = &storage.Record{Index: res.Index, ClassUID: doc.ClassUID, Reason: reason}
			byClass[doc.ClassUID] = rec
			order = append(order, doc.ClassUID)
		}
		rec.Events = append(rec.Events, doc.Event)
	}

	if res.Failed() {
		for _, doc := range res.Documents {
			add(doc, res.Err.Error())
		}
	} else {
		for _, rej := range res.Rejections {
			add(res.Documents[rej.Position], rej.ErrorType+": "+rej.Reason)
		}
	}

	sctx := context.WithoutCancel(ctx)
	for _, uid := range order {
		rec := byClass[uid]
		if err := u.deadLetter.Store(sctx, *rec); err != nil {
			log.Error().Err(err).Str("index", res.Index).Int("events", len(rec.Events)).Msg("failed to store undelivered events")
		}
	}
}
