package uploader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
	"github.com/mosajjal/ocsf-composer/pkg/sink/memory"
	"github.com/mosajjal/ocsf-composer/pkg/storage"
)

const httpIndex = "ocsf-1.1.0-4002-http_activity-2024.06.10-000000"

type deadLetter struct {
	mu      sync.Mutex
	records []storage.Record
}

func (d *deadLetter) Store(ctx context.Context, record storage.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, record)
	return nil
}

func (d *deadLetter) Close() error { return nil }

func testConfig() Config {
	return Config{BatchSize: 5, MaxAttempts: 4, BackoffBase: 10 * time.Millisecond, BackoffMax: 25 * time.Millisecond}
}

func newUploader(t *testing.T, w sink.BulkWriter, cfg Config, opts ...Option) (*Uploader, *[]time.Duration) {
	t.Helper()
	u, err := New(w, cfg, opts...)
	require.NoError(t, err)
	var slept []time.Duration
	u.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return u, &slept
}

func docs(index string, class, n int) []Document {
	out := make([]Document, n)
	for i := range out {
		out[i] = Document{Index: index, ClassUID: class, Event: ocsf.Event{"class_uid": class, "seq": i}}
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
	assert.Error(t, Config{BatchSize: 0, MaxAttempts: 1}.Validate())
	assert.Error(t, Config{BatchSize: 1, MaxAttempts: 0}.Validate())
	assert.Error(t, Config{BatchSize: 1, MaxAttempts: 1, BackoffBase: -1}.Validate())
}

func TestPartitionPreservesOrder(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, testConfig())
	ctx := context.Background()

	var results []*BatchResult
	for _, d := range docs(httpIndex, 4002, 23) {
		if r := u.Submit(ctx, d); r != nil {
			results = append(results, r)
		}
	}
	results = append(results, u.Flush(ctx)...)

	calls := dst.Calls()
	require.Len(t, calls, 5)
	require.Len(t, results, 5)
	var sizes []int
	var seqs []int
	for _, c := range calls {
		sizes = append(sizes, len(c.Events))
		for _, ev := range c.Events {
			seqs = append(seqs, ev["seq"].(int))
		}
	}
	assert.Equal(t, []int{5, 5, 5, 5, 3}, sizes)
	for i, s := range seqs {
		assert.Equal(t, i, s)
	}
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Attempts)
		assert.Equal(t, len(r.Documents), r.Accepted)
	}
}

func TestBatchesNeverMixIndices(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, Config{BatchSize: 2, MaxAttempts: 1})
	ctx := context.Background()

	a, b := docs("a", 4002, 3), docs("b", 4003, 3)
	for i := 0; i < 3; i++ {
		u.Submit(ctx, a[i])
		u.Submit(ctx, b[i])
	}
	u.Flush(ctx)

	for _, c := range dst.Calls() {
		for _, ev := range c.Events {
			if c.Index == "a" {
				assert.Equal(t, 4002, ev["class_uid"])
			} else {
				assert.Equal(t, 4003, ev["class_uid"])
			}
		}
	}
	assert.Len(t, dst.Documents("a"), 3)
	assert.Len(t, dst.Documents("b"), 3)
	assert.Len(t, dst.Calls(), 4)
}

func TestRetryBound(t *testing.T) {
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		return nil, sink.NetworkError("bulk", errors.New("connection refused"))
	}
	dl := &deadLetter{}
	u, slept := newUploader(t, dst, testConfig(), WithDeadLetter(dl))
	ctx := context.Background()

	for _, d := range docs(httpIndex, 4002, 5) {
		u.Submit(ctx, d)
	}
	calls := dst.Calls()
	require.Len(t, calls, 4)

	res := u.Flush(ctx)
	assert.Empty(t, res, "the failed batch is not kept for the next flush")
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, *slept)

	require.Len(t, dl.records, 1)
	assert.Len(t, dl.records[0].Events, 5)
	assert.Contains(t, dl.records[0].Reason, "connection refused")
}

func TestFailedBatchResult(t *testing.T) {
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		return nil, sink.StatusError("bulk", 503, "unavailable")
	}
	u, _ := newUploader(t, dst, Config{BatchSize: 2, MaxAttempts: 3})

	u.Submit(context.Background(), docs(httpIndex, 4002, 1)[0])
	res := u.Submit(context.Background(), docs(httpIndex, 4002, 2)[1])
	require.NotNil(t, res)

	assert.True(t, res.Failed())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, map[int]Tally{4002: {Failed: 2}}, res.Tally())
	var te *sink.TransportError
	require.True(t, errors.As(res.Err, &te))
	assert.Equal(t, 503, te.StatusCode)
}

func TestNonRetryableStatusIsNotRetried(t *testing.T) {
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		return nil, sink.StatusError("bulk", 403, "forbidden")
	}
	u, slept := newUploader(t, dst, testConfig())

	u.Submit(context.Background(), docs(httpIndex, 4002, 1)[0])
	res := u.Flush(context.Background())
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Attempts)
	assert.True(t, res[0].Failed())
	assert.Len(t, dst.Calls(), 1)
	assert.Empty(t, *slept)
}

func TestMalformedResponseIsRetried(t *testing.T) {
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		if call == 1 {
			// one result short
			return &sink.BulkResponse{Items: make([]sink.ItemResult, len(events)-1)}, nil
		}
		return nil, nil
	}
	u, _ := newUploader(t, dst, testConfig())

	for _, d := range docs(httpIndex, 4002, 4) {
		u.Submit(context.Background(), d)
	}
	res := u.Flush(context.Background())
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, 2, res[0].Attempts)
	assert.Equal(t, 4, res[0].Accepted)
	assert.Len(t, dst.Documents(httpIndex), 4)
}

func TestPartialRejection(t *testing.T) {
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		resp := &sink.BulkResponse{Items: make([]sink.ItemResult, len(events))}
		for i := range resp.Items {
			resp.Items[i] = sink.ItemResult{Status: 201}
		}
		resp.Items[1] = sink.ItemResult{Status: 400, ErrorType: "mapper_parsing_exception", Reason: "failed to parse field [time]"}
		resp.Items[3] = sink.ItemResult{Status: 400, ErrorType: "illegal_argument_exception", Reason: "bad value"}
		return resp, nil
	}
	dl := &deadLetter{}
	var seen []*BatchResult
	u, slept := newUploader(t, dst, testConfig(), WithDeadLetter(dl), WithBatchCallback(func(r *BatchResult) { seen = append(seen, r) }))

	var res *BatchResult
	for _, d := range docs(httpIndex, 4002, 5) {
		if r := u.Submit(context.Background(), d); r != nil {
			res = r
		}
	}
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Attempts, "rejections are never retried")
	assert.Empty(t, *slept)
	assert.Equal(t, 3, res.Accepted)
	require.Len(t, res.Rejections, 2)
	assert.Equal(t, 1, res.Rejections[0].Position)
	assert.Equal(t, "mapper_parsing_exception", res.Rejections[0].ErrorType)
	assert.Equal(t, 3, res.Rejections[1].Position)
	assert.False(t, res.Failed())
	assert.Equal(t, map[int]Tally{4002: {Accepted: 3, Rejected: 2}}, res.Tally())

	var pre *PartialRejectionError
	require.True(t, errors.As(res.Err, &pre))
	assert.Equal(t, 5, pre.Total)
	assert.Contains(t, pre.Error(), "2 of 5 documents rejected")

	assert.Equal(t, []*BatchResult{res}, seen)
	require.Len(t, dl.records, 1)
	assert.Len(t, dl.records[0].Events, 2)
	assert.Equal(t, 1, dl.records[0].Events[0]["seq"])
}

func TestCancelledBatchNotDispatched(t *testing.T) {
	dst := memory.New()
	dl := &deadLetter{}
	u, _ := newUploader(t, dst, testConfig(), WithDeadLetter(dl))
	ctx, cancel := context.WithCancel(context.Background())

	for _, d := range docs(httpIndex, 4002, 3) {
		u.Submit(ctx, d)
	}
	cancel()
	res := u.Flush(ctx)

	require.Len(t, res, 1)
	assert.False(t, res[0].Dispatched)
	assert.ErrorIs(t, res[0].Err, context.Canceled)
	assert.Equal(t, map[int]Tally{4002: {NotDispatched: 3}}, res[0].Tally())
	assert.Empty(t, dst.Calls())
	assert.Empty(t, dl.records)
}

func TestCancelDuringBackoffStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		cancel()
		return nil, sink.NetworkError("bulk", errors.New("timeout"))
	}
	u, slept := newUploader(t, dst, testConfig())

	res := u.write(ctx, httpIndex, docs(httpIndex, 4002, 1))
	assert.True(t, res.Dispatched)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.Failed())
	assert.Len(t, *slept, 1)
	assert.Len(t, dst.Calls(), 1)
}

func TestInFlightAttemptSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dst := memory.New()
	dst.OnBulk = func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
		cancel()
		return nil, nil
	}
	u, _ := newUploader(t, dst, testConfig())

	res := u.write(ctx, httpIndex, docs(httpIndex, 4002, 2))
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Accepted)
}

func TestUploadDrainsChannel(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, testConfig())

	ch := make(chan Document)
	go func() {
		defer close(ch)
		for _, d := range append(docs("a", 4002, 7), docs("b", 4003, 5)...) {
			ch <- d
		}
	}()
	res := u.Upload(context.Background(), ch)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, Tally{Accepted: 12}, res.Tally)
	assert.Empty(t, res.Errors)
	assert.Len(t, dst.Documents("a"), 7)
	assert.Len(t, dst.Documents("b"), 5)
}

func TestConcurrentSubmit(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, Config{BatchSize: 7, MaxAttempts: 1})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				u.Submit(context.Background(), Document{Index: "idx", ClassUID: 4002, Event: ocsf.Event{"id": fmt.Sprintf("%d-%d", w, i)}})
			}
		}(w)
	}
	wg.Wait()
	u.Flush(context.Background())

	calls := dst.Calls()
	assert.Len(t, calls, 58)
	ids := map[string]bool{}
	for _, c := range calls {
		assert.LessOrEqual(t, len(c.Events), 7)
		for _, ev := range c.Events {
			ids[ev["id"].(string)] = true
		}
	}
	assert.Len(t, ids, 400)
}

func TestBackoff(t *testing.T) {
	u := &Uploader{cfg: Config{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second}}
	var got []time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		got = append(got, u.backoff(attempt))
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, got)
}

func TestBackoffSaturatesWithoutCap(t *testing.T) {
	u := &Uploader{cfg: Config{BackoffBase: 500 * time.Millisecond}}
	prev := time.Duration(0)
	for _, attempt := range []int{1, 10, 35, 36, 64, 100, 1000} {
		d := u.backoff(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, time.Duration(math.MaxInt64), u.backoff(1000))

	capped := &Uploader{cfg: Config{BackoffBase: 500 * time.Millisecond, BackoffMax: time.Minute}}
	assert.Equal(t, time.Minute, capped.backoff(1000))
}

func TestUploadCountsQueuedDocumentsOnCancel(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, testConfig())

	ch := make(chan Document, 10)
	for _, d := range docs(httpIndex, 4002, 10) {
		ch <- d
	}
	close(ch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := u.Upload(ctx, ch)
	assert.Equal(t, Tally{NotDispatched: 10}, res.Tally)
	assert.NotEmpty(t, res.Errors)
	assert.Empty(t, dst.Calls())
}

func TestForkKeepsBuffersApart(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, testConfig())
	a, b := u.Fork(), u.Fork()
	assert.Equal(t, u.BatchSize(), a.BatchSize())

	for _, d := range docs(httpIndex, 4002, 3) {
		assert.Nil(t, a.Submit(context.Background(), d))
	}
	assert.Nil(t, b.Submit(context.Background(), docs(httpIndex, 4002, 1)[0]))

	ra := a.Flush(context.Background())
	rb := b.Flush(context.Background())
	require.Len(t, ra, 1)
	require.Len(t, rb, 1)
	assert.Equal(t, 3, ra[0].Accepted)
	assert.Equal(t, 1, rb[0].Accepted)
	assert.Empty(t, u.Flush(context.Background()))
}

func TestWithBatchSize(t *testing.T) {
	dst := memory.New()
	u, _ := newUploader(t, dst, testConfig())

	small, err := u.WithBatchSize(2)
	require.NoError(t, err)
	assert.Equal(t, 2, small.BatchSize())
	assert.Equal(t, 5, u.BatchSize())

	for _, d := range docs(httpIndex, 4002, 4) {
		small.Submit(context.Background(), d)
	}
	assert.Len(t, dst.Calls(), 2)
	assert.Empty(t, u.Flush(context.Background()))

	_, err = u.WithBatchSize(0)
	assert.Error(t, err)
}
