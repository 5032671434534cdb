// Package composer drives generation across classes and feeds every event
// through an uploader fork private to the run.
package composer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spaolacci/murmur3"

	"github.com/mosajjal/ocsf-composer/pkg/generator"
	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/provision"
	"github.com/mosajjal/ocsf-composer/pkg/registry"
	"github.com/mosajjal/ocsf-composer/pkg/uploader"
)

// Provisioner ensures an index before the first write to it
type Provisioner interface {
	Ensure(ctx context.Context, spec provision.IndexSpec) error
}

// Option configures a Composer
type Option func(*Composer)

// WithSeed makes every class generate a reproducible sequence. Zero keeps
// generation random.
func WithSeed(seed int64) Option {
	return func(c *Composer) { c.seed = seed }
}

// WithClock sets the reference time handed to generators
func WithClock(clock func() time.Time) Option {
	return func(c *Composer) { c.clock = clock }
}

// WithRunID sets the id reported for runs instead of a random one
func WithRunID(id string) Option {
	return func(c *Composer) { c.runID = id }
}

// Composer runs generation for many classes at once
type Composer struct {
	registry    *registry.Registry
	provisioner Provisioner
	uploader    *uploader.Uploader
	seed        int64
	clock       func() time.Time
	runID       string
}

// New returns a Composer. The registry must be fully populated.
func New(reg *registry.Registry, prov Provisioner, up *uploader.Uploader, opts ...Option) *Composer {
	c := &Composer{
		registry:    reg,
		provisioner: prov,
		uploader:    up,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassSeed derives the seed of one class from the run seed
func ClassSeed(seed int64, classUID int) int64 {
	if seed == 0 {
		return 0
	}
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint32(buf[8:], uint32(classUID))
	s := int64(murmur3.Sum64(buf[:]) >> 1)
	if s == 0 {
		s = 1
	}
	return s
}

type ensureResult struct {
	once sync.Once
	err  error
}

// run is the state of one Run or Ingest call
type run struct {
	c       *Composer
	up      *uploader.Uploader
	report  *RunReport
	started time.Time

	mu      sync.Mutex
	classes map[int]*ClassReport
	ensured map[string]*ensureResult
}

func (c *Composer) newRun(up *uploader.Uploader) *run {
	id := c.runID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return &run{
		c:       c,
		up:      up,
		report:  &RunReport{RunID: id, Started: now.UTC()},
		started: now,
		classes: make(map[int]*ClassReport),
		ensured: make(map[string]*ensureResult),
	}
}

func (r *run) class(uid int) *ClassReport {
	cr, ok := r.classes[uid]
	if !ok {
		cr = &ClassReport{ClassUID: uid}
		if class, err := r.c.registry.Class(uid); err == nil {
			cr.ClassName = class.Name
		}
		r.classes[uid] = cr
		r.report.Classes = append(r.report.Classes, cr)
	}
	return cr
}

// ensure provisions index once for the whole run; later callers get the
// first outcome
func (r *run) ensure(ctx context.Context, index string, class ocsf.Class) error {
	alias, err := r.c.registry.Alias(class.UID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	e, ok := r.ensured[index]
	if !ok {
		e = &ensureResult{}
		r.ensured[index] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.err = r.c.provisioner.Ensure(ctx, provision.IndexSpec{Name: index, Mapping: class.IndexMapping(), Alias: alias})
	})
	return e.err
}

// record books a resolved batch against the classes of its documents
func (r *run) record(res *uploader.BatchResult) {
	if res == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, t := range res.Tally() {
		cr := r.class(uid)
		cr.Accepted += t.Accepted
		cr.Rejected += t.Rejected
		cr.Failed += t.Failed
		cr.NotDispatched += t.NotDispatched
		if res.Err != nil {
			cr.addError(res.Err)
		}
	}
}

func (r *run) submit(ctx context.Context, doc uploader.Document) {
	r.record(r.up.Submit(ctx, doc))
}

func (r *run) finish(ctx context.Context) *RunReport {
	for _, res := range r.up.Flush(ctx) {
		r.record(res)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Elapsed = time.Since(r.started)
	r.report.finalize(ctx.Err() != nil)
	return r.report
}

// Run generates classCounts[uid] events for every class and uploads them.
// batchSize overrides the uploader's batch size when positive. Unknown
// classes and negative counts abort before anything is generated; every
// later failure is attributed to its class in the report.
func (c *Composer) Run(ctx context.Context, classCounts map[int]int, batchSize int) (*RunReport, error) {
	if len(classCounts) == 0 {
		return nil, fmt.Errorf("no classes requested")
	}
	uids := make([]int, 0, len(classCounts))
	for uid, n := range classCounts {
		if n < 0 {
			return nil, fmt.Errorf("class %d: negative count %d", uid, n)
		}
		if _, err := c.registry.Class(uid); err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	sort.Ints(uids)

	// every run buffers on its own fork so concurrent runs never flush or
	// count each other's documents
	up := c.uploader.Fork()
	if batchSize > 0 && batchSize != up.BatchSize() {
		var err error
		if up, err = c.uploader.WithBatchSize(batchSize); err != nil {
			return nil, err
		}
	}

	r := c.newRun(up)
	for _, uid := range uids {
		r.class(uid).Requested = classCounts[uid]
	}
	logger := log.With().Str("run", r.report.RunID).Logger()
	logger.Info().Ints("classes", uids).Int("batch_size", up.BatchSize()).Msg("composition started")

	var wg sync.WaitGroup
	for _, uid := range uids {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			r.generate(ctx, uid, classCounts[uid], logger)
		}(uid)
	}
	wg.Wait()

	report := r.finish(ctx)
	totals := report.Totals()
	logger.Info().
		Str("status", string(report.Status)).
		Int("requested", totals.Requested).
		Int("accepted", totals.Accepted).
		Dur("elapsed", report.Elapsed).
		Msg("composition finished")
	return report, nil
}

// generate runs one class: exactly count generation attempts unless the run
// is cancelled or its index cannot be provisioned
func (r *run) generate(ctx context.Context, uid, count int, logger zerolog.Logger) {
	start := time.Now()
	logger = logger.With().Int("class_uid", uid).Logger()

	gen, _, err := r.c.registry.Resolve(uid, generator.Config{Seed: ClassSeed(r.c.seed, uid), Clock: r.c.clock})
	if err != nil {
		r.fail(uid, err)
		return
	}
	class := gen.Class()

	var generated, failed int
	var genErrs []error
	defer func() {
		r.mu.Lock()
		cr := r.class(uid)
		cr.Generated += generated
		cr.GenerationFailed += failed
		for _, err := range genErrs {
			cr.addError(err)
		}
		cr.Elapsed = time.Since(start)
		r.mu.Unlock()
		logger.Info().Int("generated", generated).Int("generation_failed", failed).Msg("class finished")
	}()

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", count-i).Msg("cancelled, generation stopped")
			return
		}
		index, err := r.c.registry.IndexName(uid)
		if err != nil {
			r.fail(uid, err)
			return
		}
		if err := r.ensure(ctx, index, class); err != nil {
			logger.Error().Err(err).Str("index", index).Msg("index provisioning failed, class abandoned")
			r.fail(uid, err)
			return
		}

		ev, err := gen.Generate()
		if err != nil {
			failed++
			genErrs = append(genErrs, err)
			continue
		}
		generated++
		r.mu.Lock()
		r.class(uid).addIndex(index)
		r.mu.Unlock()
		r.submit(ctx, uploader.Document{Index: index, ClassUID: uid, Event: ev})
	}
}

func (r *run) fail(uid int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.class(uid).addError(err)
}

// Ingest routes externally produced events by their class_uid through the
// same provisioning and upload path as generated ones, preserving order.
// Events of unknown classes or failing validation are counted as invalid;
// Generated counts the events handed to the uploader. unreadable holds the
// input records that never parsed into an event: each is requested and
// invalid under class 0.
func (c *Composer) Ingest(ctx context.Context, events []ocsf.Event, unreadable []error) (*RunReport, error) {
	r := c.newRun(c.uploader.Fork())
	logger := log.With().Str("run", r.report.RunID).Logger()
	logger.Info().Int("events", len(events)).Int("unreadable", len(unreadable)).Msg("ingestion started")

	if len(unreadable) > 0 {
		r.mu.Lock()
		cr := r.class(0)
		for _, err := range unreadable {
			cr.Requested++
			cr.Invalid++
			cr.addError(err)
		}
		r.mu.Unlock()
	}

	starts := make(map[int]time.Time)
	for i, ev := range events {
		uid, ok := ev.ClassUID()
		if !ok {
			uid = 0
		}
		r.mu.Lock()
		cr := r.class(uid)
		cr.Requested++
		r.mu.Unlock()
		if _, ok := starts[uid]; !ok {
			starts[uid] = time.Now()
		}

		if ctx.Err() != nil {
			continue
		}
		if err := r.ingestOne(ctx, uid, ev); err != nil {
			var invalid *invalidEventError
			r.mu.Lock()
			if errors.As(err, &invalid) {
				cr.Invalid++
			}
			cr.addError(fmt.Errorf("event %d: %w", i, err))
			r.mu.Unlock()
		}
		r.mu.Lock()
		cr.Elapsed = time.Since(starts[uid])
		r.mu.Unlock()
	}

	report := r.finish(ctx)
	logger.Info().Str("status", string(report.Status)).Int("accepted", report.Totals().Accepted).Msg("ingestion finished")
	return report, nil
}

type invalidEventError struct {
	err error
}

func (e *invalidEventError) Error() string { return e.err.Error() }

func (e *invalidEventError) Unwrap() error { return e.err }

// ingestOne returns an invalidEventError when the event never reaches the
// uploader, and a plain error when its index could not be provisioned
func (r *run) ingestOne(ctx context.Context, uid int, ev ocsf.Event) error {
	class, err := r.c.registry.Class(uid)
	if err != nil {
		return &invalidEventError{err: err}
	}
	if err := ocsf.Validate(class, ev); err != nil {
		return &invalidEventError{err: err}
	}
	index, err := r.c.registry.IndexName(uid)
	if err != nil {
		return &invalidEventError{err: err}
	}
	if err := r.ensure(ctx, index, class); err != nil {
		return err
	}
	r.mu.Lock()
	cr := r.class(uid)
	cr.Generated++
	cr.addIndex(index)
	r.mu.Unlock()
	r.submit(ctx, uploader.Document{Index: index, ClassUID: uid, Event: ev})
	return nil
}
