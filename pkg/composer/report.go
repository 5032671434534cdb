package composer

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"
)

// Status is the verdict of a run
type Status string

const (
	// StatusSuccess means every requested event was accepted
	StatusSuccess Status = "success"
	// StatusPartial means at least one class fell short
	StatusPartial Status = "partial"
	// StatusCancelled means the run was stopped before every requested
	// event was accepted
	StatusCancelled Status = "cancelled"
)

// Deficit reasons
const (
	ReasonNotGenerated     = "not_generated"
	ReasonGenerationFailed = "generation_failed"
	ReasonInvalid          = "invalid"
	ReasonRejected         = "rejected"
	ReasonTransportFailed  = "transport_failed"
	ReasonNotDispatched    = "not_dispatched"
)

// maxErrors bounds the errors kept per class; counts are always exact
const maxErrors = 20

// Deficit is a number of requested events that were not accepted, and why
type Deficit struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// ClassReport accounts for every requested event of a class. Requested is
// the sum of Accepted, Rejected, Failed, NotDispatched, GenerationFailed,
// Invalid and the events never generated.
type ClassReport struct {
	ClassUID  int      `json:"class_uid"`
	ClassName string   `json:"class_name,omitempty"`
	Indices   []string `json:"indices,omitempty"`

	Requested        int `json:"requested"`
	Generated        int `json:"generated"`
	GenerationFailed int `json:"generation_failed"`
	Invalid          int `json:"invalid,omitempty"`
	Accepted         int `json:"accepted"`
	Rejected         int `json:"rejected"`
	Failed           int `json:"failed"`
	NotDispatched    int `json:"not_dispatched"`

	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Deficits  []Deficit     `json:"deficits,omitempty"`
	Errors    []string      `json:"errors,omitempty"`

	errs      []error
	errCount  int
	indexSeen map[string]bool
}

// NotGenerated counts requested events no generation was attempted for
func (c *ClassReport) NotGenerated() int {
	return c.Requested - c.Generated - c.GenerationFailed - c.Invalid
}

func (c *ClassReport) addError(err error) {
	c.errCount++
	if len(c.errs) < maxErrors {
		c.errs = append(c.errs, err)
	}
}

func (c *ClassReport) addIndex(index string) {
	if c.indexSeen == nil {
		c.indexSeen = make(map[string]bool)
	}
	if !c.indexSeen[index] {
		c.indexSeen[index] = true
		c.Indices = append(c.Indices, index)
	}
}

func (c *ClassReport) finalize() {
	c.ElapsedMS = c.Elapsed.Milliseconds()
	c.Deficits = nil
	for _, d := range []Deficit{
		{ReasonNotGenerated, c.NotGenerated()},
		{ReasonGenerationFailed, c.GenerationFailed},
		{ReasonInvalid, c.Invalid},
		{ReasonRejected, c.Rejected},
		{ReasonTransportFailed, c.Failed},
		{ReasonNotDispatched, c.NotDispatched},
	} {
		if d.Count > 0 {
			c.Deficits = append(c.Deficits, d)
		}
	}
	c.Errors = c.Errors[:0]
	for _, err := range c.errs {
		c.Errors = append(c.Errors, err.Error())
	}
	if dropped := c.errCount - len(c.errs); dropped > 0 {
		c.Errors = append(c.Errors, fmt.Sprintf("%d more errors not shown", dropped))
	}
}

// Complete reports whether every requested event was accepted
func (c *ClassReport) Complete() bool {
	return c.Accepted == c.Requested
}

// RunReport is the outcome of a Run or Ingest call
type RunReport struct {
	RunID     string         `json:"run_id"`
	Status    Status         `json:"status"`
	Started   time.Time      `json:"started"`
	Elapsed   time.Duration  `json:"-"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Classes   []*ClassReport `json:"classes"`
}

// Class returns the report of a class, or nil
func (r *RunReport) Class(uid int) *ClassReport {
	for _, c := range r.Classes {
		if c.ClassUID == uid {
			return c
		}
	}
	return nil
}

// Totals sums the per-class counters
func (r *RunReport) Totals() ClassReport {
	var t ClassReport
	for _, c := range r.Classes {
		t.Requested += c.Requested
		t.Generated += c.Generated
		t.GenerationFailed += c.GenerationFailed
		t.Invalid += c.Invalid
		t.Accepted += c.Accepted
		t.Rejected += c.Rejected
		t.Failed += c.Failed
		t.NotDispatched += c.NotDispatched
	}
	return t
}

// Err combines the errors attributed to every class, or returns nil
func (r *RunReport) Err() error {
	var errs []error
	for _, c := range r.Classes {
		for _, err := range c.errs {
			errs = append(errs, fmt.Errorf("class %d: %w", c.ClassUID, err))
		}
	}
	return multierr.Combine(errs...)
}

// WriteJSON writes the report as indented JSON
func (r *RunReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *RunReport) finalize(cancelled bool) {
	sort.Slice(r.Classes, func(i, j int) bool { return r.Classes[i].ClassUID < r.Classes[j].ClassUID })
	r.ElapsedMS = r.Elapsed.Milliseconds()
	r.Status = StatusSuccess
	for _, c := range r.Classes {
		c.finalize()
		if !c.Complete() {
			r.Status = StatusPartial
		}
	}
	// a cancellation that cost nothing leaves the run successful
	if cancelled && r.Status == StatusPartial {
		r.Status = StatusCancelled
	}
}
