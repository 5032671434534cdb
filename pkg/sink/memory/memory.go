// Package memory is an in-process destination. It backs dry runs and lets
// tests script bulk and index responses.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

// BulkFunc overrides the default accept-everything bulk behaviour. call is
// the 1-based number of the bulk request. Returning a nil response and nil
// error falls back to the default.
type BulkFunc func(call int, index string, events []ocsf.Event) (*sink.BulkResponse, error)

// BulkCall records one bulk request
type BulkCall struct {
	Index  string
	Events []ocsf.Event
}

// Destination stores indices and documents in memory
type Destination struct {
	OnBulk BulkFunc
	// OnCreate runs before an index is created; a non-nil error is returned as is
	OnCreate func(index string) error

	mu       sync.Mutex
	indices  map[string]ocsf.Mapping
	docs     map[string][]ocsf.Event
	calls    []BulkCall
	aliases  map[string][]string
	creates  int
	putCalls int
}

var (
	_ sink.Destination = (*Destination)(nil)
	_ sink.AliasAdmin  = (*Destination)(nil)
)

// New returns an empty destination
func New() *Destination {
	return &Destination{
		indices: make(map[string]ocsf.Mapping),
		docs:    make(map[string][]ocsf.Event),
		aliases: make(map[string][]string),
	}
}

// AddIndex pre-creates an index with the given mapping
func (d *Destination) AddIndex(index string, mapping ocsf.Mapping) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indices[index] = mapping.Merge(nil)
}

func (d *Destination) Bulk(ctx context.Context, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
	d.mu.Lock()
	d.calls = append(d.calls, BulkCall{Index: index, Events: append([]ocsf.Event(nil), events...)})
	call := len(d.calls)
	hook := d.OnBulk
	d.mu.Unlock()

	if hook != nil {
		resp, err := hook(call, index, events)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			d.store(index, events, resp)
			return resp, nil
		}
	}

	resp := &sink.BulkResponse{Items: make([]sink.ItemResult, len(events))}
	for i := range resp.Items {
		resp.Items[i] = sink.ItemResult{Status: 201}
	}
	d.store(index, events, resp)
	return resp, nil
}

func (d *Destination) store(index string, events []ocsf.Event, resp *sink.BulkResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, ev := range events {
		if i < len(resp.Items) && resp.Items[i].Accepted() {
			d.docs[index] = append(d.docs[index], ev)
		}
	}
}

func (d *Destination) IndexExists(ctx context.Context, index string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.indices[index]
	return ok, nil
}

func (d *Destination) CreateIndex(ctx context.Context, index string, mapping ocsf.Mapping) error {
	if d.OnCreate != nil {
		if err := d.OnCreate(index); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if _, ok := d.indices[index]; ok {
		return sink.ErrIndexExists
	}
	d.indices[index] = mapping.Merge(nil)
	return nil
}

func (d *Destination) GetMapping(ctx context.Context, index string) (ocsf.Mapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.indices[index]
	if !ok {
		return nil, sink.StatusError("get mapping", 404, "index_not_found_exception")
	}
	return m.Merge(nil), nil
}

func (d *Destination) PutMapping(ctx context.Context, index string, mapping ocsf.Mapping) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.putCalls++
	existing := d.indices[index]
	d.indices[index] = existing.Merge(mapping)
	return nil
}

func (d *Destination) PutAlias(ctx context.Context, index, alias string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.indices[index]; !ok {
		return sink.StatusError("put alias", 404, "index_not_found_exception")
	}
	if !slices.Contains(d.aliases[alias], index) {
		d.aliases[alias] = append(d.aliases[alias], index)
	}
	return nil
}

// Aliased returns the indices grouped under alias
func (d *Destination) Aliased(alias string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.aliases[alias]...)
}

func (d *Destination) Close() error {
	return nil
}

// Calls returns the bulk requests received so far
func (d *Destination) Calls() []BulkCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]BulkCall(nil), d.calls...)
}

// Documents returns the accepted documents of an index in arrival order
func (d *Destination) Documents(index string) []ocsf.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ocsf.Event(nil), d.docs[index]...)
}

// Mapping returns the current mapping of an index
func (d *Destination) Mapping(index string) (ocsf.Mapping, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.indices[index]
	return m, ok
}

// Creates returns how many create-index calls reached the destination
func (d *Destination) Creates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates
}

// PutMappingCalls returns how many put-mapping calls reached the destination
func (d *Destination) PutMappingCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putCalls
}
