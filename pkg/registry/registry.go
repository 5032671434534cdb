package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mosajjal/ocsf-composer/pkg/generator"
	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

// DatePlaceholder is replaced with the current UTC day (YYYY.MM.DD) when an
// index name is rendered.
const DatePlaceholder = "{date}"

// DefaultTemplate is the index template of the built-in classes, formatted
// with the schema version, class uid and class slug.
const DefaultTemplate = "ocsf-%s-%d-%s-" + DatePlaceholder + "-000000"

// DuplicateClassError is returned when a class id is registered twice
type DuplicateClassError struct {
	ClassUID int
}

func (e *DuplicateClassError) Error() string {
	return fmt.Sprintf("class %d is already registered", e.ClassUID)
}

// UnknownClassError is returned when resolving a class id nobody registered
type UnknownClassError struct {
	ClassUID int
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("unknown class %d", e.ClassUID)
}

type entry struct {
	class    ocsf.Class
	factory  generator.Factory
	template string
}

// Registry maps class ids to their generator factory and index template.
// It is populated at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]entry
	clock   func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock sets the clock index names are rendered with
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// New returns an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[int]entry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default returns a registry holding every built-in class. prefix replaces
// the leading "ocsf" of the index names when non-empty.
func Default(prefix string, opts ...Option) (*Registry, error) {
	r := New(opts...)
	for _, def := range generator.Builtin() {
		if err := r.Register(def.Class, def.Factory, IndexTemplate(prefix, def.Class)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// IndexTemplate builds the daily-rotated index template of a class
func IndexTemplate(prefix string, class ocsf.Class) string {
	tmpl := fmt.Sprintf(DefaultTemplate, ocsf.SchemaVersion, class.UID, class.Slug)
	if prefix != "" {
		tmpl = prefix + strings.TrimPrefix(tmpl, "ocsf")
	}
	return tmpl
}

// Register adds a class with its factory and index template
func (r *Registry) Register(class ocsf.Class, factory generator.Factory, indexTemplate string) error {
	if factory == nil {
		return fmt.Errorf("class %d: nil generator factory", class.UID)
	}
	if indexTemplate == "" {
		return fmt.Errorf("class %d: empty index template", class.UID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[class.UID]; ok {
		return &DuplicateClassError{ClassUID: class.UID}
	}
	r.entries[class.UID] = entry{class: class, factory: factory, template: indexTemplate}
	return nil
}

// Resolve builds a fresh generator for a class and renders its current index name
func (r *Registry) Resolve(classUID int, cfg generator.Config) (generator.Generator, string, error) {
	e, err := r.lookup(classUID)
	if err != nil {
		return nil, "", err
	}
	return e.factory(cfg), r.render(e.template), nil
}

// IndexName renders a class's index name for the current time. Long runs
// call it per event so writes follow the daily rotation.
func (r *Registry) IndexName(classUID int) (string, error) {
	e, err := r.lookup(classUID)
	if err != nil {
		return "", err
	}
	return r.render(e.template), nil
}

// Alias returns the name grouping every dated index of a class: its template
// cut before the date placeholder. A template without a date has no alias.
func (r *Registry) Alias(classUID int) (string, error) {
	e, err := r.lookup(classUID)
	if err != nil {
		return "", err
	}
	family, _, ok := strings.Cut(e.template, DatePlaceholder)
	if !ok {
		return "", nil
	}
	return strings.TrimRight(family, "-_."), nil
}

// Class returns a registered class
func (r *Registry) Class(classUID int) (ocsf.Class, error) {
	e, err := r.lookup(classUID)
	if err != nil {
		return ocsf.Class{}, err
	}
	return e.class, nil
}

// Classes returns the registered class ids in ascending order
func (r *Registry) Classes() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *Registry) lookup(classUID int) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[classUID]
	if !ok {
		return entry{}, &UnknownClassError{ClassUID: classUID}
	}
	return e, nil
}

func (r *Registry) render(template string) string {
	return strings.ReplaceAll(template, DatePlaceholder, r.clock().UTC().Format("2006.01.02"))
}
