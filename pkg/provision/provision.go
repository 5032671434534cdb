// Package provision makes sure destination indices exist with a mapping
// that can hold the events about to be written.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

// IndexSpec is a target index and the mapping its events need. Alias, when
// set, names the family the index is grouped under.
type IndexSpec struct {
	Name    string
	Mapping ocsf.Mapping
	Alias   string
}

// IncompatibleMappingError reports an existing index typing required fields differently
type IncompatibleMappingError struct {
	Index     string
	Conflicts []ocsf.Conflict
}

func (e *IncompatibleMappingError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("index %s has an incompatible mapping: %s", e.Index, strings.Join(parts, "; "))
}

// Provisioner ensures indices through a sink.IndexAdmin. It is safe for
// concurrent use; calls for the same index are serialized.
type Provisioner struct {
	admin sink.IndexAdmin

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Provisioner using admin
func New(admin sink.IndexAdmin) *Provisioner {
	return &Provisioner{
		admin: admin,
		locks: make(map[string]*sync.Mutex),
	}
}

func (p *Provisioner) lock(index string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[index]
	if !ok {
		l = &sync.Mutex{}
		p.locks[index] = l
	}
	return l
}

// Ensure creates spec.Name with spec.Mapping when it does not exist. An
// existing index is accepted when its mapping types every required field the
// same way; fields it lacks are added. Losing a creation race to another
// writer counts as the index existing. Once the index is usable it is added
// to spec.Alias on destinations that support aliases.
func (p *Provisioner) Ensure(ctx context.Context, spec IndexSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("index name is required")
	}
	l := p.lock(spec.Name)
	l.Lock()
	defer l.Unlock()

	logger := log.With().Str("index", spec.Name).Logger()
	if err := p.ensureIndex(ctx, spec, logger); err != nil {
		return err
	}
	return p.ensureAlias(ctx, spec, logger)
}

func (p *Provisioner) ensureAlias(ctx context.Context, spec IndexSpec, logger zerolog.Logger) error {
	if spec.Alias == "" {
		return nil
	}
	aliases, ok := p.admin.(sink.AliasAdmin)
	if !ok {
		return nil
	}
	if err := aliases.PutAlias(ctx, spec.Name, spec.Alias); err != nil {
		return fmt.Errorf("failed to add %s to alias %s: %w", spec.Name, spec.Alias, err)
	}
	logger.Debug().Str("alias", spec.Alias).Msg("index aliased")
	return nil
}

func (p *Provisioner) ensureIndex(ctx context.Context, spec IndexSpec, logger zerolog.Logger) error {
	exists, err := p.admin.IndexExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", spec.Name, err)
	}
	if !exists {
		err := p.admin.CreateIndex(ctx, spec.Name, spec.Mapping)
		switch {
		case err == nil:
			logger.Info().Int("fields", len(spec.Mapping)).Msg("created index")
			return nil
		case errors.Is(err, sink.ErrIndexExists):
			logger.Debug().Msg("index created concurrently, verifying mapping")
		default:
			return fmt.Errorf("failed to create index %s: %w", spec.Name, err)
		}
	}

	existing, err := p.admin.GetMapping(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to read mapping of %s: %w", spec.Name, err)
	}
	if existing == nil {
		// schemaless destination
		return nil
	}

	missing, conflicts := spec.Mapping.Compare(existing)
	if len(conflicts) > 0 {
		return &IncompatibleMappingError{Index: spec.Name, Conflicts: conflicts}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := p.admin.PutMapping(ctx, spec.Name, missing); err != nil {
		return fmt.Errorf("failed to extend mapping of %s: %w", spec.Name, err)
	}
	logger.Info().Strs("fields", missing.Paths()).Msg("extended index mapping")
	return nil
}
