// Package registry maps field names to stable identifiers. Each Registry
// owns one namespace and a cache of the append-only vocabulary table,
// registering unknown names on first use.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/fields"
	"github.com/dmitrijs2005/orderkeeper/internal/telemetry"
)

const (
	maxResolveAttempts    = 3
	maxConcurrentResolves = 8
)

// Registry resolves names of one namespace to identifiers.
type Registry struct {
	ns    fields.Namespace
	repo  fields.Repository
	log   logging.Logger
	newID func() uuid.UUID

	mu    sync.RWMutex
	cache map[string]uuid.UUID
	group singleflight.Group
}

// New returns an empty registry for ns. The repository must not be bound to
// a transaction: registrations are committed on their own.
func New(ns fields.Namespace, repo fields.Repository, log logging.Logger) *Registry {
	return &Registry{
		ns:    ns,
		repo:  repo,
		log:   log.With("namespace", string(ns)),
		newID: newFieldID,
		cache: map[string]uuid.UUID{},
	}
}

func newFieldID() uuid.UUID {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.New()
	}
	return id
}

func (r *Registry) Namespace() fields.Namespace { return r.ns }

func (r *Registry) lookup(name string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[name]
	return id, ok
}

func (r *Registry) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty field name", common.ErrValidation)
	}
	if r.ns == fields.RowFields && name == models.RowUUIDKey {
		return fmt.Errorf("%w: %q cannot be used as a row field", common.ErrReservedName, name)
	}
	return nil
}

// Load replaces the cache with the full contents of the namespace.
// Concurrent calls share one storage scan.
func (r *Registry) Load(ctx context.Context) error {
	_, err, _ := r.group.Do("load", func() (any, error) {
		list, err := r.repo.List(ctx, r.ns)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", r.ns, err)
		}
		next := make(map[string]uuid.UUID, len(list))
		for _, f := range list {
			next[f.Name] = f.ID
		}
		r.mu.Lock()
		r.cache = next
		r.mu.Unlock()
		r.log.Debug(ctx, "field cache reloaded", "fields", len(next))
		return nil, nil
	})
	return err
}

// Resolve returns the identifier of name, registering it when unknown.
func (r *Registry) Resolve(ctx context.Context, name string) (uuid.UUID, error) {
	if err := r.checkName(name); err != nil {
		r.log.Warn(ctx, "rejected field name", "name", name, "error", err)
		return uuid.Nil, err
	}
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		if id, ok := r.lookup(name); ok {
			return id, nil
		}
		candidate := r.newID()
		if err := r.repo.InsertIgnore(ctx, r.ns, candidate, name); err != nil {
			return uuid.Nil, fmt.Errorf("failed to register field %q: %w", name, err)
		}
		if err := r.Load(ctx); err != nil {
			return uuid.Nil, err
		}
		if id, ok := r.lookup(name); ok && id == candidate {
			telemetry.RecordRegistration(ctx, string(r.ns))
			r.log.Debug(ctx, "field registered", "name", name, "id", id)
		}
	}
	if id, ok := r.lookup(name); ok {
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("%w: %q after %d attempts", common.ErrNotRegistered, name, maxResolveAttempts)
}

type resolved struct {
	name string
	id   uuid.UUID
}

// ResolveMany resolves a set of names. Duplicates are resolved once and
// cache misses are registered concurrently; the first failure cancels the
// remaining registrations.
func (r *Registry) ResolveMany(ctx context.Context, names []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(names))
	var missing []string
	seen := make(map[string]struct{}, len(names))

	r.mu.RLock()
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if id, ok := r.cache[name]; ok {
			out[name] = id
			continue
		}
		missing = append(missing, name)
	}
	r.mu.RUnlock()

	for _, name := range missing {
		if err := r.checkName(name); err != nil {
			return nil, err
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	p := pool.NewWithResults[resolved]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxConcurrentResolves)
	for _, name := range missing {
		p.Go(func(ctx context.Context) (resolved, error) {
			id, err := r.Resolve(ctx, name)
			return resolved{name: name, id: id}, err
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		out[res.name] = res.id
	}
	return out, nil
}

// Names returns the cached names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.cache))
	for name := range r.cache {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
