// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry implements the in-memory statement registry (C8): a
// process-wide catalog of compiled MappedStatements, ResultMaps,
// ParameterMaps, key generators, and namespace caches, populated by the
// mapping compiler (C10) with a deferred-resolution pass for forward
// references, mirroring org.apache.ibatis.session.Configuration /
// MapperRegistry.
package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sqlbatis/sqlbatis/internal/cache"
)

// Registry is the build-time and run-time catalog described by spec.md §4.8.
// It is mutable only while a Configuration is compiling mapping files;
// after Build() succeeds it is treated as immutable (spec.md §5).
type Registry struct {
	mu sync.RWMutex

	statements    map[string]*MappedStatement
	resultMaps    map[string]*ResultMap
	parameterMaps map[string]*ParameterMap
	keyGenerators map[string]*KeyGenerator
	caches        map[string]cache.Cache // namespace -> cache
	cacheRefs     map[string]string      // namespace -> referenced namespace
	sqlFragments  map[string]*Fragment   // namespace.id -> reusable <sql> fragment
	aliases       map[string]reflect.Type
	mappers       map[string]reflect.Type

	pending []pendingItem
	built   bool
}

// Fragment is a reusable `<sql>` snippet referenced by `<include>`.
type Fragment struct {
	ID      string
	Content string // raw markup body, re-parsed into the including statement's tree
}

// pendingItem is a deferred build-time resolution: a cache-ref, a
// resultMap `extends`, a nested-resultMap id reference, or a statement
// reference, retried after each mapping file and failing the whole build
// if still unresolved at the end (spec.md §4.8/§4.10).
type pendingItem struct {
	kind   string // "cache-ref" | "extends" | "nested-resultmap" | "statement"
	source string // the id that declared the reference, for error messages
	target string // the id being referenced
	resolve func(r *Registry) bool
}

// New builds an empty Registry pre-seeded with nothing; callers add
// statements/result-maps/etc. via the mapping compiler, then call Build.
func New() *Registry {
	return &Registry{
		statements:    map[string]*MappedStatement{},
		resultMaps:    map[string]*ResultMap{},
		parameterMaps: map[string]*ParameterMap{},
		keyGenerators: map[string]*KeyGenerator{},
		caches:        map[string]cache.Cache{},
		cacheRefs:     map[string]string{},
		sqlFragments:  map[string]*Fragment{},
		aliases:       map[string]reflect.Type{},
		mappers:       map[string]reflect.Type{},
	}
}

// RegisterAlias associates a short type name (as referenced by
// `resultType="User"` in mapping markup) with a concrete Go type, the
// supplemented type-alias table from SPEC_FULL.md §12.
func (r *Registry) RegisterAlias(name string, typ reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = typ
}

// ResolveAlias looks up a previously registered alias by name.
func (r *Registry) ResolveAlias(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.aliases[name]
	return t, ok
}

// RegisterMapper registers a Go interface type under its name so
// getMapper(interfaceType) proxies can translate method calls to statement
// ids via the `interfaceName.methodName` convention (spec.md §6).
func (r *Registry) RegisterMapper(name string, typ reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[name] = typ
}

// MapperNamespace resolves the namespace a mapper struct type was
// registered under via RegisterMapper, by identity of typ.
func (r *Registry) MapperNamespace(typ reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.mappers {
		if t == typ {
			return name, true
		}
	}
	return "", false
}

// AddFragment registers a reusable `<sql>` fragment under namespace.id.
func (r *Registry) AddFragment(id, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sqlFragments[id] = &Fragment{ID: id, Content: content}
}

// Fragment returns a previously registered `<sql>` fragment by namespace.id.
func (r *Registry) Fragment(id string) (*Fragment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.sqlFragments[id]
	return f, ok
}

// AddParameterMap registers a parameter map under its id.
func (r *Registry) AddParameterMap(pm *ParameterMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parameterMaps[pm.ID] = pm
}

// ParameterMap looks up a registered parameter map by id.
func (r *Registry) ParameterMap(id string) (*ParameterMap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pm, ok := r.parameterMaps[id]
	return pm, ok
}

// AddKeyGenerator registers a key-generator descriptor (e.g. a `<selectKey>`
// companion statement) under a statement id.
func (r *Registry) AddKeyGenerator(id string, kg *KeyGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyGenerators[id] = kg
}

// KeyGenerator looks up a registered key generator by statement id.
func (r *Registry) KeyGenerator(id string) (*KeyGenerator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kg, ok := r.keyGenerators[id]
	return kg, ok
}

// AddCache declares cache as the namespace cache for ns. AddCacheRef
// records that ns's cache is shared with another namespace (resolved
// during Build).
func (r *Registry) AddCache(ns string, c cache.Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[ns] = c
}

func (r *Registry) AddCacheRef(ns, referenced string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheRefs[ns] = referenced
	r.pending = append(r.pending, pendingItem{
		kind: "cache-ref", source: ns, target: referenced,
		resolve: func(reg *Registry) bool {
			c, ok := reg.caches[referenced]
			if !ok {
				return false
			}
			reg.caches[ns] = c
			return true
		},
	})
}

// Cache returns the namespace cache for ns, if one was declared (directly
// or via cache-ref).
func (r *Registry) Cache(ns string) (cache.Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[ns]
	return c, ok
}

// AddResultMap registers rm. If rm.Extends is non-empty and not yet
// registered, resolution of its inherited mappings is deferred.
func (r *Registry) AddResultMap(rm *ResultMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resultMaps[rm.ID] = rm
	if rm.Extends != "" {
		id := rm.ID
		parent := rm.Extends
		r.pending = append(r.pending, pendingItem{
			kind: "extends", source: id, target: parent,
			resolve: func(reg *Registry) bool {
				p, ok := reg.resultMaps[parent]
				if !ok || !p.resolved {
					return false
				}
				reg.resultMaps[id].inherit(p)
				return true
			},
		})
	}
	for _, rmg := range rm.Mappings {
		if rmg.NestedResultMapID != "" {
			target := rmg.NestedResultMapID
			id := rm.ID
			r.pending = append(r.pending, pendingItem{
				kind: "nested-resultmap", source: id, target: target,
				resolve: func(reg *Registry) bool {
					_, ok := reg.resultMaps[target]
					return ok
				},
			})
		}
	}
}

// ResultMap looks up a registered, resolved result map by id.
func (r *Registry) ResultMap(id string) (*ResultMap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.resultMaps[id]
	return rm, ok
}

// AddStatement registers ms under its fully-qualified id, honoring the
// databaseId priority rule from spec.md §4.10: a statement declared with a
// matching databaseId takes priority over one without; one without a
// databaseId is only registered if no databaseId-matched statement already
// claims the id.
func (r *Registry) AddStatement(ms *MappedStatement, configuredDatabaseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.statements[ms.ID]
	if ok {
		if ms.DatabaseID != "" && ms.DatabaseID == configuredDatabaseID {
			r.statements[ms.ID] = ms
			return
		}
		if existing.DatabaseID == configuredDatabaseID {
			return // existing already matches; don't let a no-databaseId statement clobber it
		}
		if ms.DatabaseID == "" {
			return
		}
	}
	r.statements[ms.ID] = ms
}

// Statement looks up a compiled statement by id.
func (r *Registry) Statement(id string) (*MappedStatement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.statements[id]
	return ms, ok
}

// Statements returns every registered statement, for diagnostics/tests.
func (r *Registry) Statements() map[string]*MappedStatement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*MappedStatement, len(r.statements))
	for k, v := range r.statements {
		out[k] = v
	}
	return out
}

// IncompleteError reports unresolved forward references remaining at the
// end of mapping-build, the CONFIG_INCOMPLETE kind from spec.md §7.
type IncompleteError struct {
	Items []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("registry: %d unresolved reference(s) remain: %v", len(e.Items), e.Items)
}

// Retry re-attempts every pending deferred item once, dropping the ones
// that resolve. Called by the compiler after each mapping file is
// processed (spec.md §4.10 "after each mapping file, re-try all deferred
// items").
func (r *Registry) Retry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryLocked()
}

func (r *Registry) retryLocked() {
	if len(r.pending) == 0 {
		return
	}
	var remaining []pendingItem
	for _, item := range r.pending {
		if !item.resolve(r) {
			remaining = append(remaining, item)
		}
	}
	r.pending = remaining
}

// Build finalizes the registry: retries all deferred items one last time
// and fails with IncompleteError if any remain, per spec.md §4.8/§4.10.
// Also marks every resolved result map as resolved so downstream extends
// resolution sees it as a valid parent.
func (r *Registry) Build() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range r.resultMaps {
		if rm.Extends == "" {
			rm.resolved = true
		}
	}
	// retry repeatedly: an extends chain A<-B<-C resolves in waves.
	for i := 0; i < len(r.pending)+1; i++ {
		before := len(r.pending)
		r.retryLocked()
		for _, rm := range r.resultMaps {
			if !rm.resolved && rm.Extends != "" {
				if p, ok := r.resultMaps[rm.Extends]; ok && p.resolved {
					rm.inherit(p)
				}
			}
		}
		if len(r.pending) == before {
			break
		}
	}
	if len(r.pending) > 0 {
		var items []string
		for _, p := range r.pending {
			items = append(items, fmt.Sprintf("%s %s -> %s", p.kind, p.source, p.target))
		}
		return &IncompleteError{Items: items}
	}
	r.built = true
	return nil
}
