// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mapping

import (
	"encoding/xml"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/sqlbatis/sqlbatis/internal/cache"
	"github.com/sqlbatis/sqlbatis/internal/dynsql"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// MalformedError reports a mapping document that doesn't parse as valid
// markup, the CONFIG_MALFORMED kind from spec.md §7.
type MalformedError struct {
	Namespace string
	Cause     error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("mapping: namespace %q: %v", e.Namespace, e.Cause)
}
func (e *MalformedError) Unwrap() error { return e.Cause }

// Compiler consumes mapping documents and registers their contents into a
// Registry, step by step per spec.md §4.10.
type Compiler struct {
	reg                  *registry.Registry
	defaultDatabaseID    string
	defaultCacheEnabled  bool
}

// New builds a Compiler targeting reg. defaultCacheEnabled mirrors the
// configuration-level `cacheEnabled` setting: when false, `<cache>`
// declarations are parsed but not installed.
func New(reg *registry.Registry, databaseID string, defaultCacheEnabled bool) *Compiler {
	return &Compiler{reg: reg, defaultDatabaseID: databaseID, defaultCacheEnabled: defaultCacheEnabled}
}

// CompileDocument parses one mapping document's raw XML and registers its
// namespace's contents into the Compiler's Registry, per the six-step
// sequence of spec.md §4.10. Call Registry.Retry (or Build, at the end of
// the whole configuration load) after each document to resolve forward
// references.
func (c *Compiler) CompileDocument(raw []byte) error {
	var doc mapperXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return &MalformedError{Cause: err}
	}
	ns := doc.Namespace
	if ns == "" {
		return &MalformedError{Cause: fmt.Errorf("missing namespace attribute")}
	}

	// Step 1: cache-ref (may defer).
	if doc.CacheRef != nil {
		c.reg.AddCacheRef(ns, doc.CacheRef.Namespace)
	}

	// Step 2: namespace cache.
	if doc.Cache != nil && c.defaultCacheEnabled {
		c.reg.AddCache(ns, buildCache(ns, doc.Cache))
	}

	// Step 3: parameter maps.
	for _, pm := range doc.ParameterMaps {
		rpm, err := c.compileParameterMap(ns, pm)
		if err != nil {
			return &MalformedError{Namespace: ns, Cause: err}
		}
		c.reg.AddParameterMap(rpm)
	}

	// Step 4: result maps (may defer for extends/nested-resultMap refs).
	for _, rm := range doc.ResultMaps {
		rrm, err := c.compileResultMap(ns, rm)
		if err != nil {
			return &MalformedError{Namespace: ns, Cause: err}
		}
		c.reg.AddResultMap(rrm)
	}

	// Step 5: reusable <sql> fragments.
	for _, f := range doc.Fragments {
		c.reg.AddFragment(qualify(ns, f.ID), f.InnerXML)
	}

	lookup := func(refid string) (string, bool) {
		id := refid
		if !strings.Contains(id, ".") {
			id = qualify(ns, id)
		}
		f, ok := c.reg.Fragment(id)
		if !ok {
			return "", false
		}
		return f.Content, true
	}

	// Step 6: compile statements.
	for _, s := range doc.Selects {
		if err := c.compileStatement(ns, s, registry.Select, lookup); err != nil {
			return &MalformedError{Namespace: ns, Cause: err}
		}
	}
	for _, s := range doc.Inserts {
		if err := c.compileStatement(ns, s, registry.Insert, lookup); err != nil {
			return &MalformedError{Namespace: ns, Cause: err}
		}
	}
	for _, s := range doc.Updates {
		if err := c.compileStatement(ns, s, registry.Update, lookup); err != nil {
			return &MalformedError{Namespace: ns, Cause: err}
		}
	}
	for _, s := range doc.Deletes {
		if err := c.compileStatement(ns, s, registry.Delete, lookup); err != nil {
			return &MalformedError{Namespace: ns, Cause: err}
		}
	}

	c.reg.Retry()
	return nil
}

func qualify(ns, id string) string {
	if strings.Contains(id, ".") {
		return id
	}
	return ns + "." + id
}

func buildCache(ns string, x *cacheXML) cache.Cache {
	size := atoiOr(x.Size, 1024)
	var c cache.Cache = cache.NewStore(ns)
	switch strings.ToUpper(x.Eviction) {
	case "FIFO":
		c = cache.WithFIFO(c, size)
	case "SOFT":
		c = cache.WithSoft(c, size)
	case "WEAK":
		c = cache.WithSoft(c, size)
	default:
		c = cache.WithLRU(c, size)
	}
	if x.Blocking == "true" {
		c = cache.WithBlocking(c, 0)
	}
	c = cache.WithLogging(c)
	c = cache.WithSynchronized(c)
	if iv := atoiOr(x.FlushInterval, 0); iv > 0 {
		c = cache.WithScheduled(c, time.Duration(iv)*time.Millisecond)
	}
	return c
}

func (c *Compiler) compileParameterMap(ns string, x parameterMapXML) (*registry.ParameterMap, error) {
	typ, _ := c.reg.ResolveAlias(x.Type)
	pm := &registry.ParameterMap{ID: qualify(ns, x.ID), Type: typ}
	for _, p := range x.Parameters {
		pm.Mappings = append(pm.Mappings, registry.ParameterMapping{
			Property:     p.Property,
			AppType:      resolveJavaType(c.reg, p.JavaType),
			JDBCType:     types.JDBCType(strings.ToUpper(p.JdbcType)),
			Mode:         parameterMode(p.Mode),
			NumericScale: atoiOr(p.NumericScale, 0),
			OutResultMapID: qualifyOptional(ns, p.ResultMap),
		})
	}
	return pm, nil
}

func parameterMode(s string) registry.ParameterMode {
	switch strings.ToUpper(s) {
	case "OUT":
		return registry.ModeOut
	case "INOUT":
		return registry.ModeInOut
	default:
		return registry.ModeIn
	}
}

func qualifyOptional(ns, id string) string {
	if id == "" {
		return ""
	}
	return qualify(ns, id)
}

func resolveJavaType(reg *registry.Registry, name string) reflect.Type {
	if name == "" {
		return nil
	}
	t, _ := reg.ResolveAlias(name)
	return t
}

func (c *Compiler) compileResultMap(ns string, x resultMapXML) (*registry.ResultMap, error) {
	typ, ok := c.reg.ResolveAlias(x.Type)
	if !ok && x.Type != "" {
		// unresolved alias: left nil, C12 infers the shape from the caller's
		// destination object at materialize time instead of failing the build.
	}
	rm := &registry.ResultMap{ID: qualify(ns, x.ID), Type: typ, Extends: qualifyOptional(ns, x.Extends)}
	if x.AutoMapping != "" {
		v := x.AutoMapping == "true"
		rm.AutoMapping = &v
	}
	if x.Constructor != nil {
		for _, a := range x.Constructor.IDArgs {
			rm.Mappings = append(rm.Mappings, c.compileResultEntry(ns, a, registry.FlagID, registry.FlagConstructor))
		}
		for _, a := range x.Constructor.Args {
			rm.Mappings = append(rm.Mappings, c.compileResultEntry(ns, a, registry.FlagConstructor))
		}
	}
	for _, e := range x.IDs {
		rm.Mappings = append(rm.Mappings, c.compileResultEntry(ns, e, registry.FlagID))
	}
	for _, e := range x.Results {
		rm.Mappings = append(rm.Mappings, c.compileResultEntry(ns, e))
	}
	for _, e := range x.Associations {
		rm.Mappings = append(rm.Mappings, c.compileResultEntry(ns, e))
	}
	for _, e := range x.Collections {
		rm.Mappings = append(rm.Mappings, c.compileResultEntry(ns, e))
	}
	if x.Discriminator != nil {
		d := &registry.Discriminator{
			Column:   x.Discriminator.Column,
			AppType:  resolveJavaType(c.reg, x.Discriminator.JavaType),
			JDBCType: types.JDBCType(strings.ToUpper(x.Discriminator.JdbcType)),
			Cases:    map[string]string{},
		}
		for _, cs := range x.Discriminator.Cases {
			d.Cases[cs.Value] = qualify(ns, cs.ResultMap)
		}
		rm.Discriminator = d
	}
	return rm, nil
}

func (c *Compiler) compileResultEntry(ns string, e resultEntryXML, flags ...registry.Flag) registry.ResultMapping {
	m := registry.ResultMapping{
		Property:          e.Property,
		Column:            e.Column,
		AppType:           resolveJavaType(c.reg, e.JavaType),
		JDBCType:          types.JDBCType(strings.ToUpper(e.JdbcType)),
		NestedSelectID:    qualifyOptional(ns, e.Select),
		NestedResultMapID: qualifyOptional(ns, e.ResultMap),
		ForeignColumn:     e.ForeignColumn,
		ColumnPrefix:      e.ColumnPrefix,
		Flags:             flags,
		Lazy:              e.Lazy == "true",
	}
	if e.NotNullColumn != "" {
		m.NotNullColumns = strings.Split(e.NotNullColumn, ",")
	}
	return m
}

func (c *Compiler) compileStatement(ns string, x statementXML, command registry.CommandKind, lookup func(string) (string, bool)) error {
	tree, err := buildDynamicTree(x.InnerXML, lookup)
	if err != nil {
		return err
	}

	ms := &registry.MappedStatement{
		ID:             qualify(ns, x.ID),
		Namespace:      ns,
		DatabaseID:     x.DatabaseID,
		Command:        command,
		StatementKind:  statementKind(x.StatementType),
		SQLSource:      tree,
		Raw:            dynsql.IsStatic(tree),
		ParameterMapID: qualifyOptional(ns, x.ParameterMap),
		FetchSize:      atoiOr(x.FetchSize, 0),
		Timeout:        time.Duration(atoiOr(x.Timeout, 0)) * time.Second,
		FlushCache:     boolOr(x.FlushCache, command != registry.Select),
		UseCache:       boolOr(x.UseCache, command == registry.Select),
		ResultOrdered:  x.ResultOrdered == "true",
	}
	if x.ResultMap != "" {
		for _, id := range strings.Split(x.ResultMap, ",") {
			ms.ResultMapIDs = append(ms.ResultMapIDs, qualify(ns, strings.TrimSpace(id)))
		}
	} else if x.ResultType != "" {
		// synthesize an anonymous, auto-mapping result map for resultType.
		typ, _ := c.reg.ResolveAlias(x.ResultType)
		auto := true
		anon := &registry.ResultMap{ID: ms.ID + "-inline", Type: typ, AutoMapping: &auto}
		c.reg.AddResultMap(anon)
		ms.ResultMapIDs = []string{anon.ID}
	}
	if x.ResultSets != "" {
		ms.ResultSets = strings.Split(x.ResultSets, ",")
	}

	ms.KeyGeneratorKind = registry.KeyGenNone
	if x.UseGeneratedKeys == "true" {
		ms.KeyGeneratorKind = registry.KeyGenDriver
	}
	if x.KeyProperty != "" {
		ms.KeyProperties = strings.Split(x.KeyProperty, ",")
	}
	if x.KeyColumn != "" {
		ms.KeyColumns = strings.Split(x.KeyColumn, ",")
	}
	if x.SelectKey != nil {
		if err := c.compileSelectKey(ns, ms, x.SelectKey, lookup); err != nil {
			return err
		}
	}

	c.reg.AddStatement(ms, c.defaultDatabaseID)
	return nil
}

// compileSelectKey registers the `<selectKey>` companion statement and a
// KeyGenerator descriptor pinning BEFORE/AFTER order, per SPEC_FULL.md §12.
func (c *Compiler) compileSelectKey(ns string, owner *registry.MappedStatement, x *selectKeyXML, lookup func(string) (string, bool)) error {
	tree, err := buildDynamicTree(x.InnerXML, lookup)
	if err != nil {
		return err
	}
	skID := owner.ID + "!selectKey"
	typ, _ := c.reg.ResolveAlias(x.ResultType)
	auto := true
	anon := &registry.ResultMap{ID: skID + "-inline", Type: typ, AutoMapping: &auto}
	c.reg.AddResultMap(anon)

	sk := &registry.MappedStatement{
		ID:            skID,
		Namespace:     ns,
		Command:       registry.Select,
		StatementKind: statementKind(x.StatementType),
		SQLSource:     tree,
		Raw:           dynsql.IsStatic(tree),
		ResultMapIDs:  []string{anon.ID},
		UseCache:      false,
		FlushCache:    false,
	}
	c.reg.AddStatement(sk, c.defaultDatabaseID)

	order := registry.KeyGenSelectAfter
	if strings.ToUpper(x.Order) == "BEFORE" {
		order = registry.KeyGenSelectBefore
	}
	owner.KeyGeneratorKind = order
	owner.KeyProperties = strings.Split(x.KeyProperty, ",")
	owner.KeyColumns = strings.Split(x.KeyColumn, ",")
	c.reg.AddKeyGenerator(owner.ID, &registry.KeyGenerator{
		StatementID:   skID,
		Order:         order,
		KeyProperties: owner.KeyProperties,
		KeyColumns:    owner.KeyColumns,
	})
	return nil
}

func statementKind(s string) registry.StatementKind {
	switch strings.ToUpper(s) {
	case "CALLABLE":
		return registry.StatementCallable
	case "STATEMENT":
		return registry.StatementPlain
	default:
		return registry.StatementPrepared
	}
}

func boolOr(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
