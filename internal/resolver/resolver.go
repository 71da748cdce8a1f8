// Package resolver turns dotted names, in the context of a Documentable,
// into model entities or external references.
package resolver

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"apidoc/internal/model"
	"apidoc/internal/shared/observability"
)

type ResultKind int

const (
	Internal ResultKind = iota
	External
	Unresolved
)

type Result struct {
	Kind ResultKind

	// Internal
	Target *model.Documentable

	// External
	Inventory string
	QName     string
	URL       string

	// Unresolved
	Reason string
}

type cacheKey struct {
	ctx  model.DocID
	name string
}

type Resolver struct {
	sys   *model.System
	cache *lru.Cache[cacheKey, Result]
}

func New(sys *model.System) (*Resolver, error) {
	cache, err := lru.New[cacheKey, Result](8192)
	if err != nil {
		return nil, err
	}
	return &Resolver{sys: sys, cache: cache}, nil
}

// Resolve looks up a dotted name from the scope of ctx. Results are
// memoized per (context id, name); the cache lives until teardown.
func (r *Resolver) Resolve(ctx *model.Documentable, dotted string) Result {
	key := cacheKey{ctx: ctx.ID, name: dotted}
	if res, ok := r.cache.Get(key); ok {
		observability.ResolveCacheHits.Inc()
		return res
	}
	res := r.resolve(ctx, dotted)
	r.cache.Add(key, res)
	return res
}

func (r *Resolver) resolve(ctx *model.Documentable, dotted string) Result {
	dotted = strings.TrimSpace(dotted)
	if dotted == "" || strings.Contains(dotted, ":") {
		return Result{Kind: Unresolved, Reason: "malformed name"}
	}
	segments := strings.Split(dotted, ".")
	for _, s := range segments {
		if s == "" {
			return Result{Kind: Unresolved, Reason: "malformed name"}
		}
	}

	anchor := r.anchor(ctx, segments[0])
	if anchor == nil {
		// absolute references work from any context
		if d, ok := r.sys.Lookup(dotted); ok {
			return Result{Kind: Internal, Target: d}
		}
		return r.external(dotted)
	}

	cur := anchor
	for _, seg := range segments[1:] {
		next := r.member(cur, seg, map[model.DocID]bool{})
		if next == nil {
			return r.external(dotted)
		}
		cur = next
	}
	return Result{Kind: Internal, Target: cur}
}

// anchor walks outward from the context through scopes, selecting the
// nearest one in which the first segment is defined: method -> class
// (its members, then its bases) -> enclosing scopes -> module -> package
// chain -> root modules.
func (r *Resolver) anchor(ctx *model.Documentable, name string) *model.Documentable {
	for cur := ctx; cur != nil; {
		if cur.Kind.IsScope() {
			if d := r.member(cur, name, map[model.DocID]bool{}); d != nil {
				return d
			}
		}
		if cur.Parent == model.NoID {
			break
		}
		cur = r.sys.Get(cur.Parent)
	}
	for _, root := range r.sys.Roots() {
		if root.Name == name {
			return root
		}
	}
	return nil
}

// member finds a name inside a scope: direct children first, then import
// bindings for modules, then the MRO for classes.
func (r *Resolver) member(scope *model.Documentable, name string, seen map[model.DocID]bool) *model.Documentable {
	if seen[scope.ID] {
		return nil
	}
	seen[scope.ID] = true

	if d, ok := r.sys.ChildNamed(scope, name); ok {
		return d
	}

	if scope.Mod != nil {
		if d, ok := r.importedEntity(scope, name, seen); ok {
			return d
		}
	}

	if scope.Class != nil {
		line := scope.Class.MRO
		if len(line) == 0 {
			line = scope.Class.ResolvedBases
		}
		for _, base := range line {
			if base.IsExternal() {
				continue
			}
			ancestor := r.sys.Get(base.ID)
			if ancestor == nil || ancestor.ID == scope.ID {
				continue
			}
			if d := r.member(ancestor, name, seen); d != nil {
				return d
			}
		}
	}
	return nil
}

// ImportedEntity follows the import binding of name inside module mod to
// the entity it names, chasing re-export chains.
func (r *Resolver) ImportedEntity(mod *model.Documentable, name string) (*model.Documentable, bool) {
	return r.importedEntity(mod, name, map[model.DocID]bool{})
}

func (r *Resolver) importedEntity(mod *model.Documentable, name string, seen map[model.DocID]bool) (*model.Documentable, bool) {
	if mod.Mod == nil {
		return nil, false
	}
	for i := len(mod.Mod.Imports) - 1; i >= 0; i-- {
		imp := mod.Mod.Imports[i]
		if imp.Wildcard {
			src, ok := r.sys.Lookup(imp.Source)
			if !ok || src.Mod == nil || seen[src.ID] {
				continue
			}
			exposed := false
			for _, n := range r.sys.PublicNames(src) {
				if n == name {
					exposed = true
					break
				}
			}
			if !exposed {
				continue
			}
			seen[src.ID] = true
			if d, ok := r.sys.ChildNamed(src, name); ok {
				return d, true
			}
			if d, ok := r.importedEntity(src, name, seen); ok {
				return d, true
			}
			continue
		}
		for _, in := range imp.Names {
			if in.Alias != name {
				continue
			}
			// `import a.b as ab` binds the full dotted module
			if in.Name == imp.Source {
				if d, ok := r.sys.Lookup(imp.Source); ok {
					return d, true
				}
				continue
			}
			// a plain `import a.b` binds the top-level module
			if in.Name == in.Alias && !strings.Contains(in.Name, ".") {
				if d, ok := r.sys.Lookup(in.Name); ok && d.Kind.IsModuleLike() && strings.HasPrefix(imp.Source, in.Name) {
					return d, true
				}
			}
			src, ok := r.sys.Lookup(imp.Source)
			if !ok {
				continue
			}
			if d, ok := r.sys.ChildNamed(src, in.Name); ok {
				return d, true
			}
			if src.Mod != nil && !seen[src.ID] {
				seen[src.ID] = true
				if d, ok := r.importedEntity(src, in.Name, seen); ok {
					return d, true
				}
			}
			// `from pkg import sub` may name a submodule
			if d, ok := r.sys.Lookup(imp.Source + "." + in.Name); ok {
				return d, true
			}
		}
	}
	return nil, false
}

func (r *Resolver) external(dotted string) Result {
	if r.sys.Inventories != nil {
		if inv, url, ok := r.sys.Inventories.Lookup(dotted); ok {
			return Result{Kind: External, Inventory: inv, QName: dotted, URL: url}
		}
	}
	return Result{Kind: Unresolved, Reason: "no definition found for " + dotted}
}
