// Package extension is the registrar for AST visitors, Documentable
// mix-in capabilities and post-processors.
package extension

import (
	"sort"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"apidoc/internal/model"
)

// BuilderContext is the view of the AST builder handed to node visitors.
// Visitors may create siblings of the default result through NewChild but
// must not mutate other modules.
type BuilderContext interface {
	System() *model.System
	// Module is the module being built.
	Module() *model.Documentable
	// Scope is the innermost enclosing Documentable at the visited node.
	Scope() *model.Documentable
	Source() []byte
	Path() string
	Text(node *sitter.Node) string
	NewChild(name string, kind model.Kind, loc model.Location) *model.Documentable
	Warn(category, message string, loc model.Location)
}

// NodeVisitor runs before and/or after the built-in handler for the node
// kinds it names (every kind when Kinds is empty).
type NodeVisitor struct {
	Name   string
	Kinds  []string
	Before func(ctx BuilderContext, node *sitter.Node)
	After  func(ctx BuilderContext, node *sitter.Node)
}

// PostProcessor runs once over the finished System. Higher priority runs
// first; insertion order breaks ties.
type PostProcessor struct {
	Name     string
	Priority int
	Run      func(sys *model.System)

	seq int
}

// Mixin grants a named capability to every Documentable of the listed
// kinds, applied after the built-in post-processing passes.
type Mixin struct {
	Name  string
	Kinds []model.Kind
	Apply func(sys *model.System, d *model.Documentable)
}

type Registry struct {
	visitors []NodeVisitor
	byKind   map[string][]int
	anyKind  []int

	posts  []PostProcessor
	mixins []Mixin
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[string][]int)}
}

func (r *Registry) RegisterVisitor(v NodeVisitor) {
	idx := len(r.visitors)
	r.visitors = append(r.visitors, v)
	if len(v.Kinds) == 0 {
		r.anyKind = append(r.anyKind, idx)
		return
	}
	for _, k := range v.Kinds {
		r.byKind[k] = append(r.byKind[k], idx)
	}
}

func (r *Registry) RegisterPostProcessor(p PostProcessor) {
	p.seq = len(r.posts)
	r.posts = append(r.posts, p)
}

func (r *Registry) RegisterMixin(m Mixin) {
	r.mixins = append(r.mixins, m)
}

// VisitBefore invokes the before-hooks registered for the node's kind, in
// registration order.
func (r *Registry) VisitBefore(kind string, ctx BuilderContext, node *sitter.Node) {
	for _, idx := range r.matching(kind) {
		if fn := r.visitors[idx].Before; fn != nil {
			fn(ctx, node)
		}
	}
}

// VisitAfter invokes the after-hooks registered for the node's kind.
func (r *Registry) VisitAfter(kind string, ctx BuilderContext, node *sitter.Node) {
	for _, idx := range r.matching(kind) {
		if fn := r.visitors[idx].After; fn != nil {
			fn(ctx, node)
		}
	}
}

func (r *Registry) matching(kind string) []int {
	specific := r.byKind[kind]
	if len(r.anyKind) == 0 {
		return specific
	}
	merged := make([]int, 0, len(specific)+len(r.anyKind))
	merged = append(merged, specific...)
	merged = append(merged, r.anyKind...)
	sort.Ints(merged)
	return merged
}

// PostProcessors returns the registered processors, highest priority
// first, insertion order on ties.
func (r *Registry) PostProcessors() []PostProcessor {
	out := append([]PostProcessor(nil), r.posts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// ApplyMixins grants capabilities across the registry. Post-processing
// calls it after its built-in passes and before the registered
// post-processors.
func (r *Registry) ApplyMixins(sys *model.System) {
	for _, m := range r.mixins {
		for _, d := range sys.All() {
			if len(m.Kinds) == 0 || containsKind(m.Kinds, d.Kind) {
				m.Apply(sys, d)
			}
		}
	}
}

func containsKind(kinds []model.Kind, k model.Kind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}
