// Package postprocess runs the global passes after every module is
// built: base resolution, MRO, subclass lists, re-export relocation,
// privacy, constant detection and overload grouping.
package postprocess

import (
	"fmt"
	"strings"

	"apidoc/internal/extension"
	"apidoc/internal/model"
	"apidoc/internal/resolver"
)

type Processor struct {
	sys *model.System
	res *resolver.Resolver
	reg *extension.Registry
	// Strict re-raises panics out of extension post-processors after
	// logging the offender.
	Strict bool
}

func New(sys *model.System, res *resolver.Resolver, reg *extension.Registry) *Processor {
	if reg == nil {
		reg = extension.NewRegistry()
	}
	return &Processor{sys: sys, res: res, reg: reg}
}

// Run executes the built-in passes in order, then the registered
// post-processors (higher priority first), then seals the registry.
// Running it twice over the same System yields an identical registry.
func (p *Processor) Run() {
	p.resolveBases()
	p.computeMRO()
	p.markExceptions()
	p.collectSubclasses()
	p.relocateReExports()
	p.groupOverloads()
	p.reclassifyProperties()
	p.detectConstants()
	p.assignPrivacy()

	p.reg.ApplyMixins(p.sys)
	for _, post := range p.reg.PostProcessors() {
		p.runExtension(post)
	}

	p.sys.Seal()
}

func (p *Processor) runExtension(post extension.PostProcessor) {
	defer func() {
		if r := recover(); r != nil {
			p.sys.Warn("extension", fmt.Sprintf("post-processor %s panicked: %v", post.Name, r), model.Location{})
			if p.Strict {
				panic(r)
			}
		}
	}()
	post.Run(p.sys)
}

// resolveBases resolves each class's raw base expressions in the scope
// of its parent. Subscripted bases resolve on their stem; what cannot be
// resolved is kept as an external reference.
func (p *Processor) resolveBases() {
	for _, d := range p.sys.All() {
		if d.Class == nil {
			continue
		}
		d.Class.ResolvedBases = d.Class.ResolvedBases[:0]
		scope := p.sys.Get(d.Parent)
		if scope == nil {
			scope = d
		}
		for _, raw := range d.Class.RawBases {
			name := baseStem(raw)
			if name == "" {
				d.Class.ResolvedBases = append(d.Class.ResolvedBases, model.BaseRef{ID: model.NoID, External: raw})
				continue
			}
			res := p.res.Resolve(scope, name)
			switch res.Kind {
			case resolver.Internal:
				if res.Target.Class != nil && res.Target.ID != d.ID {
					d.Class.ResolvedBases = append(d.Class.ResolvedBases, model.BaseRef{ID: res.Target.ID})
					continue
				}
				d.Class.ResolvedBases = append(d.Class.ResolvedBases, model.BaseRef{ID: model.NoID, External: name})
			default:
				d.Class.ResolvedBases = append(d.Class.ResolvedBases, model.BaseRef{ID: model.NoID, External: name})
			}
		}
	}
}

// baseStem strips subscripts and whitespace from a base expression,
// keeping the dotted stem: "abc.Generic[T]" -> "abc.Generic".
func baseStem(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r != '.' && r != '_' && !isAlnum(r) {
			return ""
		}
	}
	return s
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func (p *Processor) computeMRO() {
	lin := newLinearizer(p.sys)
	for _, d := range p.sys.All() {
		if d.Class == nil {
			continue
		}
		line, ok := lin.mro(d)
		d.Class.MRO = line
		d.Class.MROFailed = !ok
		if !ok {
			p.sys.Warn("mro", "inconsistent inheritance for "+d.QName+", using depth-first fallback", d.Location)
		}
	}
}

// markExceptions flips classes whose ancestry reaches a known exception
// root to the Exception kind.
func (p *Processor) markExceptions() {
	for _, d := range p.sys.All() {
		if d.Class == nil || d.Kind == model.KindException {
			continue
		}
		for _, ref := range d.Class.MRO {
			if ref.IsExternal() && isExceptionName(ref.External) {
				d.Kind = model.KindException
				break
			}
			if !ref.IsExternal() {
				if a := p.sys.Get(ref.ID); a != nil && a.ID != d.ID && a.Kind == model.KindException {
					d.Kind = model.KindException
					break
				}
			}
		}
	}
}

func isExceptionName(dotted string) bool {
	last := dotted
	if i := strings.LastIndex(last, "."); i >= 0 {
		last = last[i+1:]
	}
	if last == "BaseException" || last == "Exception" {
		return true
	}
	return strings.HasSuffix(last, "Error") || strings.HasSuffix(last, "Warning")
}

// collectSubclasses rebuilds the reverse index from every class's MRO.
func (p *Processor) collectSubclasses() {
	for _, d := range p.sys.All() {
		if d.Class != nil {
			d.Class.Subclasses = d.Class.Subclasses[:0]
		}
	}
	for _, d := range p.sys.All() {
		if d.Class == nil {
			continue
		}
		for _, ref := range d.Class.MRO {
			if ref.IsExternal() || ref.ID == d.ID {
				continue
			}
			if a := p.sys.Get(ref.ID); a != nil && a.Class != nil {
				a.Class.Subclasses = appendIDOnce(a.Class.Subclasses, d.ID)
			}
		}
	}
}

func appendIDOnce(ids []model.DocID, id model.DocID) []model.DocID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// assignPrivacy applies the default naming rules and the user override
// table, then hides descendants of HIDDEN scopes transitively.
func (p *Processor) assignPrivacy() {
	memo := make(map[model.DocID]model.Privacy)
	var compute func(d *model.Documentable) model.Privacy
	compute = func(d *model.Documentable) model.Privacy {
		if v, ok := memo[d.ID]; ok {
			return v
		}
		privacy := p.sys.PrivacyFor(d.QName, d.Name)
		if d.Parent != model.NoID {
			if parent := p.sys.Get(d.Parent); parent != nil && compute(parent) == model.Hidden {
				privacy = model.Hidden
			}
		}
		memo[d.ID] = privacy
		return privacy
	}
	for _, d := range p.sys.All() {
		d.Privacy = compute(d)
	}
}
