package postprocess

import (
	"sort"
	"strings"

	"apidoc/internal/model"
)

// detectConstants promotes Variables and ClassVariables to Constant when
// the name is all-upper with underscores, the single assignment is
// unconditional, and the initializer is a literal. A Final annotation
// promotes a literal assignment regardless of the name.
func (p *Processor) detectConstants() {
	for _, d := range p.sys.All() {
		if d.Attr == nil {
			continue
		}
		if d.Kind != model.KindVariable && d.Kind != model.KindClassVariable {
			continue
		}
		if d.Attr.AssignCount != 1 || d.Attr.InControlFlow || !d.Attr.ValueLiteral {
			continue
		}
		if isConstantName(d.Name) || isFinalAnnotation(d.Attr.DeclaredType) {
			d.Kind = model.KindConstant
		}
	}
}

func isConstantName(name string) bool {
	hasUpper := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r == '_' || (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return hasUpper
}

func isFinalAnnotation(annotation string) bool {
	s := strings.TrimSpace(annotation)
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return s == "Final"
}

// groupOverloads attaches every shadowed overload declaration to the
// canonical entity registered under the shared qname.
func (p *Processor) groupOverloads() {
	grouped := make(map[model.DocID][]model.DocID)
	for _, d := range p.sys.Arena() {
		if d.Func == nil || !d.Func.IsOverload {
			continue
		}
		canonical, ok := p.sys.Lookup(d.QName)
		if !ok || canonical.ID == d.ID || canonical.Func == nil {
			continue
		}
		grouped[canonical.ID] = append(grouped[canonical.ID], d.ID)
	}
	for _, d := range p.sys.All() {
		if d.Func == nil {
			continue
		}
		ids := grouped[d.ID]
		if d.Func.IsOverload {
			// no final implementation: the registered declaration keeps
			// its own signature in the table as well
			ids = append(ids, d.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		d.Func.Overloads = ids
	}
}

// reclassifyProperties turns functions decorated with a *property
// decorator into Property attributes; the Function kind is discarded and
// the return annotation becomes the declared type.
func (p *Processor) reclassifyProperties() {
	for _, d := range p.sys.All() {
		if d.Func == nil || !d.Kind.IsCallable() {
			continue
		}
		isProperty := false
		for _, dec := range d.Func.Decorators {
			last := dec.Name
			if i := strings.LastIndex(last, "."); i >= 0 {
				last = last[i+1:]
			}
			if strings.HasSuffix(strings.ToLower(last), "property") {
				isProperty = true
				break
			}
		}
		if !isProperty {
			continue
		}
		d.Kind = model.KindProperty
		d.Attr = &model.AttrData{DeclaredType: d.Func.ReturnType, AssignCount: 1}
		d.Func = nil
	}
}
