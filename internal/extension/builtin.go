package extension

import (
	"strings"

	"apidoc/internal/model"
)

// RegisterBuiltins installs the stock extensions: deprecation notes,
// interface-declaration recognition and alternative-constructor
// detection.
func RegisterBuiltins(reg *Registry) {
	reg.RegisterPostProcessor(PostProcessor{
		Name:     "deprecations",
		Priority: 100,
		Run:      markDeprecations,
	})
	reg.RegisterPostProcessor(PostProcessor{
		Name:     "interfaces",
		Priority: 90,
		Run:      markInterfaces,
	})
	reg.RegisterPostProcessor(PostProcessor{
		Name:     "alternative-constructors",
		Priority: 80,
		Run:      recognizeConstructors,
	})
}

// markDeprecations records a note for every entity carrying a
// @deprecated decorator, keeping the argument text as the reason.
func markDeprecations(sys *model.System) {
	for _, d := range sys.All() {
		var decorators []model.Decorator
		switch {
		case d.Func != nil:
			decorators = d.Func.Decorators
		case d.Class != nil:
			decorators = d.Class.Decorators
		}
		for _, dec := range decorators {
			if lastDotted(dec.Name) != "deprecated" {
				continue
			}
			reason := strings.Trim(dec.Args, `"'`)
			d.SetExtra(sys, "deprecations", "deprecated", reason)
			break
		}
	}
}

// markInterfaces tags classes whose base chain reaches a name ending in
// "Interface"; their methods are treated as abstract declarations.
func markInterfaces(sys *model.System) {
	for _, d := range sys.All() {
		if d.Class == nil {
			continue
		}
		isInterface := strings.HasSuffix(d.Name, "Interface")
		if !isInterface {
			for _, ref := range d.Class.MRO {
				name := ref.External
				if !ref.IsExternal() {
					if a := sys.Get(ref.ID); a != nil {
						name = a.Name
					}
				}
				if strings.HasSuffix(lastDotted(name), "Interface") {
					isInterface = true
					break
				}
			}
		}
		if !isInterface {
			continue
		}
		d.SetExtra(sys, "interfaces", "interface", true)
		for _, id := range d.Children {
			if m := sys.Get(id); m != nil && m.Kind.IsCallable() {
				m.SetExtra(sys, "interfaces", "abstract", true)
			}
		}
	}
}

// recognizeConstructors extends each class's constructor list with
// classmethods whose return annotation names the class itself.
func recognizeConstructors(sys *model.System) {
	for _, d := range sys.All() {
		if d.Class == nil {
			continue
		}
		for _, id := range d.Children {
			m := sys.Get(id)
			if m == nil || m.Kind != model.KindClassMethod || m.Func == nil {
				continue
			}
			ret := strings.Trim(m.Func.ReturnType, `"'`)
			if i := strings.IndexByte(ret, '['); i > 0 {
				ret = ret[:i]
			}
			if ret == "" {
				continue
			}
			if lastDotted(ret) == d.Name || ret == "Self" || ret == "typing.Self" {
				d.Class.ConstructorMethods = appendOnce(d.Class.ConstructorMethods, id)
			}
		}
	}
}

func appendOnce(ids []model.DocID, id model.DocID) []model.DocID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func lastDotted(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
