package postprocess

import (
	"sort"
	"strings"

	"apidoc/internal/model"
)

type exportSite struct {
	module *model.Documentable
	name   string
	order  int
}

// relocateReExports moves each re-exported entity to its innermost
// export site and records aliases for every other qname it is reachable
// by. A module's explicit public-name list drives relocation; a wildcard
// import into a module without one exposes the source's public names the
// same way.
func (p *Processor) relocateReExports() {
	sites := make(map[model.DocID][]exportSite)
	order := 0

	for _, mod := range p.sys.All() {
		if mod.Mod == nil {
			continue
		}
		var names []string
		if mod.Mod.HasAll {
			names = mod.Mod.All
		} else {
			for _, imp := range mod.Mod.Imports {
				if !imp.Wildcard {
					continue
				}
				if src, ok := p.sys.Lookup(imp.Source); ok && src.Mod != nil {
					names = append(names, p.sys.PublicNames(src)...)
				}
			}
		}
		for _, name := range names {
			if strings.Contains(name, ".") || name == "" {
				continue
			}
			if _, defined := p.sys.ChildNamed(mod, name); defined {
				continue
			}
			target, ok := p.res.ImportedEntity(mod, name)
			if !ok || target.Kind.IsModuleLike() {
				continue
			}
			sites[target.ID] = append(sites[target.ID], exportSite{module: mod, name: name, order: order})
			order++
		}
	}

	ids := make([]model.DocID, 0, len(sites))
	for id := range sites {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p.relocateOne(p.sys.Get(id), sites[id])
	}
}

func (p *Processor) relocateOne(d *model.Documentable, candidates []exportSite) {
	if d == nil {
		return
	}
	// the innermost site wins: fewest segments, then first encountered.
	// A site at the same depth as the definition still takes ownership:
	// naming an entity in a public-name list makes that module its home.
	best := -1
	bestSegs := model.SegmentCount(d.QName) + 1
	for i, site := range candidates {
		segs := model.SegmentCount(site.module.QName + "." + site.name)
		if segs < bestSegs {
			best = i
			bestSegs = segs
		}
	}

	for i, site := range candidates {
		if i == best {
			continue
		}
		p.sys.AddAlias(site.module.QName+"."+site.name, d)
	}

	if best < 0 {
		return
	}
	var equallyShort []string
	for i, site := range candidates {
		if i == best {
			continue
		}
		qname := site.module.QName + "." + site.name
		if model.SegmentCount(qname) == bestSegs {
			equallyShort = append(equallyShort, qname)
		}
	}
	if len(equallyShort) > 0 {
		chosen := candidates[best].module.QName + "." + candidates[best].name
		p.sys.Warn("reexport",
			d.QName+" re-exported from equally short paths ("+strings.Join(equallyShort, ", ")+"), keeping "+chosen,
			d.Location)
	}

	site := candidates[best]
	newQName := site.module.QName + "." + site.name
	if newQName == d.QName {
		return
	}
	if site.name != d.Name {
		// renamed re-export: expose the alias but keep the original name
		p.sys.AddAlias(newQName, d)
		return
	}
	p.sys.Relocate(d, site.module.ID)
}
