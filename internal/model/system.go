package model

import (
	"errors"
	"sort"
	"strings"
)

var (
	errRestoreNonEmpty = errors.New("cannot restore into a non-empty system")
	errRestoreBadID    = errors.New("restore: registry id out of range")
)

// WarnFunc receives every non-fatal condition the pipeline surfaces.
// Categories are stable strings ("parse", "resolve", "mro", "reexport",
// "all-exports", "introspect", "extension-conflict", ...).
type WarnFunc func(category, message string, loc Location)

// ExternalLookup is the query side of the loaded external inventories.
type ExternalLookup interface {
	// Lookup resolves a possibly-qualified name to (inventory name,
	// absolute url). The inventory Set matches the whole name exactly,
	// or as a dotted suffix of an entry name; it does not fall back to
	// shorter prefixes of the name.
	Lookup(name string) (inventory, url string, ok bool)
}

// System is the process-wide registry: the arena of Documentables, the
// qname index, root modules, privacy rules and the warning sink. It is
// single-writer during the build phase and read-only afterward.
type System struct {
	docs []*Documentable

	byQName map[string]DocID
	// qnameOrder preserves registration order for deterministic iteration.
	qnameOrder []string
	// aliases map every relocated (re-exported) qname that is not the
	// canonical one to the same entity.
	aliases map[string]DocID

	roots []DocID

	privacyRules []PrivacyRule
	Inventories  ExternalLookup

	// DefaultDocFormat applies when no module in the chain declares one.
	DefaultDocFormat string
	// ForcePlaintext overrides every declared docformat, used for
	// error-focused builds.
	ForcePlaintext bool

	warn         WarnFunc
	WarningCount map[string]int

	sealed bool
}

func NewSystem(warn WarnFunc) *System {
	if warn == nil {
		warn = func(string, string, Location) {}
	}
	return &System{
		byQName:          make(map[string]DocID),
		aliases:          make(map[string]DocID),
		warn:             warn,
		WarningCount:     make(map[string]int),
		DefaultDocFormat: "plaintext",
	}
}

func (s *System) Warn(category, message string, loc Location) {
	s.WarningCount[category]++
	s.warn(category, message, loc)
}

// NewDocumentable allocates an entity in the arena, links it under parent
// (NoID for a root) and registers its qname.
func (s *System) NewDocumentable(name string, kind Kind, parent DocID, loc Location) *Documentable {
	d := &Documentable{
		ID:       DocID(len(s.docs)),
		Name:     name,
		Kind:     kind,
		Parent:   parent,
		Location: loc,
	}
	switch {
	case kind.IsModuleLike():
		d.Mod = &ModuleData{}
	case kind.IsClassLike():
		d.Class = &ClassData{}
	case kind.IsCallable():
		d.Func = &FuncData{}
	default:
		d.Attr = &AttrData{}
	}
	if parent == NoID {
		d.QName = name
		s.roots = append(s.roots, d.ID)
	} else {
		p := s.docs[parent]
		d.QName = p.QName + "." + name
		p.Children = append(p.Children, d.ID)
	}
	s.docs = append(s.docs, d)
	s.register(d)
	return d
}

// NewBinaryModule allocates an introspected Module placeholder. The flag
// must be set before registration so the binary-wins tie-break applies.
func (s *System) NewBinaryModule(name string, parent DocID, loc Location) *Documentable {
	d := &Documentable{
		ID:             DocID(len(s.docs)),
		Name:           name,
		Kind:           KindModule,
		Parent:         parent,
		Location:       loc,
		IsIntrospected: true,
		Mod:            &ModuleData{},
	}
	if parent == NoID {
		d.QName = name
		s.roots = append(s.roots, d.ID)
	} else {
		p := s.docs[parent]
		d.QName = p.QName + "." + name
		p.Children = append(p.Children, d.ID)
	}
	s.docs = append(s.docs, d)
	s.register(d)
	return d
}

// register indexes d by qname, applying the construction tie-breaks:
// a Package wins over a Module of the same qname, an introspected binary
// module wins over a parsed source module. The loser stays in the arena
// but is dropped from its parent's children and the index.
func (s *System) register(d *Documentable) {
	prev, exists := s.byQName[d.QName]
	if !exists {
		s.byQName[d.QName] = d.ID
		s.qnameOrder = append(s.qnameOrder, d.QName)
		return
	}
	old := s.docs[prev]
	if s.wins(d, old) {
		s.byQName[d.QName] = d.ID
		s.detachChild(old)
	} else {
		s.detachChild(d)
	}
}

func (s *System) wins(neu, old *Documentable) bool {
	if neu.Kind == KindPackage && old.Kind == KindModule {
		return true
	}
	if neu.IsIntrospected && !old.IsIntrospected {
		return true
	}
	// a redefinition of a callable or class shadows the earlier one, the
	// way the runtime would; earlier overload declarations stay in the
	// arena and are regrouped in post-processing
	if (neu.Kind.IsCallable() || neu.Kind.IsClassLike()) &&
		(old.Kind.IsCallable() || old.Kind.IsClassLike()) {
		return true
	}
	return false
}

func (s *System) detachChild(d *Documentable) {
	if d.Parent == NoID {
		return
	}
	p := s.docs[d.Parent]
	for i, id := range p.Children {
		if id == d.ID {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
}

// Get returns the entity for an arena id.
func (s *System) Get(id DocID) *Documentable {
	if id < 0 || int(id) >= len(s.docs) {
		return nil
	}
	return s.docs[id]
}

// Lookup finds an entity by qname, consulting canonical names first and
// relocation aliases second.
func (s *System) Lookup(qname string) (*Documentable, bool) {
	if id, ok := s.byQName[qname]; ok {
		return s.docs[id], true
	}
	if id, ok := s.aliases[qname]; ok {
		return s.docs[id], true
	}
	return nil, false
}

// Roots returns the root Packages/Modules in registration order.
func (s *System) Roots() []*Documentable {
	out := make([]*Documentable, 0, len(s.roots))
	for _, id := range s.roots {
		out = append(out, s.docs[id])
	}
	return out
}

// All iterates every registered entity in deterministic (registration)
// order. Detached tie-break losers are not included.
func (s *System) All() []*Documentable {
	out := make([]*Documentable, 0, len(s.qnameOrder))
	seen := make(map[DocID]bool, len(s.qnameOrder))
	for _, q := range s.qnameOrder {
		id, ok := s.byQName[q]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s.docs[id])
	}
	return out
}

// Len reports the arena size, including detached entities.
func (s *System) Len() int { return len(s.docs) }

// Arena returns every allocated entity in id order, including tie-break
// losers and superseded redefinitions that are no longer registered.
func (s *System) Arena() []*Documentable {
	return append([]*Documentable(nil), s.docs...)
}

// Relocate moves d under newParent, rewrites the qnames of d and its
// descendants, and leaves aliases behind for every old qname.
func (s *System) Relocate(d *Documentable, newParent DocID) {
	s.detachChild(d)
	delete(s.byQName, d.QName)
	d.Parent = newParent
	p := s.docs[newParent]
	p.Children = append(p.Children, d.ID)
	s.rekey(d, p.QName+"."+d.Name)
}

func (s *System) rekey(d *Documentable, qname string) {
	old := d.QName
	d.QName = qname
	s.aliases[old] = d.ID
	delete(s.byQName, old)
	s.byQName[qname] = d.ID
	s.qnameOrder = append(s.qnameOrder, qname)
	for _, c := range d.Children {
		child := s.docs[c]
		s.rekey(child, qname+"."+child.Name)
	}
}

// AddAlias records an extra qname for d without making it canonical.
func (s *System) AddAlias(qname string, d *Documentable) {
	if _, taken := s.byQName[qname]; taken {
		return
	}
	s.aliases[qname] = d.ID
}

// RegistryEntry is one (qname, id) pair of the registry or alias table.
type RegistryEntry struct {
	QName string
	ID    DocID
}

// Aliases returns the relocation alias table sorted by qname, for
// serialization.
func (s *System) Aliases() []RegistryEntry {
	keys := make([]string, 0, len(s.aliases))
	for k := range s.aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]RegistryEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, RegistryEntry{QName: k, ID: s.aliases[k]})
	}
	return out
}

// Restore rebuilds a System from serialized state: the arena in id
// order, the root list, the registry in its deterministic order, and
// the alias table. Used by the persisted-state loader.
func (s *System) Restore(docs []*Documentable, roots []DocID, registry, aliases []RegistryEntry) error {
	if len(s.docs) != 0 {
		return errRestoreNonEmpty
	}
	s.docs = docs
	s.roots = roots
	for _, e := range registry {
		if int(e.ID) >= len(docs) || e.ID < 0 {
			return errRestoreBadID
		}
		s.byQName[e.QName] = e.ID
		s.qnameOrder = append(s.qnameOrder, e.QName)
	}
	for _, e := range aliases {
		if int(e.ID) >= len(docs) || e.ID < 0 {
			return errRestoreBadID
		}
		s.aliases[e.QName] = e.ID
	}
	return nil
}

// Seal marks the registry read-only. The mark is advisory: writes after
// sealing are not checked, and neither warn nor panic; Sealed reports it.
func (s *System) Seal()        { s.sealed = true }
func (s *System) Sealed() bool { return s.sealed }

// Module returns the nearest enclosing Module/Package of d (d itself when
// module-like).
func (s *System) Module(d *Documentable) *Documentable {
	for cur := d; cur != nil; {
		if cur.Kind.IsModuleLike() {
			return cur
		}
		if cur.Parent == NoID {
			return nil
		}
		cur = s.docs[cur.Parent]
	}
	return nil
}

// DocFormat resolves the active docstring format for d per the
// inheritance rules: module declaration, else nearest enclosing package,
// else the system default. ForcePlaintext overrides declarations.
func (s *System) DocFormat(d *Documentable) string {
	if s.ForcePlaintext {
		return "plaintext"
	}
	for cur := s.Module(d); cur != nil; {
		if cur.Mod != nil && cur.Mod.DeclaredDocFormat != "" {
			return cur.Mod.DeclaredDocFormat
		}
		if cur.Parent == NoID {
			break
		}
		cur = s.docs[cur.Parent]
	}
	return s.DefaultDocFormat
}

// ChildNamed finds a direct child of d by name.
func (s *System) ChildNamed(d *Documentable, name string) (*Documentable, bool) {
	for _, id := range d.Children {
		if c := s.docs[id]; c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// PublicNames lists the names a wildcard import of module m binds: the
// declared public-name list when present, otherwise every child not
// starting with an underscore.
func (s *System) PublicNames(m *Documentable) []string {
	if m.Mod != nil && m.Mod.HasAll {
		return append([]string(nil), m.Mod.All...)
	}
	var names []string
	for _, id := range m.Children {
		c := s.docs[id]
		if !strings.HasPrefix(c.Name, "_") {
			names = append(names, c.Name)
		}
	}
	return names
}
