// Package serialize dumps the post-processed System as a kind-tagged
// JSON object model and re-hydrates it, so a driver can skip re-parsing.
package serialize

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"apidoc/internal/model"
)

const formatVersion = 1

type docstringJSON struct {
	Text string `json:"text"`
	Line int    `json:"line"`
}

type locationJSON struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

type paramJSON struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Default string `json:"default,omitempty"`
	Type    string `json:"type,omitempty"`
}

type importedNameJSON struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

type importJSON struct {
	Source   string             `json:"source"`
	Names    []importedNameJSON `json:"names,omitempty"`
	Wildcard bool               `json:"wildcard,omitempty"`
	ReExport bool               `json:"reexport,omitempty"`
	Location locationJSON       `json:"location"`
}

type baseRefJSON struct {
	ID       int    `json:"id"`
	External string `json:"external,omitempty"`
}

type decoratorJSON struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

type moduleJSON struct {
	All               []string     `json:"all,omitempty"`
	HasAll            bool         `json:"hasAll,omitempty"`
	DeclaredDocFormat string       `json:"docformat,omitempty"`
	Imports           []importJSON `json:"imports,omitempty"`
	SourcePath        string       `json:"sourcePath,omitempty"`
}

type classJSON struct {
	RawBases      []string        `json:"rawBases,omitempty"`
	ResolvedBases []baseRefJSON   `json:"resolvedBases,omitempty"`
	MRO           []baseRefJSON   `json:"mro,omitempty"`
	MROFailed     bool            `json:"mroFailed,omitempty"`
	Subclasses    []int           `json:"subclasses,omitempty"`
	Decorators    []decoratorJSON `json:"decorators,omitempty"`
	Constructors  []int           `json:"constructors,omitempty"`
}

type funcJSON struct {
	Params     []paramJSON     `json:"params,omitempty"`
	ReturnType string          `json:"returnType,omitempty"`
	Decorators []decoratorJSON `json:"decorators,omitempty"`
	IsAsync    bool            `json:"async,omitempty"`
	IsOverload bool            `json:"overload,omitempty"`
	Overloads  []int           `json:"overloads,omitempty"`
}

type attrJSON struct {
	DeclaredType  string   `json:"declaredType,omitempty"`
	ValueSource   string   `json:"value,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`
	AssignCount   int      `json:"assignCount,omitempty"`
	InControlFlow bool     `json:"inControlFlow,omitempty"`
	ValueLiteral  bool     `json:"valueLiteral,omitempty"`
}

type docJSON struct {
	ID           int            `json:"id"`
	Name         string         `json:"name"`
	QName        string         `json:"qname"`
	Kind         string         `json:"kind"`
	Parent       int            `json:"parent"`
	Children     []int          `json:"children,omitempty"`
	Location     locationJSON   `json:"location"`
	Docstring    *docstringJSON `json:"docstring,omitempty"`
	Privacy      string         `json:"privacy"`
	Introspected bool           `json:"introspected,omitempty"`
	ParseError   bool           `json:"parseError,omitempty"`

	Module *moduleJSON    `json:"module,omitempty"`
	Class  *classJSON     `json:"class,omitempty"`
	Func   *funcJSON      `json:"func,omitempty"`
	Attr   *attrJSON      `json:"attr,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

type registryEntryJSON struct {
	QName string `json:"qname"`
	ID    int    `json:"id"`
}

type systemJSON struct {
	Version   int                 `json:"version"`
	DocFormat string              `json:"docformat"`
	Roots     []int               `json:"roots"`
	Docs      []docJSON           `json:"docs"`
	Registry  []registryEntryJSON `json:"registry"`
	Aliases   []registryEntryJSON `json:"aliases"`
}

// Dump writes the whole arena, registry order and alias table. The
// output is deterministic: two dumps of the same System are
// byte-identical.
func Dump(w io.Writer, sys *model.System) error {
	out := systemJSON{
		Version:   formatVersion,
		DocFormat: sys.DefaultDocFormat,
	}
	for _, r := range sys.Roots() {
		out.Roots = append(out.Roots, int(r.ID))
	}
	for _, d := range sys.Arena() {
		out.Docs = append(out.Docs, encodeDoc(d))
	}
	for _, d := range sys.All() {
		out.Registry = append(out.Registry, registryEntryJSON{QName: d.QName, ID: int(d.ID)})
	}
	for _, a := range sys.Aliases() {
		out.Aliases = append(out.Aliases, registryEntryJSON{QName: a.QName, ID: int(a.ID)})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// DumpFile serializes to path, replacing any previous dump atomically.
func DumpFile(path string, sys *model.System) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Dump(f, sys); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load re-hydrates a dumped System. Extension slots come back as plain
// JSON values; each extension owns decoding its slot.
func Load(r io.Reader, warn model.WarnFunc) (*model.System, error) {
	var in systemJSON
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, err
	}
	if in.Version != formatVersion {
		return nil, fmt.Errorf("unsupported model version %d", in.Version)
	}

	sys := model.NewSystem(warn)
	sys.DefaultDocFormat = in.DocFormat

	var roots []model.DocID
	for _, id := range in.Roots {
		roots = append(roots, model.DocID(id))
	}
	var registry, aliases []model.RegistryEntry
	for _, e := range in.Registry {
		registry = append(registry, model.RegistryEntry{QName: e.QName, ID: model.DocID(e.ID)})
	}
	for _, e := range in.Aliases {
		aliases = append(aliases, model.RegistryEntry{QName: e.QName, ID: model.DocID(e.ID)})
	}

	docs := make([]*model.Documentable, 0, len(in.Docs))
	for i, dj := range in.Docs {
		if dj.ID != i {
			return nil, fmt.Errorf("non-contiguous arena id %d at index %d", dj.ID, i)
		}
		d, err := decodeDoc(dj)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	if err := sys.Restore(docs, roots, registry, aliases); err != nil {
		return nil, err
	}
	sys.Seal()
	return sys, nil
}

func LoadFile(path string, warn model.WarnFunc) (*model.System, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, warn)
}

func encodeDoc(d *model.Documentable) docJSON {
	out := docJSON{
		ID:           int(d.ID),
		Name:         d.Name,
		QName:        d.QName,
		Kind:         d.Kind.String(),
		Parent:       int(d.Parent),
		Location:     locationJSON{File: d.Location.File, Line: d.Location.Line, Column: d.Location.Column},
		Privacy:      d.Privacy.String(),
		Introspected: d.IsIntrospected,
		ParseError:   d.ParseError,
		Extra:        d.ExtraInfo,
	}
	for _, c := range d.Children {
		out.Children = append(out.Children, int(c))
	}
	if d.Docstring != nil {
		out.Docstring = &docstringJSON{Text: d.Docstring.Text, Line: d.Docstring.Line}
	}
	if d.Mod != nil {
		out.Module = &moduleJSON{
			All:               d.Mod.All,
			HasAll:            d.Mod.HasAll,
			DeclaredDocFormat: d.Mod.DeclaredDocFormat,
			SourcePath:        d.Mod.SourcePath,
		}
		for _, imp := range d.Mod.Imports {
			out.Module.Imports = append(out.Module.Imports, encodeImport(imp))
		}
	}
	if d.Class != nil {
		cj := &classJSON{
			RawBases:  d.Class.RawBases,
			MROFailed: d.Class.MROFailed,
		}
		for _, b := range d.Class.ResolvedBases {
			cj.ResolvedBases = append(cj.ResolvedBases, baseRefJSON{ID: int(b.ID), External: b.External})
		}
		for _, b := range d.Class.MRO {
			cj.MRO = append(cj.MRO, baseRefJSON{ID: int(b.ID), External: b.External})
		}
		for _, id := range d.Class.Subclasses {
			cj.Subclasses = append(cj.Subclasses, int(id))
		}
		for _, dec := range d.Class.Decorators {
			cj.Decorators = append(cj.Decorators, decoratorJSON{Name: dec.Name, Args: dec.Args})
		}
		for _, id := range d.Class.ConstructorMethods {
			cj.Constructors = append(cj.Constructors, int(id))
		}
		out.Class = cj
	}
	if d.Func != nil {
		fj := &funcJSON{
			ReturnType: d.Func.ReturnType,
			IsAsync:    d.Func.IsAsync,
			IsOverload: d.Func.IsOverload,
		}
		for _, p := range d.Func.Params {
			fj.Params = append(fj.Params, paramJSON{Name: p.Name, Kind: p.Kind.String(), Default: p.Default, Type: p.Type})
		}
		for _, dec := range d.Func.Decorators {
			fj.Decorators = append(fj.Decorators, decoratorJSON{Name: dec.Name, Args: dec.Args})
		}
		for _, id := range d.Func.Overloads {
			fj.Overloads = append(fj.Overloads, int(id))
		}
		out.Func = fj
	}
	if d.Attr != nil {
		out.Attr = &attrJSON{
			DeclaredType:  d.Attr.DeclaredType,
			ValueSource:   d.Attr.ValueSource,
			Constraints:   d.Attr.Constraints,
			AssignCount:   d.Attr.AssignCount,
			InControlFlow: d.Attr.InControlFlow,
			ValueLiteral:  d.Attr.ValueLiteral,
		}
	}
	return out
}

func encodeImport(imp model.Import) importJSON {
	out := importJSON{
		Source:   imp.Source,
		Wildcard: imp.Wildcard,
		ReExport: imp.ReExport,
		Location: locationJSON{File: imp.Location.File, Line: imp.Location.Line, Column: imp.Location.Column},
	}
	for _, n := range imp.Names {
		out.Names = append(out.Names, importedNameJSON{Name: n.Name, Alias: n.Alias})
	}
	return out
}

func decodeDoc(dj docJSON) (*model.Documentable, error) {
	kind, ok := model.KindFromName(dj.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q for %s", dj.Kind, dj.QName)
	}
	privacy, ok := model.PrivacyFromName(dj.Privacy)
	if !ok {
		return nil, fmt.Errorf("unknown privacy %q for %s", dj.Privacy, dj.QName)
	}
	d := &model.Documentable{
		ID:             model.DocID(dj.ID),
		Name:           dj.Name,
		QName:          dj.QName,
		Kind:           kind,
		Parent:         model.DocID(dj.Parent),
		Location:       model.Location{File: dj.Location.File, Line: dj.Location.Line, Column: dj.Location.Column},
		Privacy:        privacy,
		IsIntrospected: dj.Introspected,
		ParseError:     dj.ParseError,
		ExtraInfo:      dj.Extra,
	}
	for _, c := range dj.Children {
		d.Children = append(d.Children, model.DocID(c))
	}
	if dj.Docstring != nil {
		d.Docstring = &model.Docstring{Text: dj.Docstring.Text, Line: dj.Docstring.Line}
	}
	if dj.Module != nil {
		d.Mod = &model.ModuleData{
			All:               dj.Module.All,
			HasAll:            dj.Module.HasAll,
			DeclaredDocFormat: dj.Module.DeclaredDocFormat,
			SourcePath:        dj.Module.SourcePath,
		}
		for _, imp := range dj.Module.Imports {
			d.Mod.Imports = append(d.Mod.Imports, decodeImport(imp))
		}
	}
	if dj.Class != nil {
		d.Class = &model.ClassData{
			RawBases:  dj.Class.RawBases,
			MROFailed: dj.Class.MROFailed,
		}
		for _, b := range dj.Class.ResolvedBases {
			d.Class.ResolvedBases = append(d.Class.ResolvedBases, model.BaseRef{ID: model.DocID(b.ID), External: b.External})
		}
		for _, b := range dj.Class.MRO {
			d.Class.MRO = append(d.Class.MRO, model.BaseRef{ID: model.DocID(b.ID), External: b.External})
		}
		for _, id := range dj.Class.Subclasses {
			d.Class.Subclasses = append(d.Class.Subclasses, model.DocID(id))
		}
		for _, dec := range dj.Class.Decorators {
			d.Class.Decorators = append(d.Class.Decorators, model.Decorator{Name: dec.Name, Args: dec.Args})
		}
		for _, id := range dj.Class.Constructors {
			d.Class.ConstructorMethods = append(d.Class.ConstructorMethods, model.DocID(id))
		}
	}
	if dj.Func != nil {
		d.Func = &model.FuncData{
			ReturnType: dj.Func.ReturnType,
			IsAsync:    dj.Func.IsAsync,
			IsOverload: dj.Func.IsOverload,
		}
		for _, p := range dj.Func.Params {
			kind, ok := paramKindFromName(p.Kind)
			if !ok {
				return nil, fmt.Errorf("unknown parameter kind %q in %s", p.Kind, dj.QName)
			}
			d.Func.Params = append(d.Func.Params, model.Parameter{Name: p.Name, Kind: kind, Default: p.Default, Type: p.Type})
		}
		for _, dec := range dj.Func.Decorators {
			d.Func.Decorators = append(d.Func.Decorators, model.Decorator{Name: dec.Name, Args: dec.Args})
		}
		for _, id := range dj.Func.Overloads {
			d.Func.Overloads = append(d.Func.Overloads, model.DocID(id))
		}
	}
	if dj.Attr != nil {
		d.Attr = &model.AttrData{
			DeclaredType:  dj.Attr.DeclaredType,
			ValueSource:   dj.Attr.ValueSource,
			Constraints:   dj.Attr.Constraints,
			AssignCount:   dj.Attr.AssignCount,
			InControlFlow: dj.Attr.InControlFlow,
			ValueLiteral:  dj.Attr.ValueLiteral,
		}
	}
	return d, nil
}

func decodeImport(ij importJSON) model.Import {
	out := model.Import{
		Source:   ij.Source,
		Wildcard: ij.Wildcard,
		ReExport: ij.ReExport,
		Location: model.Location{File: ij.Location.File, Line: ij.Location.Line, Column: ij.Location.Column},
	}
	for _, n := range ij.Names {
		out.Names = append(out.Names, model.ImportedName{Name: n.Name, Alias: n.Alias})
	}
	return out
}

func paramKindFromName(name string) (model.ParamKind, bool) {
	switch name {
	case "positional-only":
		return model.ParamPositionalOnly, true
	case "positional-or-keyword":
		return model.ParamPositionalOrKeyword, true
	case "variadic-positional":
		return model.ParamVarPositional, true
	case "keyword-only":
		return model.ParamKeywordOnly, true
	case "variadic-keyword":
		return model.ParamVarKeyword, true
	}
	return 0, false
}
