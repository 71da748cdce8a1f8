package model

import "strings"

// DocID addresses a Documentable inside its System's arena. IDs are stable
// for the lifetime of the System and double as deterministic ordering keys.
type DocID int

// NoID marks an absent parent or an unresolved reference.
const NoID DocID = -1

type Location struct {
	File   string
	Line   int
	Column int
}

// Docstring is a raw docstring with the line it starts on. Markup parsing
// happens downstream.
type Docstring struct {
	Text string
	Line int
}

// Decorator records a decoration as written: the dotted name and, when the
// decorator was called, the argument list source text.
type Decorator struct {
	Name string
	Args string
}

// ParamKind follows the positional/keyword taxonomy of the source language.
type ParamKind int

const (
	ParamPositionalOnly ParamKind = iota
	ParamPositionalOrKeyword
	ParamVarPositional
	ParamKeywordOnly
	ParamVarKeyword
)

func (k ParamKind) String() string {
	switch k {
	case ParamPositionalOnly:
		return "positional-only"
	case ParamVarPositional:
		return "variadic-positional"
	case ParamKeywordOnly:
		return "keyword-only"
	case ParamVarKeyword:
		return "variadic-keyword"
	default:
		return "positional-or-keyword"
	}
}

type Parameter struct {
	Name    string
	Kind    ParamKind
	Default string // source form, "" when absent
	Type    string // declared annotation, "" when absent
}

// ImportedName is one (original, alias) pair of an import statement.
// Alias equals Name when no alias was written.
type ImportedName struct {
	Name  string
	Alias string
}

// Import is one import statement as recorded by the AST builder, in source
// order. A wildcard import has Wildcard set and no Names.
type Import struct {
	Source   string
	Names    []ImportedName
	Wildcard bool
	// ReExport marks the redundant-alias convention ("import x as x",
	// "from m import y as y") used to signal an intentional re-export.
	ReExport bool
	Location Location
}

// BaseRef is one entry of a class's resolved bases or MRO: either an
// internal Documentable or an external dotted name that never resolved.
type BaseRef struct {
	ID       DocID
	External string // set iff ID == NoID
}

func (b BaseRef) IsExternal() bool { return b.ID == NoID }

// ModuleData holds Module/Package-specific state.
type ModuleData struct {
	// All mirrors the module's public-name list. HasAll distinguishes an
	// empty list ("export nothing") from no list at all.
	All    []string
	HasAll bool

	DeclaredDocFormat string
	Imports           []Import

	// SourcePath is the file the module was parsed from, empty for
	// introspected binary modules.
	SourcePath string
}

// ClassData holds Class/Exception-specific state.
type ClassData struct {
	RawBases      []string
	ResolvedBases []BaseRef
	MRO           []BaseRef
	MROFailed     bool
	Subclasses    []DocID
	Decorators    []Decorator
	// ConstructorMethods are the children considered constructors, the
	// conventional initializer plus extension-recognized alternatives.
	ConstructorMethods []DocID
}

// FuncData holds Function/Method-specific state.
type FuncData struct {
	Params     []Parameter
	ReturnType string
	Decorators []Decorator
	IsAsync    bool
	IsOverload bool
	// Overloads lists sibling overload declarations' ids; populated on the
	// canonical entity during post-processing.
	Overloads []DocID
}

// AttrData holds Attribute-specific state, including what the builder saw
// so post-processing can classify constants.
type AttrData struct {
	DeclaredType string
	ValueSource  string
	Constraints  []string // TypeVariable only

	// Assignment bookkeeping for constant detection.
	AssignCount   int
	InControlFlow bool
	// ValueLiteral is true when the initializer is a literal expression
	// rather than a computed one.
	ValueLiteral bool
}

// Documentable is one named program entity. Exactly one of Mod, Class,
// Func, Attr is non-nil, matching Kind.
type Documentable struct {
	ID       DocID
	Name     string
	QName    string
	Kind     Kind
	Parent   DocID
	Children []DocID

	Location  Location
	Docstring *Docstring
	Privacy   Privacy

	// IsIntrospected is true when the entity came from a compiled binary
	// module rather than a parsed source file.
	IsIntrospected bool
	// ParseError marks a module whose source could not be parsed.
	ParseError bool

	Mod   *ModuleData
	Class *ClassData
	Func  *FuncData
	Attr  *AttrData

	// ExtraInfo is the open slot for extensions; use SetExtra to get the
	// duplicate-write guard.
	ExtraInfo   map[string]any
	extraOwners map[string]string
}

// SetExtra writes an extension slot, enforcing the single-writer guard:
// a second extension writing the same slot wins but triggers the system's
// warning sink.
func (d *Documentable) SetExtra(sys *System, extension, slot string, value any) {
	if d.ExtraInfo == nil {
		d.ExtraInfo = make(map[string]any)
		d.extraOwners = make(map[string]string)
	}
	if owner, ok := d.extraOwners[slot]; ok && owner != extension {
		sys.Warn("extension-conflict",
			"extra slot "+slot+" of "+d.QName+" written by both "+owner+" and "+extension,
			d.Location)
	}
	d.extraOwners[slot] = extension
	d.ExtraInfo[slot] = value
}

// IsPrivateName applies the default naming rule: a leading single
// underscore is private, dunder names are public.
func IsPrivateName(name string) bool {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && len(name) > 4 {
		return false
	}
	return strings.HasPrefix(name, "_")
}

// SegmentCount counts the dotted segments of a qualified name.
func SegmentCount(qname string) int {
	if qname == "" {
		return 0
	}
	return strings.Count(qname, ".") + 1
}
