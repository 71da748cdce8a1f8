package model

// Kind tags a Documentable. The set is closed; every consumer is expected
// to switch exhaustively on it rather than type-assert.
type Kind int

const (
	KindPackage Kind = iota
	KindModule
	KindClass
	KindException
	KindFunction
	KindMethod
	KindClassMethod
	KindStaticMethod
	KindProperty
	KindVariable
	KindInstanceVariable
	KindClassVariable
	KindConstant
	KindTypeAlias
	KindTypeVariable
)

var kindNames = map[Kind]string{
	KindPackage:          "Package",
	KindModule:           "Module",
	KindClass:            "Class",
	KindException:        "Exception",
	KindFunction:         "Function",
	KindMethod:           "Method",
	KindClassMethod:      "ClassMethod",
	KindStaticMethod:     "StaticMethod",
	KindProperty:         "Property",
	KindVariable:         "Variable",
	KindInstanceVariable: "InstanceVariable",
	KindClassVariable:    "ClassVariable",
	KindConstant:         "Constant",
	KindTypeAlias:        "TypeAlias",
	KindTypeVariable:     "TypeVariable",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// KindFromName returns the Kind for its canonical name.
func KindFromName(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// IsScope reports whether children of this kind form a lookup scope.
func (k Kind) IsScope() bool {
	switch k {
	case KindPackage, KindModule, KindClass, KindException:
		return true
	}
	return false
}

// IsModuleLike reports whether the kind is a Module or Package.
func (k Kind) IsModuleLike() bool {
	return k == KindPackage || k == KindModule
}

// IsClassLike reports whether the kind is a Class or Exception.
func (k Kind) IsClassLike() bool {
	return k == KindClass || k == KindException
}

// IsCallable reports whether the kind carries a signature.
func (k Kind) IsCallable() bool {
	switch k {
	case KindFunction, KindMethod, KindClassMethod, KindStaticMethod:
		return true
	}
	return false
}

// IsAttribute reports whether the kind is one of the attribute sub-kinds.
func (k Kind) IsAttribute() bool {
	switch k {
	case KindProperty, KindVariable, KindInstanceVariable, KindClassVariable,
		KindConstant, KindTypeAlias, KindTypeVariable:
		return true
	}
	return false
}

// Privacy governs visibility and indexing, not access.
type Privacy int

const (
	Public Privacy = iota
	Private
	Hidden
)

func (p Privacy) String() string {
	switch p {
	case Private:
		return "PRIVATE"
	case Hidden:
		return "HIDDEN"
	default:
		return "PUBLIC"
	}
}

// PrivacyFromName parses a privacy label (case-sensitive, as configured).
func PrivacyFromName(name string) (Privacy, bool) {
	switch name {
	case "PUBLIC":
		return Public, true
	case "PRIVATE":
		return Private, true
	case "HIDDEN":
		return Hidden, true
	}
	return Public, false
}
