package builder

import (
	"testing"

	"apidoc/internal/model"
	"apidoc/internal/parser"
	"apidoc/internal/scanner"
)

func buildSource(t *testing.T, src string, branches map[string]map[string]bool) (*model.System, *model.Documentable) {
	t.Helper()
	sys := model.NewSystem(nil)
	p, err := parser.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)

	b, err := New(sys, p, nil, branches)
	if err != nil {
		t.Fatal(err)
	}
	mod := b.BuildModule(scanner.Unit{Path: "m.py", QName: "m"}, []byte(src))
	return sys, mod
}

func mustChild(t *testing.T, sys *model.System, qname string) *model.Documentable {
	t.Helper()
	d, ok := sys.Lookup(qname)
	if !ok {
		t.Fatalf("missing %s in registry", qname)
	}
	return d
}

func TestModuleDocstringAndAll(t *testing.T) {
	src := `"""Module docs."""
__all__ = ["a", "b"]
__docformat__ = "Google"

a = 1
b = 2
`
	sys, mod := buildSource(t, src, nil)
	if mod.Docstring == nil || mod.Docstring.Text != "Module docs." {
		t.Errorf("module docstring = %+v", mod.Docstring)
	}
	if !mod.Mod.HasAll || len(mod.Mod.All) != 2 || mod.Mod.All[0] != "a" {
		t.Errorf("all_exports = %+v", mod.Mod)
	}
	if mod.Mod.DeclaredDocFormat != "google" {
		t.Errorf("docformat = %q", mod.Mod.DeclaredDocFormat)
	}
	mustChild(t, sys, "m.a")
	mustChild(t, sys, "m.b")
}

func TestAllExportsMalformedAndAugmented(t *testing.T) {
	src := `__all__ = [x for x in names]
`
	warned := false
	sysw := model.NewSystem(func(category, msg string, loc model.Location) {
		if category == "all-exports" {
			warned = true
		}
	})
	p, err := parser.New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	b, _ := New(sysw, p, nil, nil)
	mod := b.BuildModule(scanner.Unit{Path: "m.py", QName: "m"}, []byte(src))
	if mod.Mod.HasAll {
		t.Error("computed public-names list must stay unset")
	}
	if !warned {
		t.Error("expected an all-exports warning")
	}

	_, mod2 := buildSource(t, "__all__ = []\n__all__ += [\"x\"]\n", nil)
	if !mod2.Mod.HasAll || len(mod2.Mod.All) != 1 || mod2.Mod.All[0] != "x" {
		t.Errorf("augmented append failed: %+v", mod2.Mod)
	}

	_, mod3 := buildSource(t, "__all__ = []\n", nil)
	if !mod3.Mod.HasAll || len(mod3.Mod.All) != 0 {
		t.Error("empty literal means export-nothing, not unset")
	}
}

func TestComputedValueIsVariable(t *testing.T) {
	src := `SQUARES = [n ** 2 for n in range(10)]
"""Squares."""
`
	sys, _ := buildSource(t, src, nil)
	attr := mustChild(t, sys, "m.SQUARES")
	if attr.Attr.ValueLiteral {
		t.Error("comprehension must not count as a literal")
	}
	if attr.Docstring == nil || attr.Docstring.Text != "Squares." {
		t.Errorf("inline docstring = %+v", attr.Docstring)
	}
	if attr.Attr.DeclaredType != "" {
		t.Errorf("declared type should be absent, got %q", attr.Attr.DeclaredType)
	}
}

func TestFinalAnnotatedConstant(t *testing.T) {
	src := `X: Final = 3.14
"""Pi approximation."""
`
	sys, _ := buildSource(t, src, nil)
	attr := mustChild(t, sys, "m.X")
	if attr.Attr.ValueSource != "3.14" {
		t.Errorf("value_source = %q", attr.Attr.ValueSource)
	}
	if !attr.Attr.ValueLiteral {
		t.Error("3.14 is a literal")
	}
	if attr.Docstring == nil || attr.Docstring.Text != "Pi approximation." {
		t.Errorf("docstring = %+v", attr.Docstring)
	}
	if attr.Attr.DeclaredType != "Final" {
		t.Errorf("declared type = %q", attr.Attr.DeclaredType)
	}
}

func TestClassBodyAndConstructor(t *testing.T) {
	src := `class A(Base):
    """A class."""

    limit: int = 10
    """Class limit."""

    def __init__(self, size):
        self.size = size
        """Instance size."""
        self._cache = {}

    def _helper(self):
        pass

    async def run(self, *args, **kwargs):
        pass
`
	sys, _ := buildSource(t, src, nil)
	cls := mustChild(t, sys, "m.A")
	if cls.Kind != model.KindClass {
		t.Fatalf("kind = %v", cls.Kind)
	}
	if len(cls.Class.RawBases) != 1 || cls.Class.RawBases[0] != "Base" {
		t.Errorf("raw bases = %v", cls.Class.RawBases)
	}
	if cls.Docstring == nil || cls.Docstring.Text != "A class." {
		t.Errorf("class docstring = %+v", cls.Docstring)
	}

	limit := mustChild(t, sys, "m.A.limit")
	if limit.Kind != model.KindClassVariable || limit.Attr.DeclaredType != "int" {
		t.Errorf("limit = %v %q", limit.Kind, limit.Attr.DeclaredType)
	}
	if limit.Docstring == nil || limit.Docstring.Text != "Class limit." {
		t.Errorf("limit docstring = %+v", limit.Docstring)
	}

	size := mustChild(t, sys, "m.A.size")
	if size.Kind != model.KindInstanceVariable {
		t.Errorf("size kind = %v", size.Kind)
	}
	if size.Docstring == nil || size.Docstring.Text != "Instance size." {
		t.Errorf("size docstring = %+v", size.Docstring)
	}
	mustChild(t, sys, "m.A._cache")

	init := mustChild(t, sys, "m.A.__init__")
	if init.Kind != model.KindMethod {
		t.Errorf("__init__ kind = %v", init.Kind)
	}
	if len(cls.Class.ConstructorMethods) != 1 || cls.Class.ConstructorMethods[0] != init.ID {
		t.Errorf("constructor methods = %v", cls.Class.ConstructorMethods)
	}

	run := mustChild(t, sys, "m.A.run")
	if !run.Func.IsAsync {
		t.Error("run should be async")
	}
	wantKinds := []model.ParamKind{model.ParamPositionalOrKeyword, model.ParamVarPositional, model.ParamVarKeyword}
	if len(run.Func.Params) != 3 {
		t.Fatalf("params = %+v", run.Func.Params)
	}
	for i, k := range wantKinds {
		if run.Func.Params[i].Kind != k {
			t.Errorf("param %d kind = %v, want %v", i, run.Func.Params[i].Kind, k)
		}
	}
}

func TestSignatureForms(t *testing.T) {
	src := `def f(a, b=1, *, c: int = 2, **kw) -> str:
    pass

def g(x, /, y):
    pass
`
	sys, _ := buildSource(t, src, nil)
	f := mustChild(t, sys, "m.f")
	if f.Func.ReturnType != "str" {
		t.Errorf("return type = %q", f.Func.ReturnType)
	}
	params := f.Func.Params
	if len(params) != 4 {
		t.Fatalf("params = %+v", params)
	}
	if params[1].Default != "1" {
		t.Errorf("b default = %q", params[1].Default)
	}
	if params[2].Kind != model.ParamKeywordOnly || params[2].Type != "int" || params[2].Default != "2" {
		t.Errorf("c = %+v", params[2])
	}
	if params[3].Kind != model.ParamVarKeyword {
		t.Errorf("kw kind = %v", params[3].Kind)
	}

	g := mustChild(t, sys, "m.g")
	if g.Func.Params[0].Kind != model.ParamPositionalOnly {
		t.Errorf("x kind = %v", g.Func.Params[0].Kind)
	}
	if g.Func.Params[1].Kind != model.ParamPositionalOrKeyword {
		t.Errorf("y kind = %v", g.Func.Params[1].Kind)
	}
}

func TestDecoratorsAndOverloads(t *testing.T) {
	src := `class C:
    @classmethod
    def make(cls):
        pass

    @staticmethod
    def util():
        pass

@typing.overload
def h(x: int) -> int: ...
@typing.overload
def h(x: str) -> str: ...
def h(x): ...

@deprecated("use h instead")
def old(x):
    pass
`
	sys, _ := buildSource(t, src, nil)
	if mustChild(t, sys, "m.C.make").Kind != model.KindClassMethod {
		t.Error("make should be a ClassMethod")
	}
	if mustChild(t, sys, "m.C.util").Kind != model.KindStaticMethod {
		t.Error("util should be a StaticMethod")
	}
	// the final implementation owns the name; the overload-flagged
	// declarations stay in the arena for post-processing to group
	h := mustChild(t, sys, "m.h")
	if h.Func.IsOverload {
		t.Error("canonical h should be the non-overload implementation")
	}
	overloads := 0
	for _, d := range sys.Arena() {
		if d.QName == "m.h" && d.Func != nil && d.Func.IsOverload {
			overloads++
		}
	}
	if overloads != 2 {
		t.Errorf("overload declarations in arena = %d, want 2", overloads)
	}
	old := mustChild(t, sys, "m.old")
	if len(old.Func.Decorators) != 1 || old.Func.Decorators[0].Name != "deprecated" {
		t.Errorf("decorators = %+v", old.Func.Decorators)
	}
	if old.Func.Decorators[0].Args != `"use h instead"` {
		t.Errorf("decorator args = %q", old.Func.Decorators[0].Args)
	}
}

func TestImports(t *testing.T) {
	src := `import os
import os.path as osp
import json as json
from collections import OrderedDict, deque as dq
from .sibling import thing
from ..up import other
from x import *
`
	_, mod := buildSource(t, src, nil)
	imps := mod.Mod.Imports
	if len(imps) != 7 {
		t.Fatalf("imports = %+v", imps)
	}
	if imps[0].Source != "os" || imps[0].Names[0].Alias != "os" {
		t.Errorf("plain import = %+v", imps[0])
	}
	if imps[1].Source != "os.path" || imps[1].Names[0].Alias != "osp" {
		t.Errorf("aliased import = %+v", imps[1])
	}
	if !imps[2].ReExport {
		t.Error("import json as json is a re-export intent")
	}
	if imps[3].Source != "collections" || len(imps[3].Names) != 2 ||
		imps[3].Names[1].Name != "deque" || imps[3].Names[1].Alias != "dq" {
		t.Errorf("from import = %+v", imps[3])
	}
	if !imps[6].Wildcard {
		t.Error("wildcard import not recorded")
	}
}

func TestRelativeImportResolution(t *testing.T) {
	sys := model.NewSystem(nil)
	p, err := parser.New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	b, _ := New(sys, p, nil, nil)

	src := "from .sibling import thing\nfrom ..up import other\n"
	mod := b.BuildModule(scanner.Unit{Path: "pkg/sub/m.py", QName: "pkg.sub.m", ParentQName: "pkg.sub"}, []byte(src))
	if mod.Mod.Imports[0].Source != "pkg.sub.sibling" {
		t.Errorf("one-dot source = %s", mod.Mod.Imports[0].Source)
	}
	if mod.Mod.Imports[1].Source != "pkg.up" {
		t.Errorf("two-dot source = %s", mod.Mod.Imports[1].Source)
	}

	// in a package initializer, one dot names the package itself
	initSrc := "from .core import MyClass\n"
	pkg := b.BuildModule(scanner.Unit{Path: "pkg2/__init__.py", QName: "pkg2", IsPackageInit: true}, []byte(initSrc))
	if pkg.Mod.Imports[0].Source != "pkg2.core" {
		t.Errorf("init relative source = %s", pkg.Mod.Imports[0].Source)
	}
}

func TestConditionalBranchOverride(t *testing.T) {
	src := `if TYPE_CHECKING:
    from circ import T
else:
    fallback = 1
`
	branches := map[string]map[string]bool{"m": {"TYPE_CHECKING": false}}
	sys, mod := buildSource(t, src, branches)
	if len(mod.Mod.Imports) != 0 {
		t.Errorf("guarded import leaked: %+v", mod.Mod.Imports)
	}
	mustChild(t, sys, "m.fallback")

	// without an override both branches are taken
	sys2, mod2 := buildSource(t, src, nil)
	if len(mod2.Mod.Imports) != 1 {
		t.Errorf("both branches expected: %+v", mod2.Mod.Imports)
	}
	mustChild(t, sys2, "m.fallback")
}

func TestTypeVarAndAlias(t *testing.T) {
	src := `T = TypeVar("T", int, str)
Alias: TypeAlias = dict[str, int]
`
	sys, _ := buildSource(t, src, nil)
	tv := mustChild(t, sys, "m.T")
	if tv.Kind != model.KindTypeVariable {
		t.Errorf("T kind = %v", tv.Kind)
	}
	if len(tv.Attr.Constraints) != 2 || tv.Attr.Constraints[0] != "int" {
		t.Errorf("constraints = %v", tv.Attr.Constraints)
	}
	alias := mustChild(t, sys, "m.Alias")
	if alias.Kind != model.KindTypeAlias || alias.Attr.ValueSource != "dict[str, int]" {
		t.Errorf("alias = %v %q", alias.Kind, alias.Attr.ValueSource)
	}
}

func TestTypeComment(t *testing.T) {
	src := "xs = []  # type: List[int]\n"
	sys, _ := buildSource(t, src, nil)
	attr := mustChild(t, sys, "m.xs")
	if attr.Attr.DeclaredType != "List[int]" {
		t.Errorf("type comment = %q", attr.Attr.DeclaredType)
	}
}

func TestMalformedSourceNeverAborts(t *testing.T) {
	src := "def broken(:\n    pass\n\nclass Fine:\n    pass\n"
	sys, mod := buildSource(t, src, nil)
	if !mod.ParseError {
		t.Error("module should be flagged with a parse error")
	}
	// declarations outside the broken region may still be collected;
	// their absence is only logged, not failed
	if _, ok := sys.Lookup("m.Fine"); !ok {
		t.Log("declarations after the error region were not recovered; acceptable but noted")
	}
}

func TestDuplicateParameterWarns(t *testing.T) {
	count := 0
	sys := model.NewSystem(func(category, msg string, loc model.Location) {
		if category == "parse" {
			count++
		}
	})
	p, err := parser.New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	b, _ := New(sys, p, nil, nil)
	mod := b.BuildModule(scanner.Unit{Path: "m.py", QName: "m"}, []byte("def f(a, a):\n    pass\n"))
	_ = mod
	f, ok := sys.Lookup("m.f")
	if !ok {
		t.Fatal("f missing")
	}
	if len(f.Func.Params) != 1 {
		t.Errorf("duplicate parameter kept: %+v", f.Func.Params)
	}
	if count == 0 {
		t.Error("expected a duplicate-parameter warning")
	}
}
