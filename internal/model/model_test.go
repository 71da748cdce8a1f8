package model

import (
	"testing"
)

func buildSmallTree(t *testing.T) *System {
	t.Helper()
	sys := NewSystem(nil)
	pkg := sys.NewDocumentable("pkg", KindPackage, NoID, Location{File: "pkg/__init__.py"})
	core := sys.NewDocumentable("core", KindPackage, pkg.ID, Location{File: "pkg/core/__init__.py"})
	session := sys.NewDocumentable("session", KindModule, core.ID, Location{File: "pkg/core/session.py"})
	sys.NewDocumentable("MyClass", KindClass, session.ID, Location{File: "pkg/core/session.py", Line: 3})
	return sys
}

func TestQNamesFollowParentChain(t *testing.T) {
	sys := buildSmallTree(t)

	cls, ok := sys.Lookup("pkg.core.session.MyClass")
	if !ok {
		t.Fatal("expected pkg.core.session.MyClass in registry")
	}
	if cls.Kind != KindClass {
		t.Errorf("kind = %v, want Class", cls.Kind)
	}

	// parent.children must contain every child
	for _, d := range sys.All() {
		if d.Parent == NoID {
			continue
		}
		found := false
		for _, id := range sys.Get(d.Parent).Children {
			if id == d.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("%s missing from its parent's children", d.QName)
		}
	}
}

func TestRegisterTieBreaks(t *testing.T) {
	sys := NewSystem(nil)
	root := sys.NewDocumentable("pkg", KindPackage, NoID, Location{})

	// source module first, then a binary module of the same qname: binary wins
	src := sys.NewDocumentable("speed", KindModule, root.ID, Location{File: "pkg/speed.py"})
	sys.NewBinaryModule("speed", root.ID, Location{File: "pkg/speed.so"})

	got, _ := sys.Lookup("pkg.speed")
	if !got.IsIntrospected {
		t.Error("binary module should win over source module of the same qname")
	}
	if got.ID == src.ID {
		t.Error("registry still points at the source module")
	}
}

func TestRelocateLeavesAlias(t *testing.T) {
	sys := buildSmallTree(t)
	cls, _ := sys.Lookup("pkg.core.session.MyClass")
	pkg, _ := sys.Lookup("pkg")

	sys.Relocate(cls, pkg.ID)

	if cls.QName != "pkg.MyClass" {
		t.Fatalf("canonical qname = %s, want pkg.MyClass", cls.QName)
	}
	byOld, ok := sys.Lookup("pkg.core.session.MyClass")
	if !ok || byOld.ID != cls.ID {
		t.Error("old qname no longer reaches the relocated entity")
	}
	byNew, ok := sys.Lookup("pkg.MyClass")
	if !ok || byNew.ID != cls.ID {
		t.Error("new qname does not reach the relocated entity")
	}
	// registry invariant: canonical keys map to entities with that qname
	for _, d := range sys.All() {
		if got, _ := sys.Lookup(d.QName); got.ID != d.ID {
			t.Errorf("registry[%s] does not round-trip", d.QName)
		}
	}
}

func TestDefaultPrivacy(t *testing.T) {
	tests := []struct {
		name string
		want Privacy
	}{
		{"MyClass", Public},
		{"__init__", Public},
		{"_helper", Private},
		{"__eq__", Public},
		{"__private", Private},
		{"_", Private},
	}
	sys := NewSystem(nil)
	for _, tt := range tests {
		if got := sys.PrivacyFor("m."+tt.name, tt.name); got != tt.want {
			t.Errorf("PrivacyFor(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPrivacyRulesExactBeatsGlob(t *testing.T) {
	rules, err := CompilePrivacyRules([]string{
		"pkg.internal.*:HIDDEN",
		"pkg.internal.keepme:PUBLIC",
		"pkg.internal.**:PRIVATE",
	})
	if err != nil {
		t.Fatal(err)
	}
	sys := NewSystem(nil)
	sys.SetPrivacyRules(rules)

	if got := sys.PrivacyFor("pkg.internal.keepme", "keepme"); got != Public {
		t.Errorf("exact rule should beat globs, got %v", got)
	}
	if got := sys.PrivacyFor("pkg.internal.other", "other"); got != Private {
		t.Errorf("last matching glob should win, got %v", got)
	}
}

func TestDocFormatInheritance(t *testing.T) {
	sys := buildSmallTree(t)
	sys.DefaultDocFormat = "epytext"

	pkg, _ := sys.Lookup("pkg")
	pkg.Mod.DeclaredDocFormat = "restructuredtext"

	cls, _ := sys.Lookup("pkg.core.session.MyClass")
	if got := sys.DocFormat(cls); got != "restructuredtext" {
		t.Errorf("DocFormat = %s, want inherited restructuredtext", got)
	}

	session, _ := sys.Lookup("pkg.core.session")
	session.Mod.DeclaredDocFormat = "numpy"
	if got := sys.DocFormat(cls); got != "numpy" {
		t.Errorf("DocFormat = %s, want module's numpy", got)
	}

	sys.ForcePlaintext = true
	if got := sys.DocFormat(cls); got != "plaintext" {
		t.Errorf("plain mode must override declarations, got %s", got)
	}
}

func TestExtraSlotGuard(t *testing.T) {
	warned := 0
	sys := NewSystem(func(category, msg string, loc Location) {
		if category == "extension-conflict" {
			warned++
		}
	})
	d := sys.NewDocumentable("m", KindModule, NoID, Location{})

	d.SetExtra(sys, "ext-a", "note", "first")
	d.SetExtra(sys, "ext-a", "note", "still fine")
	if warned != 0 {
		t.Fatal("same extension rewriting its slot must not warn")
	}
	d.SetExtra(sys, "ext-b", "note", "clobber")
	if warned != 1 {
		t.Errorf("expected one conflict warning, got %d", warned)
	}
	if d.ExtraInfo["note"] != "clobber" {
		t.Error("later write must win")
	}
}
