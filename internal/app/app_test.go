package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apidoc/internal/config"
	"apidoc/internal/inventory"
	"apidoc/internal/linker"
	"apidoc/internal/model"
	"apidoc/internal/serialize"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func buildFixture(t *testing.T) (*App, string) {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": `"""Top-level package."""
from .core.session import MyClass

__all__ = ["MyClass"]
`,
		"pkg/core/__init__.py": "",
		"pkg/core/session.py": `"""Session handling."""

MAX_RETRIES = 3
"""How often to retry."""

SQUARES = [n ** 2 for n in range(10)]
"""Squares."""


class MyClass(Base):
    """The main entry point."""

    def __init__(self, size):
        self.size = size

    def _helper(self):
        pass

    def __eq__(self, other):
        return False
`,
	})

	cfg := &config.Config{
		ProjectBase: root,
		Paths:       []string{filepath.Join(root, "pkg")},
		DocFormat:   "restructuredtext",
		Output: config.Output{
			Model:     filepath.Join(root, "out", "model.json"),
			Inventory: filepath.Join(root, "out", "objects.inv"),
			State:     filepath.Join(root, "out", "state.json"),
		},
		History: config.History{Path: filepath.Join(root, "out", "history.db")},
	}

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Build(context.Background()))
	return a, root
}

func TestPipelineEndToEnd(t *testing.T) {
	a, _ := buildFixture(t)
	sys := a.System

	// re-export relocation: both qnames reach the same documentable, the
	// short one canonically
	short, ok := sys.Lookup("pkg.MyClass")
	require.True(t, ok, "pkg.MyClass missing")
	long, ok := sys.Lookup("pkg.core.session.MyClass")
	require.True(t, ok, "original qname must stay reachable")
	assert.Equal(t, short.ID, long.ID)
	assert.Equal(t, "pkg.MyClass", short.QName)

	// constant vs computed variable
	retries, ok := sys.Lookup("pkg.core.session.MAX_RETRIES")
	require.True(t, ok)
	assert.Equal(t, model.KindConstant, retries.Kind)
	assert.Equal(t, "3", retries.Attr.ValueSource)
	require.NotNil(t, retries.Docstring)
	assert.Equal(t, "How often to retry.", retries.Docstring.Text)

	squares, ok := sys.Lookup("pkg.core.session.SQUARES")
	require.True(t, ok)
	assert.Equal(t, model.KindVariable, squares.Kind)
	require.NotNil(t, squares.Docstring)

	// privacy defaults
	for qname, want := range map[string]model.Privacy{
		"pkg.MyClass":          model.Public,
		"pkg.MyClass.__init__": model.Public,
		"pkg.MyClass._helper":  model.Private,
		"pkg.MyClass.__eq__":   model.Public,
	} {
		d, ok := sys.Lookup(qname)
		require.True(t, ok, qname)
		assert.Equal(t, want, d.Privacy, qname)
	}

	// docformat inheritance from the system default
	assert.Equal(t, "restructuredtext", sys.DocFormat(short))

	// the linker resolves from any context
	url, css := a.Linker.Lookup(sys.Roots()[0], "MyClass")
	assert.Equal(t, linker.ClassInternal, css)
	assert.Equal(t, "pkg.MyClass.html", url)
}

func TestOutputsAndPersistedState(t *testing.T) {
	a, root := buildFixture(t)
	require.NoError(t, a.GenerateOutputs())

	// the dumped inventory decodes and excludes nothing public
	f, err := os.Open(filepath.Join(root, "out", "objects.inv"))
	require.NoError(t, err)
	defer f.Close()
	inv, err := inventory.Decode(f)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range inv.Entries {
		names[e.Name] = true
	}
	assert.True(t, names["pkg.MyClass"], "inventory should list the relocated class")
	assert.True(t, names["pkg.core.session"], "inventory should list modules")

	// the persisted state reloads into an equivalent system
	fresh, err := New(a.Config)
	require.NoError(t, err)
	defer fresh.Close()
	loaded, err := fresh.LoadPersisted()
	require.NoError(t, err)
	require.True(t, loaded)

	var orig, rehydrated bytes.Buffer
	require.NoError(t, serialize.Dump(&orig, a.System))
	require.NoError(t, serialize.Dump(&rehydrated, fresh.System))
	assert.Equal(t, orig.String(), rehydrated.String(), "persisted round-trip must be lossless")
}

func TestDeterministicBuilds(t *testing.T) {
	a1, _ := buildFixture(t)
	a2, _ := buildFixture(t)

	var inv1, inv2 bytes.Buffer
	require.NoError(t, inventory.Encode(&inv1, "pkg", "", a1.InventoryEntries()))
	require.NoError(t, inventory.Encode(&inv2, "pkg", "", a2.InventoryEntries()))
	assert.Equal(t, inv1.Bytes(), inv2.Bytes(), "two builds must serialize byte-identically")
}

func TestMalformedModuleDoesNotAbort(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/broken.py":   "def broken(:\n",
		"pkg/fine.py":     "class Fine:\n    pass\n",
	})
	cfg := &config.Config{
		ProjectBase: root,
		Paths:       []string{filepath.Join(root, "pkg")},
		DocFormat:   "plaintext",
	}
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Build(context.Background()))

	broken, ok := a.System.Lookup("pkg.broken")
	require.True(t, ok)
	assert.True(t, broken.ParseError)

	_, ok = a.System.Lookup("pkg.fine.Fine")
	assert.True(t, ok, "healthy modules keep building")
}
