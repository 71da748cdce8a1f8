package builder

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"apidoc/internal/model"
	"apidoc/internal/parser"
)

// handleImport records `import a.b.c [as m]` statements. Without an
// alias the statement binds the first segment to the top-level module;
// with one it binds the alias to the full dotted target.
func (c *buildCtx) handleImport(node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name", "identifier":
			full := parser.DottedName(child, c.source)
			if full == "" {
				continue
			}
			first := full
			if idx := strings.IndexByte(full, '.'); idx > 0 {
				first = full[:idx]
			}
			c.recordImport(model.Import{
				Source:   full,
				Names:    []model.ImportedName{{Name: first, Alias: first}},
				Location: c.loc(child),
			})
		case "aliased_import":
			target := parser.DottedName(child.ChildByFieldName("name"), c.source)
			alias := c.Text(child.ChildByFieldName("alias"))
			if target == "" || alias == "" {
				continue
			}
			c.recordImport(model.Import{
				Source:   target,
				Names:    []model.ImportedName{{Name: target, Alias: alias}},
				ReExport: target == alias,
				Location: c.loc(child),
			})
		}
	}
}

// handleFromImport records `from m import a [as b], ...` including
// relative modules and wildcards.
func (c *buildCtx) handleFromImport(node *sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	source := c.resolveImportSource(moduleNode)
	if source == "" {
		c.Warn("resolve", "cannot determine import source in "+c.module.QName, c.loc(node))
		return
	}

	imp := model.Import{Source: source, Location: c.loc(node)}

	sawImportKeyword := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			sawImportKeyword = true
		case "wildcard_import":
			imp.Wildcard = true
		case "dotted_name", "identifier":
			if !sawImportKeyword {
				continue // that's the module part
			}
			name := parser.DottedName(child, c.source)
			if name != "" {
				imp.Names = append(imp.Names, model.ImportedName{Name: name, Alias: name})
			}
		case "aliased_import":
			name := parser.DottedName(child.ChildByFieldName("name"), c.source)
			alias := c.Text(child.ChildByFieldName("alias"))
			if name == "" || alias == "" {
				continue
			}
			imp.Names = append(imp.Names, model.ImportedName{Name: name, Alias: alias})
			if name == alias {
				imp.ReExport = true
			}
		}
	}

	if !imp.Wildcard && len(imp.Names) == 0 {
		return
	}
	c.recordImport(imp)
}

// resolveImportSource turns the module part of a from-import into an
// absolute dotted name. Relative prefixes are resolved against the
// current module: one dot names the containing package, each further dot
// walks one level up.
func (c *buildCtx) resolveImportSource(moduleNode *sitter.Node) string {
	if moduleNode == nil {
		return ""
	}
	if moduleNode.Kind() != "relative_import" {
		return parser.DottedName(moduleNode, c.source)
	}

	dots := 0
	suffix := ""
	for i := uint(0); i < moduleNode.ChildCount(); i++ {
		child := moduleNode.Child(i)
		switch child.Kind() {
		case "import_prefix":
			dots = len(c.Text(child))
		case "dotted_name", "identifier":
			suffix = parser.DottedName(child, c.source)
		}
	}
	if dots == 0 {
		return suffix
	}

	// the containing package of a module, or the package itself for an
	// initializer
	base := c.module.QName
	if c.module.Kind == model.KindModule {
		base = parentQName(base)
	}
	for level := 1; level < dots; level++ {
		base = parentQName(base)
	}
	if base == "" {
		return suffix
	}
	if suffix == "" {
		return base
	}
	return base + "." + suffix
}

func (c *buildCtx) recordImport(imp model.Import) {
	c.module.Mod.Imports = append(c.module.Mod.Imports, imp)
}

func parentQName(qname string) string {
	if i := strings.LastIndex(qname, "."); i >= 0 {
		return qname[:i]
	}
	return ""
}
