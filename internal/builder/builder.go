// Package builder walks each module's syntax tree once and populates the
// Documentable model: declarations, attributes, imports, annotations,
// decorators and docstrings.
package builder

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"apidoc/internal/extension"
	"apidoc/internal/model"
	"apidoc/internal/parser"
	"apidoc/internal/scanner"
)

type branchRule struct {
	pattern glob.Glob
	guards  map[string]bool
}

type Builder struct {
	sys    *model.System
	parser *parser.Parser
	reg    *extension.Registry

	branches []branchRule
}

func New(sys *model.System, p *parser.Parser, reg *extension.Registry, branchCfg map[string]map[string]bool) (*Builder, error) {
	if reg == nil {
		reg = extension.NewRegistry()
	}
	b := &Builder{sys: sys, parser: p, reg: reg}
	for pattern, guards := range branchCfg {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("bad branch pattern %q: %w", pattern, err)
		}
		copied := make(map[string]bool, len(guards))
		for k, v := range guards {
			copied[k] = v
		}
		b.branches = append(b.branches, branchRule{pattern: g, guards: copied})
	}
	return b, nil
}

// EnsurePackage returns the Package node for a dotted qname, creating the
// chain as needed. Scanner order guarantees children are seen before
// their package's initializer, so packages often exist before their
// initializer source is parsed.
func (b *Builder) EnsurePackage(qname string) *model.Documentable {
	if qname == "" {
		return nil
	}
	if d, ok := b.sys.Lookup(qname); ok {
		return d
	}
	segments := strings.Split(qname, ".")
	parent := model.NoID
	var cur *model.Documentable
	prefix := ""
	for _, seg := range segments {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "." + seg
		}
		if d, ok := b.sys.Lookup(prefix); ok {
			cur = d
			parent = d.ID
			continue
		}
		cur = b.sys.NewDocumentable(seg, model.KindPackage, parent, model.Location{})
		parent = cur.ID
	}
	return cur
}

// ModuleFor creates (or completes) the Documentable for a scanner unit.
func (b *Builder) ModuleFor(u scanner.Unit) *model.Documentable {
	if u.IsPackageInit {
		pkg := b.EnsurePackage(u.QName)
		pkg.Location = model.Location{File: u.Path, Line: 1}
		pkg.Mod.SourcePath = u.Path
		return pkg
	}
	parent := model.NoID
	if u.ParentQName != "" {
		parent = b.EnsurePackage(u.ParentQName).ID
	}
	if d, ok := b.sys.Lookup(u.QName); ok && d.Kind.IsModuleLike() {
		return d
	}
	name := u.QName
	if i := strings.LastIndex(u.QName, "."); i >= 0 {
		name = u.QName[i+1:]
	}
	mod := b.sys.NewDocumentable(name, model.KindModule, parent, model.Location{File: u.Path, Line: 1})
	mod.Mod.SourcePath = u.Path
	return mod
}

// BuildModule parses one unit's source and populates its Documentable.
// Any panic while building is contained at the module boundary: the
// module is flagged with a parse error and the pipeline continues.
func (b *Builder) BuildModule(u scanner.Unit, source []byte) (mod *model.Documentable) {
	mod = b.ModuleFor(u)

	defer func() {
		if r := recover(); r != nil {
			mod.ParseError = true
			b.sys.Warn("parse", fmt.Sprintf("building %s failed: %v", u.QName, r),
				model.Location{File: u.Path})
		}
	}()

	tree, err := b.parser.Parse(source)
	if err != nil {
		mod.ParseError = true
		b.sys.Warn("parse", "cannot parse "+u.Path+": "+err.Error(), model.Location{File: u.Path})
		return mod
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		mod.ParseError = true
		b.sys.Warn("parse", "syntax errors in "+u.Path, model.Location{File: u.Path})
		// keep going: tree-sitter still yields declarations outside the
		// broken regions
	}

	ctx := &buildCtx{b: b, source: source, path: u.Path, module: mod, scope: mod}
	ctx.processBlock(root, mod, 0)
	return mod
}

// buildCtx carries per-module state and implements the BuilderContext
// handed to extension visitors.
type buildCtx struct {
	b      *Builder
	source []byte
	path   string
	module *model.Documentable
	scope  *model.Documentable
}

func (c *buildCtx) System() *model.System          { return c.b.sys }
func (c *buildCtx) Module() *model.Documentable    { return c.module }
func (c *buildCtx) Scope() *model.Documentable     { return c.scope }
func (c *buildCtx) Source() []byte                 { return c.source }
func (c *buildCtx) Path() string                   { return c.path }
func (c *buildCtx) Text(n *sitter.Node) string     { return parser.Text(n, c.source) }
func (c *buildCtx) loc(n *sitter.Node) model.Location { return parser.Loc(n, c.path) }

func (c *buildCtx) Warn(category, message string, loc model.Location) {
	c.b.sys.Warn(category, message, loc)
}

func (c *buildCtx) NewChild(name string, kind model.Kind, loc model.Location) *model.Documentable {
	return c.b.sys.NewDocumentable(name, kind, c.scope.ID, loc)
}

// processBlock walks one statement list (module body, class body, or a
// nested suite). inFlow counts enclosing control-flow constructs; any
// attribute defined with inFlow > 0 cannot be a Constant.
func (c *buildCtx) processBlock(block *sitter.Node, scope *model.Documentable, inFlow int) {
	prevScope := c.scope
	c.scope = scope
	defer func() { c.scope = prevScope }()

	var prevAttr *model.Documentable
	first := true

	for i := uint(0); i < block.ChildCount(); i++ {
		stmt := block.Child(i)
		kind := stmt.Kind()
		if kind == "comment" {
			continue
		}

		c.b.reg.VisitBefore(kind, c, stmt)

		var newPrev *model.Documentable
		switch kind {
		case "expression_statement":
			newPrev = c.handleExpression(stmt, scope, inFlow, prevAttr, first)
		case "import_statement":
			c.handleImport(stmt)
		case "import_from_statement":
			c.handleFromImport(stmt)
		case "future_import_statement":
			// binds no documentable names
		case "function_definition":
			c.handleFunction(stmt, scope, nil, inFlow)
		case "class_definition":
			c.handleClass(stmt, scope, nil, inFlow)
		case "decorated_definition":
			c.handleDecorated(stmt, scope, inFlow)
		case "if_statement":
			c.handleIf(stmt, scope, inFlow)
		case "for_statement", "while_statement", "with_statement", "try_statement":
			c.processSuites(stmt, scope, inFlow+1)
		case "type_alias_statement":
			c.handleTypeAliasStatement(stmt, scope)
		}

		c.b.reg.VisitAfter(kind, c, stmt)

		prevAttr = newPrev
		first = false
	}
}

// processSuites walks every nested block of a compound statement.
func (c *buildCtx) processSuites(node *sitter.Node, scope *model.Documentable, inFlow int) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "block":
			c.processBlock(child, scope, inFlow)
		case "elif_clause", "else_clause", "except_clause", "finally_clause", "except_group_clause":
			c.processSuites(child, scope, inFlow)
		}
	}
}

// handleIf applies the conditional-branch policy: a recognized guard with
// a configured decision restricts the walk to one side; anything else is
// treated as both branches taken.
func (c *buildCtx) handleIf(node *sitter.Node, scope *model.Documentable, inFlow int) {
	cond := node.ChildByFieldName("condition")
	decision, recognized := c.guardDecision(cond)

	consequence := node.ChildByFieldName("consequence")
	if !recognized {
		if consequence != nil {
			c.processBlock(consequence, scope, inFlow+1)
		}
		c.processAlternatives(node, scope, inFlow)
		return
	}
	if decision {
		if consequence != nil {
			c.processBlock(consequence, scope, inFlow+1)
		}
		return
	}
	c.processAlternatives(node, scope, inFlow)
}

func (c *buildCtx) processAlternatives(node *sitter.Node, scope *model.Documentable, inFlow int) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "elif_clause":
			// an elif chain is re-examined like a fresh if
			cond := child.ChildByFieldName("condition")
			decision, recognized := c.guardDecision(cond)
			consequence := child.ChildByFieldName("consequence")
			if !recognized || decision {
				if consequence != nil {
					c.processBlock(consequence, scope, inFlow+1)
				}
				if recognized && decision {
					return
				}
			}
		case "else_clause":
			c.processSuites(child, scope, inFlow+1)
		}
	}
}

// guardDecision recognizes the guard forms `<name>`, `not <name>` and
// `<module>.<name>` and looks the simple name up in the configured
// branch overrides for this module. recognized is false for any other
// condition shape or when no override matches.
func (c *buildCtx) guardDecision(cond *sitter.Node) (value, recognized bool) {
	if cond == nil || len(c.b.branches) == 0 {
		return false, false
	}
	name := ""
	negate := false
	switch cond.Kind() {
	case "identifier":
		name = c.Text(cond)
	case "attribute":
		name = c.Text(cond.ChildByFieldName("attribute"))
	case "not_operator":
		arg := cond.ChildByFieldName("argument")
		if arg == nil {
			return false, false
		}
		switch arg.Kind() {
		case "identifier":
			name = c.Text(arg)
		case "attribute":
			name = c.Text(arg.ChildByFieldName("attribute"))
		default:
			return false, false
		}
		negate = true
	default:
		return false, false
	}
	if name == "" {
		return false, false
	}
	for _, rule := range c.b.branches {
		if !rule.pattern.Match(c.module.QName) {
			continue
		}
		if v, ok := rule.guards[name]; ok {
			if negate {
				v = !v
			}
			return v, true
		}
	}
	return false, false
}

// handleDecorated collects the decorator records and dispatches to the
// wrapped definition.
func (c *buildCtx) handleDecorated(node *sitter.Node, scope *model.Documentable, inFlow int) {
	var decorators []model.Decorator
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "decorator" {
			continue
		}
		if dec, ok := c.decoratorRecord(child); ok {
			decorators = append(decorators, dec)
		}
	}
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}
	switch def.Kind() {
	case "function_definition":
		c.handleFunction(def, scope, decorators, inFlow)
	case "class_definition":
		c.handleClass(def, scope, decorators, inFlow)
	}
}

func (c *buildCtx) decoratorRecord(node *sitter.Node) (model.Decorator, bool) {
	var expr *sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "@" && child.Kind() != "comment" {
			expr = child
			break
		}
	}
	if expr == nil {
		return model.Decorator{}, false
	}
	if expr.Kind() == "call" {
		name := parser.DottedName(expr.ChildByFieldName("function"), c.source)
		args := c.Text(expr.ChildByFieldName("arguments"))
		args = strings.TrimPrefix(args, "(")
		args = strings.TrimSuffix(args, ")")
		return model.Decorator{Name: name, Args: args}, name != ""
	}
	name := parser.DottedName(expr, c.source)
	return model.Decorator{Name: name}, name != ""
}

// docstringOf returns the docstring when the first statement of a body
// block is a plain string expression.
func (c *buildCtx) docstringOf(body *sitter.Node) *model.Docstring {
	if body == nil {
		return nil
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		stmt := body.Child(i)
		if stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" {
			return nil
		}
		str := stmt.Child(0)
		if str == nil {
			return nil
		}
		if text, ok := parser.StringLiteral(str, c.source); ok {
			return &model.Docstring{Text: text, Line: int(str.StartPosition().Row) + 1}
		}
		return nil
	}
	return nil
}

func lastSegment(dotted string) string {
	if i := strings.LastIndex(dotted, "."); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}
