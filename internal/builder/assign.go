package builder

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"apidoc/internal/config"
	"apidoc/internal/model"
	"apidoc/internal/parser"
)

// handleExpression processes one expression statement in a module or
// class body. It returns the Attribute the statement assigned, if any,
// so a following string literal can attach as its docstring.
func (c *buildCtx) handleExpression(stmt *sitter.Node, scope *model.Documentable, inFlow int, prevAttr *model.Documentable, first bool) *model.Documentable {
	inner := stmt.Child(0)
	if inner == nil {
		return nil
	}
	switch inner.Kind() {
	case "assignment":
		attr := c.handleAssignment(inner, scope, inFlow)
		if attr != nil {
			c.attachTypeComment(stmt, attr)
		}
		return attr
	case "augmented_assignment":
		return c.handleAugmented(inner, scope, inFlow)
	case "string", "concatenated_string":
		text, ok := parser.StringLiteral(inner, c.source)
		if !ok {
			return nil
		}
		ds := &model.Docstring{Text: text, Line: int(inner.StartPosition().Row) + 1}
		switch {
		case first:
			if scope.Docstring == nil {
				scope.Docstring = ds
			}
		case prevAttr != nil && prevAttr.Docstring == nil:
			prevAttr.Docstring = ds
		}
		return nil
	}
	return nil
}

// handleAssignment covers simple, annotated and chained assignments.
// Chained targets (`a = b = 1`) nest the next assignment in the right
// field; every identifier target becomes an Attribute.
func (c *buildCtx) handleAssignment(node *sitter.Node, scope *model.Documentable, inFlow int) *model.Documentable {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	annotation := c.Text(node.ChildByFieldName("type"))

	// walk down a chain to the real value
	value := right
	for value != nil && value.Kind() == "assignment" {
		value = value.ChildByFieldName("right")
	}

	var attr *model.Documentable
	if left != nil {
		attr = c.assignTarget(left, scope, annotation, value, inFlow)
	}
	if right != nil && right.Kind() == "assignment" {
		c.handleAssignment(right, scope, inFlow)
	}
	return attr
}

func (c *buildCtx) assignTarget(left *sitter.Node, scope *model.Documentable, annotation string, value *sitter.Node, inFlow int) *model.Documentable {
	switch left.Kind() {
	case "identifier":
		return c.bindName(c.Text(left), left, scope, annotation, value, inFlow)
	case "pattern_list", "tuple_pattern", "list_pattern":
		// tuple unpacking: document each plain identifier, without a
		// usable value source
		var last *model.Documentable
		for i := uint(0); i < left.NamedChildCount(); i++ {
			t := left.NamedChild(i)
			if t.Kind() == "identifier" {
				last = c.bindName(c.Text(t), t, scope, "", nil, inFlow)
			}
		}
		return last
	case "attribute":
		// self.x outside a constructor, or arbitrary attribute stores:
		// not module/class API
		return nil
	}
	return nil
}

// bindName creates or updates the Attribute for one name in scope,
// intercepting the public-names list, the docformat declaration, type
// variables and type aliases.
func (c *buildCtx) bindName(name string, nameNode *sitter.Node, scope *model.Documentable, annotation string, value *sitter.Node, inFlow int) *model.Documentable {
	if scope.Kind.IsModuleLike() {
		switch name {
		case "__all__":
			c.setAllExports(scope, value, false)
			return nil
		case "__docformat__":
			c.setDocFormat(scope, value)
			return nil
		}
	}

	if existing, ok := c.b.sys.ChildNamed(scope, name); ok {
		if existing.Attr == nil {
			// a function or class already owns this name; the later
			// binding does not demote it
			return nil
		}
		existing.Attr.AssignCount++
		if inFlow > 0 {
			existing.Attr.InControlFlow = true
		}
		if annotation != "" && existing.Attr.DeclaredType == "" {
			existing.Attr.DeclaredType = annotation
		}
		if value != nil {
			existing.Attr.ValueSource = c.Text(value)
			existing.Attr.ValueLiteral = isLiteral(value)
		}
		return existing
	}

	kind := model.KindVariable
	if scope.Kind.IsClassLike() {
		kind = model.KindClassVariable
	}

	var constraints []string
	valueText := ""
	valueLiteral := false
	if value != nil {
		valueText = c.Text(value)
		valueLiteral = isLiteral(value)
		if tv, ok := c.typeVarConstraints(value); ok {
			kind = model.KindTypeVariable
			constraints = tv
		}
	}
	if isTypeAliasAnnotation(annotation) {
		kind = model.KindTypeAlias
	}

	attr := c.b.sys.NewDocumentable(name, kind, scope.ID, c.loc(nameNode))
	attr.Attr.DeclaredType = annotation
	attr.Attr.ValueSource = valueText
	attr.Attr.ValueLiteral = valueLiteral
	attr.Attr.Constraints = constraints
	attr.Attr.AssignCount = 1
	attr.Attr.InControlFlow = inFlow > 0
	return attr
}

func (c *buildCtx) handleAugmented(node *sitter.Node, scope *model.Documentable, inFlow int) *model.Documentable {
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return nil
	}
	name := c.Text(left)

	if scope.Kind.IsModuleLike() && name == "__all__" {
		op := c.Text(node.ChildByFieldName("operator"))
		if op == "+=" {
			c.setAllExports(scope, node.ChildByFieldName("right"), true)
		} else {
			c.Warn("all-exports", "unsupported operator "+op+" on the public-names list in "+scope.QName, c.loc(node))
		}
		return nil
	}

	if existing, ok := c.b.sys.ChildNamed(scope, name); ok && existing.Attr != nil {
		existing.Attr.AssignCount++
		if inFlow > 0 {
			existing.Attr.InControlFlow = true
		}
		return existing
	}
	return nil
}

// setAllExports parses an assignment to the public-names variable. Only
// a literal sequence of string literals is honored; an empty literal
// means "export nothing", which is distinct from no list at all.
func (c *buildCtx) setAllExports(mod *model.Documentable, value *sitter.Node, appending bool) {
	items, ok := parser.StringSequence(value, c.source)
	if !ok {
		c.Warn("all-exports", "cannot statically evaluate the public-names list of "+mod.QName,
			c.loc(value))
		return
	}
	if appending {
		mod.Mod.All = append(mod.Mod.All, items...)
		mod.Mod.HasAll = true
		return
	}
	mod.Mod.All = items
	mod.Mod.HasAll = true
}

func (c *buildCtx) setDocFormat(mod *model.Documentable, value *sitter.Node) {
	raw, ok := parser.StringLiteral(value, c.source)
	if !ok {
		c.Warn("docformat", "non-literal docformat declaration in "+mod.QName, c.loc(value))
		return
	}
	format, err := config.NormalizeDocFormat(raw)
	if err != nil {
		c.Warn("docformat", err.Error()+" in "+mod.QName, c.loc(value))
		return
	}
	mod.Mod.DeclaredDocFormat = format
}

// handleTypeAliasStatement covers the dedicated alias statement form
// `type X = ...`.
func (c *buildCtx) handleTypeAliasStatement(stmt *sitter.Node, scope *model.Documentable) {
	var nameNode, valueNode *sitter.Node
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		child := stmt.NamedChild(i)
		if nameNode == nil {
			nameNode = child
			continue
		}
		valueNode = child
	}
	if nameNode == nil {
		return
	}
	name := c.Text(nameNode)
	// a generic alias like `type X[T] = ...` carries the parameter list
	// in the name expression
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return
	}
	alias := c.b.sys.NewDocumentable(name, model.KindTypeAlias, scope.ID, c.loc(stmt))
	if valueNode != nil {
		alias.Attr.ValueSource = c.Text(valueNode)
	}
	alias.Attr.AssignCount = 1
}

// typeVarConstraints recognizes `TypeVar("T", ...)` calls; the returned
// constraints are the positional arguments after the variable name.
func (c *buildCtx) typeVarConstraints(value *sitter.Node) ([]string, bool) {
	if value.Kind() != "call" {
		return nil, false
	}
	fn := parser.DottedName(value.ChildByFieldName("function"), c.source)
	if lastSegment(fn) != "TypeVar" {
		return nil, false
	}
	args := value.ChildByFieldName("arguments")
	if args == nil {
		return nil, true
	}
	var constraints []string
	seenName := false
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg.Kind() == "keyword_argument" {
			continue
		}
		if !seenName {
			seenName = true
			continue
		}
		constraints = append(constraints, c.Text(arg))
	}
	return constraints, true
}

// attachTypeComment picks up a trailing `# type: T` comment on the same
// line as the assignment statement.
func (c *buildCtx) attachTypeComment(stmt *sitter.Node, attr *model.Documentable) {
	if attr.Attr == nil || attr.Attr.DeclaredType != "" {
		return
	}
	sibling := stmt.NextSibling()
	if sibling == nil || sibling.Kind() != "comment" {
		return
	}
	if sibling.StartPosition().Row != stmt.EndPosition().Row {
		return
	}
	text := strings.TrimSpace(c.Text(sibling))
	text = strings.TrimPrefix(text, "#")
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "type:"); ok {
		declared := strings.TrimSpace(rest)
		if declared != "" && declared != "ignore" {
			attr.Attr.DeclaredType = declared
		}
	}
}

func isTypeAliasAnnotation(annotation string) bool {
	return lastSegment(strings.TrimSpace(annotation)) == "TypeAlias"
}

// isLiteral reports whether an expression is a literal: strings, numbers,
// booleans, None, and containers of literals. Computed expressions such
// as comprehensions and calls are not literals.
func isLiteral(node *sitter.Node) bool {
	if node == nil {
		return false
	}
	switch node.Kind() {
	case "string", "concatenated_string", "integer", "float", "true", "false", "none", "ellipsis":
		return true
	case "unary_operator":
		return isLiteral(node.ChildByFieldName("argument"))
	case "list", "tuple", "set", "expression_list":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if !isLiteral(node.NamedChild(i)) {
				return false
			}
		}
		return true
	case "dictionary":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			pair := node.NamedChild(i)
			if pair.Kind() != "pair" {
				return false
			}
			if !isLiteral(pair.ChildByFieldName("key")) || !isLiteral(pair.ChildByFieldName("value")) {
				return false
			}
		}
		return true
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return isLiteral(node.NamedChild(0))
		}
	}
	return false
}
