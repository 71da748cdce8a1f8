package builder

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"apidoc/internal/model"
	"apidoc/internal/parser"
)

func (c *buildCtx) handleClass(node *sitter.Node, scope *model.Documentable, decorators []model.Decorator, inFlow int) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := c.Text(nameNode)

	// nested function scopes are not documented
	if !scope.Kind.IsScope() {
		return
	}

	cls := c.b.sys.NewDocumentable(name, model.KindClass, scope.ID, c.loc(node))
	cls.Class.Decorators = decorators

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := uint(0); i < supers.NamedChildCount(); i++ {
			arg := supers.NamedChild(i)
			switch arg.Kind() {
			case "keyword_argument":
				// metaclass and friends are not bases
			case "list_splat", "dictionary_splat":
				// dynamic bases cannot be resolved statically
			default:
				cls.Class.RawBases = append(cls.Class.RawBases, c.Text(arg))
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		cls.Docstring = c.docstringOf(body)
		prev := c.scope
		c.scope = cls
		c.processBlock(body, cls, inFlow)
		c.scope = prev
	}

	// record the conventional initializer as a constructor
	if init, ok := c.b.sys.ChildNamed(cls, "__init__"); ok && init.Kind.IsCallable() {
		cls.Class.ConstructorMethods = append(cls.Class.ConstructorMethods, init.ID)
	}
}

func (c *buildCtx) handleFunction(node *sitter.Node, scope *model.Documentable, decorators []model.Decorator, inFlow int) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := c.Text(nameNode)

	// function-local definitions are not part of the documented API
	if !scope.Kind.IsScope() {
		return
	}

	kind := model.KindFunction
	if scope.Kind.IsClassLike() {
		kind = model.KindMethod
		for _, d := range decorators {
			switch lastSegment(d.Name) {
			case "classmethod":
				kind = model.KindClassMethod
			case "staticmethod":
				kind = model.KindStaticMethod
			}
		}
	}

	fn := c.b.sys.NewDocumentable(name, kind, scope.ID, c.loc(node))
	fn.Func.Decorators = decorators
	for _, d := range decorators {
		if lastSegment(d.Name) == "overload" {
			fn.Func.IsOverload = true
		}
	}
	fn.Func.IsAsync = parser.HasChildOfKind(node, "async")

	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.Func.Params = c.parseParameters(params, fn)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		fn.Func.ReturnType = c.Text(ret)
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	fn.Docstring = c.docstringOf(body)

	// assignments to self.<name> inside the conventional initializer
	// declare instance variables on the class
	if name == "__init__" && scope.Kind.IsClassLike() {
		c.collectInstanceVariables(body, scope, inFlow)
	}
}

// parseParameters flattens a parameters node into the ordered signature.
// The grammar marks "/" as positional_separator and bare "*" as
// keyword_separator; parameter kinds are assigned accordingly.
func (c *buildCtx) parseParameters(params *sitter.Node, fn *model.Documentable) []model.Parameter {
	type rawParam struct {
		p         model.Parameter
		node      *sitter.Node
	}
	var raw []rawParam
	slashIndex := -1
	keywordOnly := false

	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		switch child.Kind() {
		case "positional_separator":
			slashIndex = len(raw)
		case "keyword_separator":
			keywordOnly = true
		case "identifier":
			raw = append(raw, rawParam{p: model.Parameter{
				Name: c.Text(child),
				Kind: pick(keywordOnly, model.ParamKeywordOnly, model.ParamPositionalOrKeyword),
			}, node: child})
		case "typed_parameter":
			name, splat := c.parameterName(child)
			kind := pick(keywordOnly, model.ParamKeywordOnly, model.ParamPositionalOrKeyword)
			switch splat {
			case "*":
				kind = model.ParamVarPositional
				keywordOnly = true
			case "**":
				kind = model.ParamVarKeyword
			}
			raw = append(raw, rawParam{p: model.Parameter{
				Name: name,
				Kind: kind,
				Type: c.Text(child.ChildByFieldName("type")),
			}, node: child})
		case "default_parameter":
			raw = append(raw, rawParam{p: model.Parameter{
				Name:    c.Text(child.ChildByFieldName("name")),
				Kind:    pick(keywordOnly, model.ParamKeywordOnly, model.ParamPositionalOrKeyword),
				Default: c.Text(child.ChildByFieldName("value")),
			}, node: child})
		case "typed_default_parameter":
			raw = append(raw, rawParam{p: model.Parameter{
				Name:    c.Text(child.ChildByFieldName("name")),
				Kind:    pick(keywordOnly, model.ParamKeywordOnly, model.ParamPositionalOrKeyword),
				Type:    c.Text(child.ChildByFieldName("type")),
				Default: c.Text(child.ChildByFieldName("value")),
			}, node: child})
		case "list_splat_pattern":
			raw = append(raw, rawParam{p: model.Parameter{
				Name: strings.TrimPrefix(c.Text(child), "*"),
				Kind: model.ParamVarPositional,
			}, node: child})
			keywordOnly = true
		case "dictionary_splat_pattern":
			raw = append(raw, rawParam{p: model.Parameter{
				Name: strings.TrimPrefix(c.Text(child), "**"),
				Kind: model.ParamVarKeyword,
			}, node: child})
		case "tuple_pattern":
			// legacy tuple parameters; record the source form
			raw = append(raw, rawParam{p: model.Parameter{
				Name: c.Text(child),
			}, node: child})
		}
	}

	if slashIndex >= 0 {
		for i := 0; i < slashIndex && i < len(raw); i++ {
			if raw[i].p.Kind == model.ParamPositionalOrKeyword {
				raw[i].p.Kind = model.ParamPositionalOnly
			}
		}
	}

	// the signature invariant forbids duplicate names
	seen := make(map[string]bool, len(raw))
	out := make([]model.Parameter, 0, len(raw))
	for _, r := range raw {
		if r.p.Name != "" && seen[r.p.Name] {
			c.Warn("parse", "duplicate parameter "+r.p.Name+" in "+fn.QName, c.loc(r.node))
			continue
		}
		seen[r.p.Name] = true
		out = append(out, r.p)
	}
	return out
}

// parameterName unwraps the identifier inside a typed_parameter, which
// may itself be a splat pattern.
func (c *buildCtx) parameterName(node *sitter.Node) (name, splat string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "identifier":
			return c.Text(child), ""
		case "list_splat_pattern":
			return strings.TrimPrefix(c.Text(child), "*"), "*"
		case "dictionary_splat_pattern":
			return strings.TrimPrefix(c.Text(child), "**"), "**"
		case ":":
			return "", ""
		}
	}
	return "", ""
}

// collectInstanceVariables scans a constructor body for assignments to
// self attributes, attaching inline docstrings the same way module and
// class bodies do.
func (c *buildCtx) collectInstanceVariables(body *sitter.Node, cls *model.Documentable, inFlow int) {
	var prevAttr *model.Documentable
	for i := uint(0); i < body.ChildCount(); i++ {
		stmt := body.Child(i)
		switch stmt.Kind() {
		case "expression_statement":
			inner := stmt.Child(0)
			if inner == nil {
				prevAttr = nil
				continue
			}
			switch inner.Kind() {
			case "assignment", "augmented_assignment":
				prevAttr = c.selfAssignment(inner, cls, inFlow)
				if prevAttr != nil {
					c.attachTypeComment(stmt, prevAttr)
				}
			case "string":
				if prevAttr != nil && prevAttr.Docstring == nil {
					if text, ok := parser.StringLiteral(inner, c.source); ok {
						prevAttr.Docstring = &model.Docstring{Text: text, Line: int(inner.StartPosition().Row) + 1}
					}
				}
				prevAttr = nil
			default:
				prevAttr = nil
			}
		case "if_statement", "for_statement", "while_statement", "with_statement", "try_statement":
			c.collectInstanceVariablesNested(stmt, cls)
			prevAttr = nil
		default:
			prevAttr = nil
		}
	}
}

func (c *buildCtx) collectInstanceVariablesNested(node *sitter.Node, cls *model.Documentable) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "block":
			c.collectInstanceVariables(child, cls, 1)
		case "elif_clause", "else_clause", "except_clause", "finally_clause":
			c.collectInstanceVariablesNested(child, cls)
		}
	}
}

// selfAssignment records `self.<name> = value` as an instance variable of
// the class.
func (c *buildCtx) selfAssignment(node *sitter.Node, cls *model.Documentable, inFlow int) *model.Documentable {
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "attribute" {
		return nil
	}
	obj := left.ChildByFieldName("object")
	if obj == nil || obj.Kind() != "identifier" || c.Text(obj) != "self" {
		return nil
	}
	name := c.Text(left.ChildByFieldName("attribute"))
	if name == "" {
		return nil
	}

	annotation := c.Text(node.ChildByFieldName("type"))
	value := node.ChildByFieldName("right")

	if existing, ok := c.b.sys.ChildNamed(cls, name); ok {
		if existing.Attr != nil {
			existing.Attr.AssignCount++
			existing.Kind = model.KindInstanceVariable
			if annotation != "" && existing.Attr.DeclaredType == "" {
				existing.Attr.DeclaredType = annotation
			}
			return existing
		}
		return nil
	}

	attr := c.b.sys.NewDocumentable(name, model.KindInstanceVariable, cls.ID, c.loc(left))
	attr.Attr.DeclaredType = annotation
	attr.Attr.AssignCount = 1
	attr.Attr.InControlFlow = inFlow > 0
	if value != nil {
		attr.Attr.ValueSource = c.Text(value)
		attr.Attr.ValueLiteral = isLiteral(value)
	}
	return attr
}

func pick(cond bool, a, b model.ParamKind) model.ParamKind {
	if cond {
		return a
	}
	return b
}
