package introspect

import (
	"strings"

	"apidoc/internal/model"
)

// ParseDocSignature recovers a signature from a docstring whose first
// line follows the `name(arg, arg=default) -- description` convention
// used by many compiled modules. rest is the docstring with the
// signature line removed.
func ParseDocSignature(name, doc string) (params []model.Parameter, rest string, ok bool) {
	lines := strings.SplitN(doc, "\n", 2)
	first := strings.TrimSpace(lines[0])

	if !strings.HasPrefix(first, name+"(") {
		return nil, doc, false
	}
	open := len(name)
	closeIdx := matchingParen(first, open)
	if closeIdx < 0 {
		return nil, doc, false
	}

	params, ok = parseParamList(first[open+1 : closeIdx])
	if !ok {
		return nil, doc, false
	}

	// anything after "--" on the signature line is description text
	trailer := strings.TrimSpace(first[closeIdx+1:])
	trailer = strings.TrimSpace(strings.TrimPrefix(trailer, "--"))

	rest = trailer
	if len(lines) > 1 {
		tail := strings.TrimLeft(lines[1], "\n")
		if rest != "" && tail != "" {
			rest += "\n"
		}
		rest += tail
	}
	return params, rest, true
}

// parseTextSignature parses the "(a, b=1, *args)" form produced by the
// runtime introspection facility.
func parseTextSignature(sig string) ([]model.Parameter, bool) {
	s := strings.TrimSpace(sig)
	if !strings.HasPrefix(s, "(") {
		return nil, false
	}
	// a return annotation may trail the parentheses
	closeIdx := matchingParen(s, 0)
	if closeIdx < 0 {
		return nil, false
	}
	return parseParamList(s[1:closeIdx])
}

func parseParamList(inner string) ([]model.Parameter, bool) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil, true
	}

	var params []model.Parameter
	keywordOnly := false
	seen := make(map[string]bool)

	for _, part := range splitTopLevel(inner) {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case part == "/":
			for i := range params {
				if params[i].Kind == model.ParamPositionalOrKeyword {
					params[i].Kind = model.ParamPositionalOnly
				}
			}
			continue
		case part == "*":
			keywordOnly = true
			continue
		case part == "...":
			params = append(params, model.Parameter{Name: "...", Kind: model.ParamVarPositional})
			continue
		}

		p := model.Parameter{Kind: model.ParamPositionalOrKeyword}
		if keywordOnly {
			p.Kind = model.ParamKeywordOnly
		}
		switch {
		case strings.HasPrefix(part, "**"):
			p.Kind = model.ParamVarKeyword
			part = part[2:]
		case strings.HasPrefix(part, "*"):
			p.Kind = model.ParamVarPositional
			keywordOnly = true
			part = part[1:]
		}

		if eq := topLevelIndex(part, '='); eq >= 0 {
			p.Default = strings.TrimSpace(part[eq+1:])
			part = part[:eq]
		}
		if colon := topLevelIndex(part, ':'); colon >= 0 {
			p.Type = strings.TrimSpace(part[colon+1:])
			part = part[:colon]
		}
		p.Name = strings.TrimSpace(part)
		if p.Name == "" || !identLike(p.Name) {
			return nil, false
		}
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		params = append(params, p)
	}
	return params, true
}

// splitTopLevel splits on commas that are not nested inside brackets or
// quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	quote := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote && (i == 0 || s[i-1] != '\\') {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func topLevelIndex(s string, target byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case target:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchingParen(s string, open int) int {
	if open >= len(s) || s[open] != '(' {
		// an index short of the paren is scanned forward to the
		// next one
		idx := strings.IndexByte(s[open:], '(')
		if idx < 0 {
			return -1
		}
		open += idx
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func identLike(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
