// Package linker is the contract consumed by the markup parsers:
// resolve a dotted name or role string from a docstring into a URL
// fragment plus a css class.
package linker

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"apidoc/internal/model"
	"apidoc/internal/resolver"
)

const (
	ClassInternal    = "internal"
	ClassIntersphinx = "intersphinx"
	ClassUnresolved  = "unresolved"
)

type cacheKey struct {
	ctx  model.DocID
	text string
}

type link struct {
	url string
	css string
}

type Linker struct {
	sys   *model.System
	res   *resolver.Resolver
	cache *lru.Cache[cacheKey, link]
}

func New(sys *model.System, res *resolver.Resolver) (*Linker, error) {
	cache, err := lru.New[cacheKey, link](8192)
	if err != nil {
		return nil, err
	}
	return &Linker{sys: sys, res: res, cache: cache}, nil
}

// Lookup resolves text in the context of a Documentable. Identical
// cross-references in many docstrings resolve once per context.
func (l *Linker) Lookup(ctx *model.Documentable, text string) (url, cssClass string) {
	key := cacheKey{ctx: ctx.ID, text: text}
	if cached, ok := l.cache.Get(key); ok {
		return cached.url, cached.css
	}

	name := stripRole(text)
	var out link
	if name == "" {
		out = link{css: ClassUnresolved}
	} else {
		res := l.res.Resolve(ctx, name)
		switch res.Kind {
		case resolver.Internal:
			out = link{url: URLFor(l.sys, res.Target), css: ClassInternal}
		case resolver.External:
			out = link{url: res.URL, css: ClassIntersphinx}
		default:
			l.sys.Warn("resolve", "cannot resolve reference "+name+" from "+ctx.QName, ctx.Location)
			out = link{css: ClassUnresolved}
		}
	}
	l.cache.Add(key, out)
	return out.url, out.css
}

// stripRole reduces a role string like ":py:class:`~pkg.Thing`" to the
// dotted target; plain dotted names pass through.
func stripRole(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "`"); i >= 0 {
		j := strings.LastIndex(s, "`")
		if j > i {
			s = s[i+1 : j]
		} else {
			s = s[i+1:]
		}
	}
	// explicit-title form: "title <target>"
	if i := strings.LastIndex(s, "<"); i >= 0 && strings.HasSuffix(s, ">") {
		s = s[i+1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "~")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSpace(s)
}

// URLFor computes the relative documentation URL of an entity: scopes
// with their own page get "<qname>.html", members link into their
// parent page's fragment.
func URLFor(sys *model.System, d *model.Documentable) string {
	if d.Kind.IsModuleLike() || d.Kind.IsClassLike() {
		return d.QName + ".html"
	}
	parent := sys.Get(d.Parent)
	if parent == nil {
		return d.QName + ".html"
	}
	return parent.QName + ".html#" + d.Name
}
