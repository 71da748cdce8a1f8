package model

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// PrivacyRule is one user-configured (qname pattern, privacy) pair.
// Patterns without glob metacharacters are exact matches, and an exact
// match always beats a glob regardless of rule order.
type PrivacyRule struct {
	Pattern string
	Privacy Privacy

	exact   bool
	matcher glob.Glob
}

// CompilePrivacyRules parses ordered "pattern:PRIVACY" entries.
func CompilePrivacyRules(entries []string) ([]PrivacyRule, error) {
	rules := make([]PrivacyRule, 0, len(entries))
	for _, entry := range entries {
		idx := strings.LastIndex(entry, ":")
		if idx <= 0 || idx == len(entry)-1 {
			return nil, fmt.Errorf("malformed privacy rule %q, want pattern:PRIVACY", entry)
		}
		pattern := entry[:idx]
		privacy, ok := PrivacyFromName(entry[idx+1:])
		if !ok {
			return nil, fmt.Errorf("unknown privacy %q in rule %q", entry[idx+1:], entry)
		}
		rule := PrivacyRule{Pattern: pattern, Privacy: privacy}
		if !strings.ContainsAny(pattern, "*?[{") {
			rule.exact = true
		} else {
			g, err := glob.Compile(pattern, '.')
			if err != nil {
				return nil, fmt.Errorf("bad privacy pattern %q: %w", pattern, err)
			}
			rule.matcher = g
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SetPrivacyRules installs the ordered override rules.
func (s *System) SetPrivacyRules(rules []PrivacyRule) {
	s.privacyRules = rules
}

// PrivacyFor applies the default naming rules and then the user rules to
// one qname/name pair: the last matching rule wins, except that an exact
// rule beats every glob.
func (s *System) PrivacyFor(qname, name string) Privacy {
	privacy := Public
	if IsPrivateName(name) {
		privacy = Private
	}
	matchedExact := false
	for _, r := range s.privacyRules {
		if r.exact {
			if r.Pattern == qname {
				privacy = r.Privacy
				matchedExact = true
			}
			continue
		}
		if matchedExact {
			continue
		}
		if r.matcher.Match(qname) {
			privacy = r.Privacy
		}
	}
	return privacy
}
