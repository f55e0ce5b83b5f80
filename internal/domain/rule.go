package domain

import (
	"strconv"
	"strings"
)

// LowestPriority is assigned to rules whose priority is missing or not a number.
const LowestPriority = 999

// Scope says which level of the project/package hierarchy a rule votes for.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeParent
	ScopeItem
)

func (s Scope) String() string {
	switch s {
	case ScopeParent:
		return "PARENT"
	case ScopeItem:
		return "ITEM"
	default:
		return "UNKNOWN"
	}
}

// ParseScope accepts the scope spellings found in rule sheets.
func ParseScope(raw string) (Scope, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PARENT", "PROJECT":
		return ScopeParent, true
	case "ITEM", "PACKAGE":
		return ScopeItem, true
	default:
		return ScopeUnknown, false
	}
}

type Rule struct {
	Scope       Scope
	ParentID    string // declared parent when Scope == ScopeItem
	TargetID    string
	MatchText   string // comma-separated keywords
	MatchSender string // comma-separated sender/domain patterns, optional leading '*'
	Priority    int    // 1 = highest
}

// Keywords returns the trimmed, lowercased keywords of the rule.
func (r Rule) Keywords() []string {
	return splitList(r.MatchText, ",", true)
}

// SenderPatterns returns the lowercased sender patterns. A leading '*' is a
// wildcard: it is removed together with an '@' that follows it, so "*@acme.com"
// becomes "acme.com". This is intentionally looser than stripping the '*'
// alone: "*@acme.com" then matches "john@notacme.com.org" as well as
// "bob@acme.community" and "acme.com.phish@evil.io". Write "@acme.com" without
// the wildcard to keep the '@' in the pattern.
func (r Rule) SenderPatterns() []string {
	raw := splitList(r.MatchSender, ",", true)
	out := raw[:0]
	for _, p := range raw {
		if strings.HasPrefix(p, "*") {
			p = strings.TrimPrefix(strings.TrimPrefix(p, "*"), "@")
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParsePriority converts a sheet cell to a priority, falling back to LowestPriority.
func ParsePriority(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return LowestPriority
	}
	return n
}

func splitList(s, sep string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lower {
			part = strings.ToLower(part)
		}
		out = append(out, part)
	}
	return out
}

// SplitMulti splits a semicolon-separated multi-value field.
func SplitMulti(s string) []string {
	return splitList(s, ";", false)
}

// JoinMulti is the inverse of SplitMulti.
func JoinMulti(values []string) string {
	return strings.Join(values, ";")
}
