// Package rules holds the classification rule set and the readers that build
// it from tabular sources.
package rules

import (
	"strings"

	"mailtriage/internal/domain"
)

// Store is an ordered, read-only rule set. The zero value is an empty store.
type Store struct {
	rules []domain.Rule
}

// NewStore copies rules into a new Store, keeping their order.
func NewStore(rules []domain.Rule) Store {
	return Store{rules: append([]domain.Rule(nil), rules...)}
}

func (s Store) Len() int { return len(s.rules) }

// Rules returns a copy of the rules in source order.
func (s Store) Rules() []domain.Rule {
	return append([]domain.Rule(nil), s.rules...)
}

// ByScope returns the rules of one scope in source order.
func (s Store) ByScope(scope domain.Scope) []domain.Rule {
	var out []domain.Rule
	for _, r := range s.rules {
		if r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

// RowFields is the number of columns a rule row must have.
const RowFields = 6

// IngestStats counts what happened to the rows of one source.
type IngestStats struct {
	Rows    int
	Loaded  int
	Skipped int
}

// FromRows builds a Store from (scope, parent_id, target_id, match_text,
// match_sender, priority) rows. The first row is a header and is skipped.
func FromRows(rows [][]string) (Store, IngestStats) {
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return FromDataRows(rows)
}

// FromDataRows is FromRows for sources without a header row.
func FromDataRows(rows [][]string) (Store, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	out := make([]domain.Rule, 0, len(rows))
	for _, row := range rows {
		rule, ok := RuleFromRow(row)
		if !ok {
			stats.Skipped++
			continue
		}
		out = append(out, rule)
	}
	stats.Loaded = len(out)
	return Store{rules: out}, stats
}

// RuleFromRow converts one data row. Rows that are short, have an unknown
// scope or name no target are rejected.
func RuleFromRow(row []string) (domain.Rule, bool) {
	if len(row) < RowFields {
		return domain.Rule{}, false
	}
	scope, ok := domain.ParseScope(row[0])
	if !ok {
		return domain.Rule{}, false
	}
	target := strings.TrimSpace(row[2])
	if target == "" {
		return domain.Rule{}, false
	}
	return domain.Rule{
		Scope:       scope,
		ParentID:    strings.TrimSpace(row[1]),
		TargetID:    target,
		MatchText:   row[3],
		MatchSender: row[4],
		Priority:    domain.ParsePriority(row[5]),
	}, true
}

// ToRow is the inverse of RuleFromRow.
func ToRow(r domain.Rule) []string {
	return []string{
		r.Scope.String(),
		r.ParentID,
		r.TargetID,
		r.MatchText,
		r.MatchSender,
		itoa(r.Priority),
	}
}
