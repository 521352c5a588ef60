// Package ranking holds the primitives shared by the trait and disease
// aggregators: score consolidation with conflict detection, deterministic
// descending ordering and ledger-style multi-line rendering.
package ranking

import (
	"sort"
	"strings"

	"cpgcore/pkg/domain"
)

// ConflictMarker replaces the displayed score of a group whose records disagree.
const ConflictMarker = "error"

// Entry is a ranked association: a display name, the value it sorts by and its
// rendered line. Entries with Valid false sort after every valid entry.
type Entry struct {
	Name    string  `json:"name"`
	SortKey float64 `json:"sort_key"`
	Valid   bool    `json:"valid"`
	Line    string  `json:"line"`
}

// Sort orders entries by descending SortKey, invalid entries last, ties broken
// by ascending Name and then by Line.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Valid != b.Valid {
			return a.Valid
		}
		if a.Valid && a.SortKey != b.SortKey {
			return a.SortKey > b.SortKey
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Line < b.Line
	})
}

// Join renders entry lines separated by domain.Separator. It returns nil for
// no entries so absent evidence stays distinguishable from an empty value.
func Join(entries []Entry) *string {
	if len(entries) == 0 {
		return nil
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return JoinLines(lines)
}

// JoinLines joins lines with domain.Separator, returning nil for none.
func JoinLines(lines []string) *string {
	if len(lines) == 0 {
		return nil
	}
	s := strings.Join(lines, domain.Separator)
	return &s
}

// Consolidated is the single score of a group of records.
type Consolidated struct {
	Value    float64
	Display  string
	Conflict bool
}

// Consolidate reduces the scores of one group. Agreeing scores keep their
// value; disagreeing scores display ConflictMarker and sort by their maximum.
func Consolidate(values []float64) Consolidated {
	if len(values) == 0 {
		return Consolidated{Display: ConflictMarker, Conflict: true}
	}
	first, highest := values[0], values[0]
	agree := true
	for _, v := range values[1:] {
		if v != first {
			agree = false
		}
		if v > highest {
			highest = v
		}
	}
	if agree {
		return Consolidated{Value: first, Display: FormatScore(first)}
	}
	return Consolidated{Value: highest, Display: ConflictMarker, Conflict: true}
}

// Group is one secondary-key group of records with its consolidated score.
type Group[T any] struct {
	Name  string
	Score Consolidated
	Items []T
}

// Entry renders the group's summary entry as "{name}, {score}".
func (g Group[T]) Entry() Entry {
	return Entry{Name: g.Name, SortKey: g.Score.Value, Valid: true, Line: g.Name + ", " + g.Score.Display}
}

// GroupBy partitions items by name, consolidates each group's scores and
// returns the groups ranked by descending score then ascending name. Items
// keep their input order within a group; items with an empty name are dropped.
func GroupBy[T any](items []T, name func(T) string, score func(T) float64) []Group[T] {
	index := make(map[string]int)
	var groups []Group[T]
	for _, item := range items {
		key := name(item)
		if key == "" {
			continue
		}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, Group[T]{Name: key})
		}
		groups[pos].Items = append(groups[pos].Items, item)
	}
	for i := range groups {
		values := make([]float64, len(groups[i].Items))
		for j, item := range groups[i].Items {
			values[j] = score(item)
		}
		groups[i].Score = Consolidate(values)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Score.Value != groups[j].Score.Value {
			return groups[i].Score.Value > groups[j].Score.Value
		}
		return groups[i].Name < groups[j].Name
	})
	return groups
}

// Summary renders ranked groups as "{name}, {score}" lines joined by domain.Separator.
func Summary[T any](groups []Group[T]) *string {
	lines := make([]string, len(groups))
	for i, g := range groups {
		lines[i] = g.Entry().Line
	}
	return JoinLines(lines)
}
