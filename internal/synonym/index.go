// Package synonym resolves gene aliases to canonical symbols.
//
// The canonical symbol set and the synonym index are built once from the
// reference gene table and are read-only afterwards, so they may be shared by
// concurrent readers.
package synonym

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"cpgcore/pkg/domain"
)

// suggestThreshold bounds the normalized edit distance accepted by Suggest.
const suggestThreshold = 0.34

// Symbols is the immutable set of canonical gene symbols.
type Symbols struct {
	set    map[string]struct{}
	sorted []string
}

// NewSymbols collects the non-empty canonical symbols of the gene table.
func NewSymbols(records []domain.GeneRecord) Symbols {
	set := make(map[string]struct{}, len(records))
	for _, rec := range records {
		symbol := strings.TrimSpace(rec.Symbol)
		if symbol == "" {
			continue
		}
		set[symbol] = struct{}{}
	}
	sorted := make([]string, 0, len(set))
	for symbol := range set {
		sorted = append(sorted, symbol)
	}
	sort.Strings(sorted)
	return Symbols{set: set, sorted: sorted}
}

// Contains reports whether symbol is canonical.
func (s Symbols) Contains(symbol string) bool {
	_, ok := s.set[symbol]
	return ok
}

// Len returns the number of canonical symbols.
func (s Symbols) Len() int { return len(s.sorted) }

// Sorted returns the canonical symbols in ascending order.
func (s Symbols) Sorted() []string { return append([]string(nil), s.sorted...) }

// Conflict records a synonym claimed by more than one canonical symbol. The
// index resolves it to Winner, the later claimant in table order.
type Conflict struct {
	Synonym  string `json:"synonym"`
	Previous string `json:"previous"`
	Winner   string `json:"winner"`
}

// Index maps synonyms to their canonical symbol.
type Index struct {
	symbols   Symbols
	owners    map[string]string
	conflicts []Conflict
}

// Build constructs the canonical symbol set and synonym index. Records whose
// synonyms fail to parse are returned as ParseErrors and contribute no
// synonyms; records without a symbol are skipped.
func Build(records []domain.GeneRecord) (*Index, []ParseError) {
	idx := &Index{
		symbols: NewSymbols(records),
		owners:  make(map[string]string),
	}
	var failures []ParseError
	for _, rec := range records {
		symbol := strings.TrimSpace(rec.Symbol)
		if symbol == "" {
			continue
		}
		synonyms, err := Parse(rec)
		if err != nil {
			if perr, ok := err.(ParseError); ok {
				failures = append(failures, perr)
			} else {
				failures = append(failures, ParseError{Symbol: symbol, Err: err})
			}
			continue
		}
		for _, syn := range synonyms {
			if syn == symbol {
				continue
			}
			if previous, ok := idx.owners[syn]; ok && previous != symbol {
				idx.conflicts = append(idx.conflicts, Conflict{Synonym: syn, Previous: previous, Winner: symbol})
			}
			idx.owners[syn] = symbol
		}
	}
	return idx, failures
}

// Symbols returns the canonical symbol set the index was built with.
func (i *Index) Symbols() Symbols { return i.symbols }

// Lookup returns the canonical symbol owning synonym.
func (i *Index) Lookup(synonym string) (string, bool) {
	owner, ok := i.owners[synonym]
	return owner, ok
}

// Len returns the number of indexed synonyms.
func (i *Index) Len() int { return len(i.owners) }

// Conflicts returns the synonym collisions observed during Build, in table order.
func (i *Index) Conflicts() []Conflict { return append([]Conflict(nil), i.conflicts...) }

// Resolve maps a gene token to its canonical symbol. synonymOf is non-empty
// only when the token matched through the synonym index.
func (i *Index) Resolve(token string) (canonical, synonymOf string, ok bool) {
	if i.symbols.Contains(token) {
		return token, "", true
	}
	if owner, found := i.owners[token]; found {
		return owner, owner, true
	}
	return "", "", false
}

// Suggest returns the canonical symbol closest to token by case-insensitive
// edit distance, or "" when nothing is close enough. Ties resolve to the
// lexically smallest symbol.
func (i *Index) Suggest(token string) string {
	needle := strings.ToUpper(strings.TrimSpace(token))
	if needle == "" {
		return ""
	}
	best, bestScore := "", suggestThreshold
	for _, symbol := range i.symbols.sorted {
		candidate := strings.ToUpper(symbol)
		longest := max(len(needle), len(candidate))
		if float64(abs(len(needle)-len(candidate)))/float64(longest) >= bestScore {
			continue
		}
		score := float64(levenshtein.ComputeDistance(needle, candidate)) / float64(longest)
		if score < bestScore {
			best, bestScore = symbol, score
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
