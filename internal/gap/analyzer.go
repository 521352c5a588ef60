// Package gap compares the genes an external source reports for each probe
// against the canonical gene table and classifies what is not accounted for.
package gap

import (
	"sort"
	"strings"

	"cpgcore/internal/synonym"
	"cpgcore/pkg/domain"
)

// TokenPolicy reports whether a gene token is unestablished (provisional or versioned).
type TokenPolicy func(token string) bool

// DecimalPolicy treats any token containing a '.' as unestablished.
func DecimalPolicy(token string) bool { return strings.Contains(token, ".") }

// LedgerRow is one diagnostic row for a reported token that is not a canonical
// symbol. Decimal tokens never appear here; see Report.Appendix.
type LedgerRow struct {
	ProbeID       string `json:"cpg"`
	ReportedGenes string `json:"reported_genes"`
	Token         string `json:"uncaptured_gene"`
	SynonymOf     string `json:"synonym_of"`
	MappedGenes   string `json:"mapped_genes"`
	Suggestion    string `json:"closest_symbol,omitempty"`
}

// AppendixRow lists an unestablished token and a probe that reported it.
type AppendixRow struct {
	ProbeID string `json:"cpg"`
	Token   string `json:"gene"`
}

// Report is the outcome of a gap analysis run.
type Report struct {
	// Unmapped holds, per probe, the tokens neither canonical nor known synonyms.
	// Probes with nothing unmapped are absent.
	Unmapped map[string]domain.UnmappedClassification
	Ledger   []LedgerRow
	Appendix []AppendixRow
}

// Established returns the sorted established-unmapped tokens of probe joined
// by domain.Separator, or nil when there are none.
func (r Report) Established(probe string) *string {
	return joined(r.Unmapped[probe].Established)
}

// Unestablished returns the sorted unestablished-unmapped tokens of probe, or nil.
func (r Report) Unestablished(probe string) *string {
	return joined(r.Unmapped[probe].Unestablished)
}

// EstablishedByProbe returns the non-empty established strings keyed by probe.
func (r Report) EstablishedByProbe() map[string]string {
	out := make(map[string]string)
	for probe := range r.Unmapped {
		if v := r.Established(probe); v != nil {
			out[probe] = *v
		}
	}
	return out
}

// UnestablishedByProbe returns the non-empty unestablished strings keyed by probe.
func (r Report) UnestablishedByProbe() map[string]string {
	out := make(map[string]string)
	for probe := range r.Unmapped {
		if v := r.Unestablished(probe); v != nil {
			out[probe] = *v
		}
	}
	return out
}

// Probes returns the probes with at least one unmapped token, sorted.
func (r Report) Probes() []string {
	out := make([]string, 0, len(r.Unmapped))
	for probe := range r.Unmapped {
		out = append(out, probe)
	}
	sort.Strings(out)
	return out
}

// Analyzer classifies reported gene tokens. It only reads the synonym index
// and mapping fields it was built with.
type Analyzer struct {
	index     *synonym.Index
	rawFields map[string]string
	policy    TokenPolicy
	suggest   bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPolicy replaces the unestablished-token policy.
func WithPolicy(policy TokenPolicy) Option {
	return func(a *Analyzer) {
		if policy != nil {
			a.policy = policy
		}
	}
}

// WithSuggestions toggles closest-symbol suggestions on ledger rows.
func WithSuggestions(enabled bool) Option {
	return func(a *Analyzer) { a.suggest = enabled }
}

// NewAnalyzer returns an analyzer over the supplied index. rawFields maps each
// probe to its pre-expansion gene field (see mapping.RawFields).
func NewAnalyzer(index *synonym.Index, rawFields map[string]string, opts ...Option) *Analyzer {
	a := &Analyzer{index: index, rawFields: rawFields, policy: DecimalPolicy}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type pairKey struct {
	probe string
	genes string
}

type tokenSets struct {
	established   map[string]struct{}
	unestablished map[string]struct{}
}

// Analyze classifies every token of every distinct (probe, reported string)
// pair. Pairs without a probe id or reported string are skipped.
func (a *Analyzer) Analyze(reports []domain.ReportedGenes) Report {
	seen := make(map[pairKey]struct{})
	sets := make(map[string]*tokenSets)
	appendix := make(map[AppendixRow]struct{})
	var ledger []LedgerRow

	for _, rep := range reports {
		if rep.ProbeID == "" || rep.Genes == nil || strings.TrimSpace(*rep.Genes) == "" {
			continue
		}
		key := pairKey{probe: rep.ProbeID, genes: *rep.Genes}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		for _, token := range splitTokens(*rep.Genes) {
			unestablished := a.policy(token)
			if unestablished {
				appendix[AppendixRow{ProbeID: rep.ProbeID, Token: token}] = struct{}{}
			}
			if a.index.Symbols().Contains(token) {
				continue
			}
			if owner, ok := a.index.Lookup(token); ok {
				if !unestablished {
					ledger = append(ledger, a.ledgerRow(rep.ProbeID, *rep.Genes, token, owner))
				}
				continue
			}
			set := sets[rep.ProbeID]
			if set == nil {
				set = &tokenSets{established: map[string]struct{}{}, unestablished: map[string]struct{}{}}
				sets[rep.ProbeID] = set
			}
			if unestablished {
				set.unestablished[token] = struct{}{}
				continue
			}
			set.established[token] = struct{}{}
			ledger = append(ledger, a.ledgerRow(rep.ProbeID, *rep.Genes, token, ""))
		}
	}

	unmapped := make(map[string]domain.UnmappedClassification, len(sets))
	for probe, set := range sets {
		unmapped[probe] = domain.UnmappedClassification{
			Established:   sortedKeys(set.established),
			Unestablished: sortedKeys(set.unestablished),
		}
	}
	return Report{Unmapped: unmapped, Ledger: ledger, Appendix: sortedAppendix(appendix)}
}

func (a *Analyzer) ledgerRow(probe, reported, token, owner string) LedgerRow {
	row := LedgerRow{
		ProbeID:       probe,
		ReportedGenes: reported,
		Token:         token,
		SynonymOf:     owner,
		MappedGenes:   a.rawFields[probe],
	}
	if owner == "" && a.suggest {
		row.Suggestion = a.index.Suggest(token)
	}
	return row
}

func splitTokens(genes string) []string {
	parts := strings.Split(genes, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if token := strings.TrimSpace(part); token != "" {
			out = append(out, token)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedAppendix(set map[AppendixRow]struct{}) []AppendixRow {
	out := make([]AppendixRow, 0, len(set))
	for row := range set {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProbeID != out[j].ProbeID {
			return out[i].ProbeID < out[j].ProbeID
		}
		return out[i].Token < out[j].Token
	})
	return out
}

func joined(tokens []string) *string {
	if len(tokens) == 0 {
		return nil
	}
	s := strings.Join(tokens, domain.Separator)
	return &s
}
