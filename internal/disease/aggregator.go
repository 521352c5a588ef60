// Package disease ranks DisGeNET gene-disease evidence per gene symbol.
//
// Two modes run side by side: broad, over every record, and filtered, over
// the records whose disease class equals one configured value. Each mode
// writes its own pair of columns so both fit on one annotated row.
package disease

import (
	"strings"

	"cpgcore/internal/ranking"
	"cpgcore/pkg/domain"
)

// DefaultFilterClass selects psychiatric disorders in the UMLS semantic types.
const DefaultFilterClass = "Mental or Behavioral Dysfunction (T048)"

// Mode selects the record subset an aggregation runs over.
type Mode int

const (
	// Broad uses every record.
	Broad Mode = iota
	// Filtered keeps only records of the configured disease class.
	Filtered
)

// String returns the mode name used in logs and metrics.
func (m Mode) String() string {
	if m == Filtered {
		return "filtered"
	}
	return "broad"
}

// Columns returns the summary and evidence column names of the mode.
func (m Mode) Columns() (diseases, evidence string) {
	suffix := ""
	if m == Filtered {
		suffix = "_psych"
	}
	return "disgenet" + suffix + "_diseases", "disgenet" + suffix + "_evidence"
}

// Annotation is the pair of aggregate values produced for one gene. Both
// fields are nil when the gene has no matching evidence.
type Annotation struct {
	Diseases *string `json:"diseases"`
	Evidence *string `json:"evidence"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithFilterClass overrides the disease class used by Filtered mode.
func WithFilterClass(class string) Option {
	return func(a *Aggregator) { a.filterClass = strings.TrimSpace(class) }
}

// Aggregator indexes evidence by gene symbol for both modes. It is immutable
// after construction and safe for concurrent use.
type Aggregator struct {
	filterClass string
	fallback    bool
	broad       map[string][]domain.DiseaseEvidenceRecord
	filtered    map[string][]domain.DiseaseEvidenceRecord
}

// NewAggregator indexes records by gene symbol. Records without a gene symbol
// are dropped. When no record carries a disease class at all, Filtered mode
// falls back to every record; FallbackUsed reports it.
func NewAggregator(records []domain.DiseaseEvidenceRecord, opts ...Option) *Aggregator {
	a := &Aggregator{
		filterClass: DefaultFilterClass,
		broad:       make(map[string][]domain.DiseaseEvidenceRecord),
		filtered:    make(map[string][]domain.DiseaseEvidenceRecord),
	}
	for _, opt := range opts {
		opt(a)
	}
	classified := false
	for _, rec := range records {
		if strings.TrimSpace(rec.DiseaseClass) != "" {
			classified = true
			break
		}
	}
	a.fallback = !classified && len(records) > 0
	for _, rec := range records {
		gene := strings.TrimSpace(rec.GeneSymbol)
		if gene == "" {
			continue
		}
		a.broad[gene] = append(a.broad[gene], rec)
		if a.fallback || strings.TrimSpace(rec.DiseaseClass) == a.filterClass {
			a.filtered[gene] = append(a.filtered[gene], rec)
		}
	}
	return a
}

// FilterClass returns the disease class used by Filtered mode.
func (a *Aggregator) FilterClass() string { return a.filterClass }

// FallbackUsed reports whether Filtered mode is running over every record
// because none was classified.
func (a *Aggregator) FallbackUsed() bool { return a.fallback }

// Genes reports how many genes have evidence in the given mode.
func (a *Aggregator) Genes(mode Mode) int { return len(a.index(mode)) }

// Annotate ranks the evidence of gene in the given mode.
func (a *Aggregator) Annotate(gene string, mode Mode) Annotation {
	records := a.index(mode)[strings.TrimSpace(gene)]
	if len(records) == 0 {
		return Annotation{}
	}
	groups := ranking.GroupBy(records,
		func(r domain.DiseaseEvidenceRecord) string { return r.DiseaseName },
		func(r domain.DiseaseEvidenceRecord) float64 { return r.Score },
	)
	if len(groups) == 0 {
		return Annotation{}
	}
	var lines []string
	for _, g := range groups {
		evidence := make([]ranking.Evidence, len(g.Items))
		for i, r := range g.Items {
			evidence[i] = evidenceOf(r)
		}
		lines = append(lines, ranking.Ledger(evidence)...)
	}
	return Annotation{Diseases: ranking.Summary(groups), Evidence: ranking.JoinLines(lines)}
}

func (a *Aggregator) index(mode Mode) map[string][]domain.DiseaseEvidenceRecord {
	if mode == Filtered {
		return a.filtered
	}
	return a.broad
}

func evidenceOf(r domain.DiseaseEvidenceRecord) ranking.Evidence {
	return ranking.Evidence{
		Name:            r.DiseaseName,
		Polarity:        r.Polarity,
		Year:            r.PublicationYear,
		ReferenceType:   r.ReferenceType,
		Reference:       r.Reference,
		Source:          r.Source,
		AssociationType: r.AssociationType,
	}
}
