// Package domain defines the tabular records exchanged between the cpgcore
// stages: probe-to-gene mappings, the reference gene table, EWAS Atlas trait
// associations and DisGeNET disease evidence.
package domain

// UnmappedSymbol is the gene symbol assigned to probes whose mapping field is missing.
const UnmappedSymbol = "unmapped"

// Separator joins multi-line aggregate values (one line per entry).
const Separator = ";\n"

// MappingRecord is one row of the probe mapping table prior to expansion.
// RawGenes holds the comma-separated gene list; nil means the cell was missing.
type MappingRecord struct {
	ProbeID    string  `json:"probe_id"`
	Chromosome string  `json:"chromosome"`
	Start      *int64  `json:"start,omitempty"`
	End        *int64  `json:"end,omitempty"`
	RawGenes   *string `json:"raw_genes,omitempty"`
}

// GeneMapping is one expanded (probe, gene) row.
type GeneMapping struct {
	ProbeID    string `json:"probe_id"`
	Chromosome string `json:"chromosome"`
	Start      *int64 `json:"start,omitempty"`
	End        *int64 `json:"end,omitempty"`
	GeneSymbol string `json:"gene_symbol"`
}

// Unmapped reports whether the row carries the unmapped sentinel.
func (m GeneMapping) Unmapped() bool { return m.GeneSymbol == UnmappedSymbol }

// GeneRecord is one row of the reference gene table. Synonyms arrive either as
// an already split list (SynonymList) or as raw text (SynonymText) holding a
// JSON array or a ';'-delimited string. SynonymList wins when both are set.
type GeneRecord struct {
	Symbol      string   `json:"symbol"`
	SynonymText *string  `json:"synonym_text,omitempty"`
	SynonymList []string `json:"synonym_list,omitempty"`
}

// AtlasAssociation is one EWAS Atlas probe-trait association. ReportedGenes is
// the ';'-delimited gene list the atlas reports for the probe.
type AtlasAssociation struct {
	ProbeID           string   `json:"probe_id"`
	ReportedGenes     *string  `json:"reported_genes,omitempty"`
	Trait             string   `json:"trait"`
	Rank              *float64 `json:"rank,omitempty"`
	TotalAssociations *float64 `json:"total_associations,omitempty"`
	Correlation       string   `json:"correlation,omitempty"`
	PMID              *string  `json:"pmid,omitempty"`
}

// ReportedGenes is a (probe, reported gene string) pair fed to gap analysis.
type ReportedGenes struct {
	ProbeID string
	Genes   *string
}

// ReportedGenesOf projects atlas rows onto the pairs consumed by gap analysis.
func ReportedGenesOf(rows []AtlasAssociation) []ReportedGenes {
	out := make([]ReportedGenes, 0, len(rows))
	for _, row := range rows {
		out = append(out, ReportedGenes{ProbeID: row.ProbeID, Genes: row.ReportedGenes})
	}
	return out
}

// Polarity is the direction of a gene-disease association. The zero value means absent.
type Polarity string

// Recognised polarity values.
const (
	PolarityAbsent   Polarity = ""
	PolarityPositive Polarity = "Positive"
	PolarityNegative Polarity = "Negative"
)

// DiseaseEvidenceRecord is one DisGeNET gene-evidence-association row.
type DiseaseEvidenceRecord struct {
	GeneSymbol      string   `json:"gene_symbol"`
	DiseaseName     string   `json:"disease_name"`
	DiseaseClass    string   `json:"disease_class,omitempty"`
	Score           float64  `json:"score"`
	Polarity        Polarity `json:"polarity,omitempty"`
	PublicationYear *int     `json:"publication_year,omitempty"`
	ReferenceType   string   `json:"reference_type"`
	Reference       *string  `json:"reference,omitempty"`
	Source          string   `json:"source"`
	AssociationType string   `json:"association_type"`
}

// UnmappedClassification holds the genuinely unmapped tokens reported for a probe.
type UnmappedClassification struct {
	Established   []string `json:"established,omitempty"`
	Unestablished []string `json:"unestablished,omitempty"`
}

// Optional returns a pointer to s, or nil when s is empty.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to value, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
