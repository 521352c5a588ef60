// Package core runs the cpgcore annotation pipeline: it expands probe gene
// mappings, resolves genes through the synonym index, classifies the genes an
// atlas reports but the mapping misses, and attaches trait and disease
// aggregates to every expanded row.
package core

import (
	"time"

	"cpgcore/internal/catalog"
	"cpgcore/internal/gap"
	"cpgcore/internal/heatmap"
	"cpgcore/internal/synonym"
	"cpgcore/internal/tables"
	"cpgcore/pkg/domain"
)

// Resolution says how an expanded gene symbol was matched to the gene table.
type Resolution string

// Resolution values.
const (
	ResolvedCanonical Resolution = "canonical"
	ResolvedSynonym   Resolution = "synonym"
	Unresolved        Resolution = "unresolved"
	ResolvedUnmapped  Resolution = "unmapped"
)

// CatalogInputs are the EWAS Catalog tables and the probes to keep.
type CatalogInputs struct {
	Results tables.Table
	Studies tables.Table
	Targets []string
}

// Inputs are the materialized tables one run consumes.
type Inputs struct {
	Mappings []domain.MappingRecord
	Genes    []domain.GeneRecord
	Atlas    []domain.AtlasAssociation
	Disease  []domain.DiseaseEvidenceRecord
	// Catalog is optional; the join is skipped when nil.
	Catalog *CatalogInputs
}

// AnnotatedRow is one expanded mapping row with every aggregate column. Nil
// pointers are missing values.
type AnnotatedRow struct {
	ProbeID               string     `json:"cpg"`
	Chromosome            string     `json:"chr"`
	Start                 *int64     `json:"start"`
	End                   *int64     `json:"end"`
	GeneSymbol            string     `json:"gene_symbol"`
	CanonicalSymbol       string     `json:"canonical_symbol,omitempty"`
	SynonymOf             string     `json:"synonym_of,omitempty"`
	Resolution            Resolution `json:"resolution"`
	Traits                *string    `json:"ewas_atlas_traits"`
	UnmappedEstablished   *string    `json:"unmapped_established"`
	UnmappedUnestablished *string    `json:"unmapped_unestablished"`
	Diseases              *string    `json:"disgenet_diseases"`
	Evidence              *string    `json:"disgenet_evidence"`
	PsychDiseases         *string    `json:"disgenet_psych_diseases"`
	PsychEvidence         *string    `json:"disgenet_psych_evidence"`
}

// Counts are the per-stage sizes of a run.
type Counts struct {
	MappingRecords     int `json:"mapping_records"`
	ExpandedRows       int `json:"expanded_rows"`
	UnmappedRows       int `json:"unmapped_rows"`
	CanonicalSymbols   int `json:"canonical_symbols"`
	Synonyms           int `json:"synonyms"`
	SynonymParseErrors int `json:"synonym_parse_errors"`
	SynonymConflicts   int `json:"synonym_conflicts"`
	ResolvedRows       int `json:"resolved_rows"`
	UnmappedProbes     int `json:"unmapped_probes"`
	LedgerRows         int `json:"ledger_rows"`
	AppendixRows       int `json:"appendix_rows"`
	TraitProbes        int `json:"trait_probes"`
	DiseaseGenes       int `json:"disease_genes"`
	PsychDiseaseGenes  int `json:"psych_disease_genes"`
	HeatmapGenes       int `json:"heatmap_genes"`
	HeatmapDiseases    int `json:"heatmap_diseases"`
	CatalogMatches     int `json:"catalog_matches"`
}

// Map flattens the counts for the run ledger.
func (c Counts) Map() map[string]int {
	return map[string]int{
		"mapping_records":      c.MappingRecords,
		"expanded_rows":        c.ExpandedRows,
		"unmapped_rows":        c.UnmappedRows,
		"canonical_symbols":    c.CanonicalSymbols,
		"synonyms":             c.Synonyms,
		"synonym_parse_errors": c.SynonymParseErrors,
		"synonym_conflicts":    c.SynonymConflicts,
		"resolved_rows":        c.ResolvedRows,
		"unmapped_probes":      c.UnmappedProbes,
		"ledger_rows":          c.LedgerRows,
		"appendix_rows":        c.AppendixRows,
		"trait_probes":         c.TraitProbes,
		"disease_genes":        c.DiseaseGenes,
		"psych_disease_genes":  c.PsychDiseaseGenes,
		"heatmap_genes":        c.HeatmapGenes,
		"heatmap_diseases":     c.HeatmapDiseases,
		"catalog_matches":      c.CatalogMatches,
	}
}

// Result is everything one run produced.
type Result struct {
	RunID       string
	StartedAt   time.Time
	Rows        []AnnotatedRow
	Expanded    []domain.GeneMapping
	Gap         gap.Report
	Heatmap     heatmap.Matrix
	Catalog     *catalog.Result
	Conflicts   []synonym.Conflict
	ParseErrors []synonym.ParseError
	// FallbackUsed is set when filtered disease mode ran over every record
	// because none carried a classification.
	FallbackUsed bool
	Counts       Counts
}
