// Package export materializes pipeline results as CSV, JSON or HTML artifacts
// and stores them in a blob store through an asynchronous worker.
package export

import (
	"strconv"

	"cpgcore/internal/catalog"
	"cpgcore/internal/core"
	"cpgcore/internal/disease"
	"cpgcore/internal/traits"
	"cpgcore/pkg/domain"
)

// Table names, also used as artifact file stems.
const (
	TableAnnotations = "annotations"
	TableUnmapped    = "unmapped_genes"
	TableUnaccounted = "unaccounted_genes"
	TableAppendix    = "appendix_unestablished"
	TableExpanded    = "expanded_mappings"
	TableHeatmap     = "disease_heatmap"
	TableCatalog     = "catalog_matches"
)

// Table is a rectangular result set. A nil cell is a missing value.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]*string
}

// Tables lays out every table a run produced, in a stable order. The heatmap
// and catalog tables are omitted when empty or absent.
func Tables(res core.Result) []Table {
	out := []Table{
		annotations(res.Rows),
		unmapped(res),
		unaccounted(res),
		appendix(res),
		expanded(res.Expanded),
	}
	if !res.Heatmap.Empty() {
		out = append(out, fromRecords(TableHeatmap, res.Heatmap.Records()))
	}
	if res.Catalog != nil {
		out = append(out, CatalogTable(*res.Catalog))
	}
	return out
}

// Select keeps the tables whose names are listed; an empty list keeps all.
func Select(all []Table, names []string) []Table {
	if len(names) == 0 {
		return all
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []Table
	for _, t := range all {
		if _, ok := want[t.Name]; ok {
			out = append(out, t)
		}
	}
	return out
}

func annotations(rows []core.AnnotatedRow) Table {
	diseases, evidence := disease.Broad.Columns()
	psychDiseases, psychEvidence := disease.Filtered.Columns()
	t := Table{
		Name: TableAnnotations,
		Columns: []string{
			"cpg", "chr", "start", "end", "gene_symbol", "canonical_symbol", "synonym_of", "resolution",
			traits.ColumnName, "unmapped_established", "unmapped_unestablished",
			diseases, evidence, psychDiseases, psychEvidence,
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []*string{
			cell(r.ProbeID), cell(r.Chromosome), integer(r.Start), integer(r.End),
			cell(r.GeneSymbol), domain.Optional(r.CanonicalSymbol), domain.Optional(r.SynonymOf), cell(string(r.Resolution)),
			r.Traits, r.UnmappedEstablished, r.UnmappedUnestablished,
			r.Diseases, r.Evidence, r.PsychDiseases, r.PsychEvidence,
		})
	}
	return t
}

func unmapped(res core.Result) Table {
	t := Table{Name: TableUnmapped, Columns: []string{"cpg", "unmapped_established", "unmapped_unestablished"}}
	for _, probe := range res.Gap.Probes() {
		t.Rows = append(t.Rows, []*string{cell(probe), res.Gap.Established(probe), res.Gap.Unestablished(probe)})
	}
	return t
}

func unaccounted(res core.Result) Table {
	t := Table{Name: TableUnaccounted, Columns: []string{"cpg", "reported_genes", "uncaptured_gene", "synonym_of", "mapped_genes", "closest_symbol"}}
	for _, row := range res.Gap.Ledger {
		t.Rows = append(t.Rows, []*string{
			cell(row.ProbeID), cell(row.ReportedGenes), cell(row.Token),
			cell(row.SynonymOf), cell(row.MappedGenes), cell(row.Suggestion),
		})
	}
	return t
}

func appendix(res core.Result) Table {
	t := Table{Name: TableAppendix, Columns: []string{"cpg", "gene"}}
	for _, row := range res.Gap.Appendix {
		t.Rows = append(t.Rows, []*string{cell(row.ProbeID), cell(row.Token)})
	}
	return t
}

func expanded(rows []domain.GeneMapping) Table {
	t := Table{Name: TableExpanded, Columns: []string{"cpg", "chr", "start", "end", "gene_symbol"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []*string{cell(r.ProbeID), cell(r.Chromosome), integer(r.Start), integer(r.End), cell(r.GeneSymbol)})
	}
	return t
}

// CatalogTable lays out an EWAS Catalog join.
func CatalogTable(res catalog.Result) Table {
	return fromRecords(TableCatalog, res.Records())
}

func fromRecords(name string, records [][]string) Table {
	t := Table{Name: name}
	if len(records) == 0 {
		return t
	}
	t.Columns = records[0]
	for _, rec := range records[1:] {
		row := make([]*string, len(rec))
		for i := range rec {
			row[i] = cell(rec[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// cell keeps empty strings as present values; ledger columns such as
// synonym_of are empty by definition, not missing.
func cell(s string) *string { return &s }

func integer(v *int64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatInt(*v, 10)
	return &s
}
