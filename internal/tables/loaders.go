package tables

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"cpgcore/pkg/domain"
)

// Column names of the input tables as exported by upstream tooling.
const (
	ColProbe         = "cpg"
	ColChromosome    = "chr"
	ColMappedGenes   = "unique_gene_name"
	ColStart         = "Start_hg38"
	ColEnd           = "End_hg38"
	ColSymbol        = "symbol"
	ColSynonyms      = "synonyms"
	ColAtlasGenes    = "genes"
	ColTrait         = "trait"
	ColCorrelation   = "correlation"
	ColRank          = "rank"
	ColTotal         = "total_associations"
	ColPMID          = "pmid"
	ColGeneSymbol    = "gene_symbol"
	ColDiseaseName   = "disease_name"
	ColScore         = "score"
	ColPolarity      = "polarity"
	ColYear          = "pmYear"
	ColRefType       = "reference_type"
	ColReference     = "reference"
	ColSource        = "source"
	ColAssociation   = "associationType"
	ColDiseaseClass  = "diseaseClasses_UMLS_ST"
	CatalogProbe     = "CpG"
	CatalogStudyID   = "StudyID"
	tableMappings    = "mappings"
	tableGenes       = "genes"
	tableAtlas       = "atlas"
	tableDisease     = "disease"
	tableCatalogRes  = "catalog_results"
	tableCatalogStud = "catalog_studies"
)

// LoadMappings reads the comma-separated probe mapping table.
func LoadMappings(r io.Reader) ([]domain.MappingRecord, []RowIssue, error) {
	t, err := Read(r, ',')
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", tableMappings, err)
	}
	if err := t.Require(tableMappings, ColProbe, ColMappedGenes); err != nil {
		return nil, nil, err
	}
	p := &cellParser{table: tableMappings, t: t}
	out := make([]domain.MappingRecord, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, domain.MappingRecord{
			ProbeID:    t.Cell(i, ColProbe),
			Chromosome: t.Cell(i, ColChromosome),
			Start:      p.integer(i, ColStart),
			End:        p.integer(i, ColEnd),
			RawGenes:   t.Optional(i, ColMappedGenes),
		})
	}
	return out, p.issues, nil
}

// LoadGenes reads the reference gene table. The synonyms column is optional
// and kept as raw text for the synonym parser.
func LoadGenes(r io.Reader) ([]domain.GeneRecord, []RowIssue, error) {
	t, err := Read(r, ',')
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", tableGenes, err)
	}
	if err := t.Require(tableGenes, ColSymbol); err != nil {
		return nil, nil, err
	}
	out := make([]domain.GeneRecord, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, domain.GeneRecord{
			Symbol:      t.Cell(i, ColSymbol),
			SynonymText: t.Optional(i, ColSynonyms),
		})
	}
	return out, nil, nil
}

// LoadAtlas reads EWAS Atlas associations.
func LoadAtlas(r io.Reader) ([]domain.AtlasAssociation, []RowIssue, error) {
	t, err := Read(r, ',')
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", tableAtlas, err)
	}
	if err := t.Require(tableAtlas, ColProbe, ColTrait); err != nil {
		return nil, nil, err
	}
	p := &cellParser{table: tableAtlas, t: t}
	out := make([]domain.AtlasAssociation, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, domain.AtlasAssociation{
			ProbeID:           t.Cell(i, ColProbe),
			ReportedGenes:     t.Optional(i, ColAtlasGenes),
			Trait:             t.Cell(i, ColTrait),
			Rank:              p.float(i, ColRank),
			TotalAssociations: p.float(i, ColTotal),
			Correlation:       t.Cell(i, ColCorrelation),
			PMID:              t.Optional(i, ColPMID),
		})
	}
	return out, p.issues, nil
}

// LoadDisease reads a DisGeNET gene-evidence-association export. Rows whose
// score cannot be parsed are dropped and reported.
func LoadDisease(r io.Reader) ([]domain.DiseaseEvidenceRecord, []RowIssue, error) {
	t, err := Read(r, ',')
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", tableDisease, err)
	}
	if err := t.Require(tableDisease, ColGeneSymbol, ColDiseaseName, ColScore); err != nil {
		return nil, nil, err
	}
	p := &cellParser{table: tableDisease, t: t}
	out := make([]domain.DiseaseEvidenceRecord, 0, len(t.Rows))
	for i := range t.Rows {
		raw := t.Cell(i, ColScore)
		score, err := strconv.ParseFloat(raw, 64)
		if err == nil && math.IsNaN(score) {
			err = fmt.Errorf("score is NaN")
		}
		if err != nil {
			p.issue(i, ColScore, raw, true, err)
			continue
		}
		var year *int
		if y := p.integer(i, ColYear); y != nil {
			v := int(*y)
			year = &v
		}
		out = append(out, domain.DiseaseEvidenceRecord{
			GeneSymbol:      t.Cell(i, ColGeneSymbol),
			DiseaseName:     t.Cell(i, ColDiseaseName),
			DiseaseClass:    t.Cell(i, ColDiseaseClass),
			Score:           score,
			Polarity:        polarityOf(t.Cell(i, ColPolarity)),
			PublicationYear: year,
			ReferenceType:   t.Cell(i, ColRefType),
			Reference:       t.Optional(i, ColReference),
			Source:          missingAsEmpty(t.Cell(i, ColSource)),
			AssociationType: missingAsEmpty(t.Cell(i, ColAssociation)),
		})
	}
	return out, p.issues, nil
}

// LoadCatalogResults reads the tab-separated EWAS Catalog results export.
func LoadCatalogResults(r io.Reader) (Table, error) {
	t, err := Read(r, '\t')
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", tableCatalogRes, err)
	}
	if err := t.Require(tableCatalogRes, CatalogProbe, CatalogStudyID); err != nil {
		return Table{}, err
	}
	return t, nil
}

// LoadCatalogStudies reads the tab-separated EWAS Catalog studies export.
func LoadCatalogStudies(r io.Reader) (Table, error) {
	t, err := Read(r, '\t')
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", tableCatalogStud, err)
	}
	if err := t.Require(tableCatalogStud, CatalogStudyID); err != nil {
		return Table{}, err
	}
	return t, nil
}

// LoadProbeList reads one probe id per line, skipping blank lines.
func LoadProbeList(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var out []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read probe list: %w", err)
	}
	return out, nil
}

func polarityOf(raw string) domain.Polarity {
	if IsMissing(raw) {
		return domain.PolarityAbsent
	}
	return domain.Polarity(raw)
}

func missingAsEmpty(v string) string {
	if IsMissing(v) {
		return ""
	}
	return v
}
