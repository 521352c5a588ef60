package disease

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cpgcore/pkg/domain"
)

func year(v int) *int { return &v }

func ref(v string) *string { return &v }

func fixture() []domain.DiseaseEvidenceRecord {
	return []domain.DiseaseEvidenceRecord{
		{GeneSymbol: "GENE1", DiseaseName: "Disease A", DiseaseClass: "Class 1", Score: 0.5, Polarity: domain.PolarityPositive, PublicationYear: year(2020), ReferenceType: "PMID", Reference: ref("123"), Source: "S1", AssociationType: "T1"},
		{GeneSymbol: "GENE1", DiseaseName: "Mental Disorder B", DiseaseClass: DefaultFilterClass, Score: 0.7, Polarity: domain.PolarityPositive, PublicationYear: year(2021), ReferenceType: "PMID", Reference: ref("456"), Source: "S2", AssociationType: "T2"},
		{GeneSymbol: "GENE2", DiseaseName: "Disease C", DiseaseClass: "Class 2", Score: 0.3, Polarity: domain.PolarityPositive, PublicationYear: year(2019), ReferenceType: "PMID", Reference: ref("789"), Source: "S3", AssociationType: "T3"},
	}
}

func TestBroadMode(t *testing.T) {
	agg := NewAggregator(fixture())
	got := agg.Annotate("GENE1", Broad)
	want := Annotation{
		Diseases: ref("Mental Disorder B, 0.7;\nDisease A, 0.5"),
		Evidence: ref("Mental Disorder B, Positive, 2021, 456;\nDisease A, Positive, 2020, 123"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("annotation mismatch (-want +got):\n%s", diff)
	}
	if g2 := agg.Annotate("GENE2", Broad); g2.Diseases == nil || *g2.Diseases != "Disease C, 0.3" {
		t.Fatalf("unexpected GENE2 summary %v", g2.Diseases)
	}
}

func TestFilteredMode(t *testing.T) {
	agg := NewAggregator(fixture())
	if agg.FallbackUsed() {
		t.Fatalf("fallback must not trigger when classes are present")
	}
	got := agg.Annotate("GENE1", Filtered)
	if got.Diseases == nil || *got.Diseases != "Mental Disorder B, 0.7" {
		t.Fatalf("filtered summary = %v", got.Diseases)
	}
	if none := agg.Annotate("GENE2", Filtered); none.Diseases != nil || none.Evidence != nil {
		t.Fatalf("expected nil columns for a gene without filtered evidence, got %+v", none)
	}
}

func TestFilteredFallbackWithoutClasses(t *testing.T) {
	records := fixture()
	for i := range records {
		records[i].DiseaseClass = ""
	}
	agg := NewAggregator(records)
	if !agg.FallbackUsed() {
		t.Fatalf("expected fallback when no record is classified")
	}
	if got := agg.Annotate("GENE1", Filtered); got.Diseases == nil || !strings.Contains(*got.Diseases, "Disease A, 0.5") {
		t.Fatalf("fallback should use every record, got %v", got.Diseases)
	}
}

func TestWithFilterClass(t *testing.T) {
	agg := NewAggregator(fixture(), WithFilterClass(" Class 2 "))
	if agg.FilterClass() != "Class 2" {
		t.Fatalf("filter class not trimmed: %q", agg.FilterClass())
	}
	if agg.Genes(Filtered) != 1 || agg.Genes(Broad) != 2 {
		t.Fatalf("unexpected gene counts filtered=%d broad=%d", agg.Genes(Filtered), agg.Genes(Broad))
	}
}

func TestScoreConflictKeepsEveryRecord(t *testing.T) {
	agg := NewAggregator([]domain.DiseaseEvidenceRecord{
		{GeneSymbol: "GENE1", DiseaseName: "D1", Score: 0.5, Polarity: domain.PolarityNegative, PublicationYear: year(2020), ReferenceType: "PMID", Reference: ref("123")},
		{GeneSymbol: "GENE1", DiseaseName: "D1", Score: 0.6, Polarity: domain.PolarityPositive, PublicationYear: year(2021), ReferenceType: "PMID", Reference: ref("456")},
		{GeneSymbol: "GENE1", DiseaseName: "D2", Score: 0.55, ReferenceType: "Other", Source: "S1", AssociationType: "T1"},
	})
	got := agg.Annotate("GENE1", Broad)
	if diff := cmp.Diff("D1, error;\nD2, 0.55", *got.Diseases); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	wantEvidence := "D1, Positive, 2021, 456;\nD1, Negative, 2020, 123;\nD2, NAPolarity, NA, NA (S1, T1)"
	if diff := cmp.Diff(wantEvidence, *got.Evidence); diff != "" {
		t.Fatalf("evidence mismatch (-want +got):\n%s", diff)
	}
}

func TestAbsentGeneIsNil(t *testing.T) {
	agg := NewAggregator(fixture())
	got := agg.Annotate("GENE_NOT_FOUND", Broad)
	if got.Diseases != nil || got.Evidence != nil {
		t.Fatalf("expected nil columns, got %+v", got)
	}
}

func TestDeterminism(t *testing.T) {
	first := NewAggregator(fixture()).Annotate("GENE1", Broad)
	for i := 0; i < 10; i++ {
		again := NewAggregator(fixture()).Annotate("GENE1", Broad)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestModeColumns(t *testing.T) {
	d, e := Broad.Columns()
	if d != "disgenet_diseases" || e != "disgenet_evidence" {
		t.Fatalf("broad columns = %s, %s", d, e)
	}
	d, e = Filtered.Columns()
	if d != "disgenet_psych_diseases" || e != "disgenet_psych_evidence" {
		t.Fatalf("filtered columns = %s, %s", d, e)
	}
}
