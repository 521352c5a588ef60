package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOptionalAndDeref(t *testing.T) {
	if Optional("") != nil {
		t.Fatalf("empty string should be missing")
	}
	if got := Deref(Optional("GENE1")); got != "GENE1" {
		t.Fatalf("Deref(Optional) = %q", got)
	}
	if got := Deref(nil); got != "" {
		t.Fatalf("Deref(nil) = %q", got)
	}
}

func TestUnmappedSentinel(t *testing.T) {
	if !(GeneMapping{GeneSymbol: UnmappedSymbol}).Unmapped() {
		t.Fatalf("sentinel row should report unmapped")
	}
	if (GeneMapping{GeneSymbol: "GENE1"}).Unmapped() {
		t.Fatalf("gene row should not report unmapped")
	}
}

func TestReportedGenesOf(t *testing.T) {
	genes := Optional("GENE1;GENE2")
	rows := []AtlasAssociation{
		{ProbeID: "cg1", ReportedGenes: genes, Trait: "BMI"},
		{ProbeID: "cg2", Trait: "Height"},
	}
	want := []ReportedGenes{{ProbeID: "cg1", Genes: genes}, {ProbeID: "cg2"}}
	if diff := cmp.Diff(want, ReportedGenesOf(rows)); diff != "" {
		t.Fatalf("ReportedGenesOf mismatch (-want +got):\n%s", diff)
	}
}
