package gap

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cpgcore/internal/mapping"
	"cpgcore/internal/synonym"
	"cpgcore/pkg/domain"
)

func strPtr(s string) *string { return &s }

func fixture(t *testing.T, genes []domain.GeneRecord, mappings []domain.MappingRecord, opts ...Option) *Analyzer {
	t.Helper()
	idx, failures := synonym.Build(genes)
	if len(failures) != 0 {
		t.Fatalf("unexpected synonym failures: %+v", failures)
	}
	return NewAnalyzer(idx, mapping.RawFields(mappings), opts...)
}

func reports(pairs ...[2]string) []domain.ReportedGenes {
	out := make([]domain.ReportedGenes, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.ReportedGenes{ProbeID: p[0], Genes: strPtr(p[1])})
	}
	return out
}

func TestAnalyzeClassifiesTokens(t *testing.T) {
	analyzer := fixture(t,
		[]domain.GeneRecord{
			{Symbol: "GENE1", SynonymText: strPtr(`["ALIAS1", "ALIAS2"]`)},
			{Symbol: "GENE2"},
		},
		[]domain.MappingRecord{
			{ProbeID: "cg1", RawGenes: strPtr("GENE1")},
			{ProbeID: "cg2", RawGenes: strPtr("ALIAS1")},
		},
	)
	report := analyzer.Analyze(reports(
		[2]string{"cg1", "GENE1;NEWGENE"},
		[2]string{"cg1", "GENE1;NEWGENE"},
		[2]string{"cg2", "ALIAS1;DECIMAL.1;ANOTHER"},
		[2]string{"cg2", "ALIAS1;DECIMAL.1;ANOTHER"},
		[2]string{"cg2", "ALIAS1;DECIMAL.1;ANOTHER"},
	))

	if got := domain.Deref(report.Established("cg1")); got != "NEWGENE" {
		t.Fatalf("cg1 established = %q", got)
	}
	if got := domain.Deref(report.Established("cg2")); got != "ANOTHER" {
		t.Fatalf("cg2 established = %q", got)
	}
	if got := domain.Deref(report.Unestablished("cg2")); got != "DECIMAL.1" {
		t.Fatalf("cg2 unestablished = %q", got)
	}
	if report.Unestablished("cg1") != nil {
		t.Fatalf("cg1 must have no unestablished entry")
	}

	wantLedger := []LedgerRow{
		{ProbeID: "cg1", ReportedGenes: "GENE1;NEWGENE", Token: "NEWGENE", MappedGenes: "GENE1"},
		{ProbeID: "cg2", ReportedGenes: "ALIAS1;DECIMAL.1;ANOTHER", Token: "ALIAS1", SynonymOf: "GENE1", MappedGenes: "ALIAS1"},
		{ProbeID: "cg2", ReportedGenes: "ALIAS1;DECIMAL.1;ANOTHER", Token: "ANOTHER", MappedGenes: "ALIAS1"},
	}
	if diff := cmp.Diff(wantLedger, report.Ledger); diff != "" {
		t.Fatalf("ledger mismatch (-want +got):\n%s", diff)
	}
	wantAppendix := []AppendixRow{{ProbeID: "cg2", Token: "DECIMAL.1"}}
	if diff := cmp.Diff(wantAppendix, report.Appendix); diff != "" {
		t.Fatalf("appendix mismatch (-want +got):\n%s", diff)
	}
}

func TestAliasOnlyProbeHasNoUnmappedEntry(t *testing.T) {
	analyzer := fixture(t,
		[]domain.GeneRecord{{Symbol: "GENE1", SynonymList: []string{"ALIAS1"}}},
		nil,
	)
	report := analyzer.Analyze(reports([2]string{"cg2", "ALIAS1"}, [2]string{"cg1", "NEWGENE"}))

	if _, ok := report.EstablishedByProbe()["cg2"]; ok {
		t.Fatalf("cg2 must not have an established entry")
	}
	if got := report.EstablishedByProbe()["cg1"]; got != "NEWGENE" {
		t.Fatalf("cg1 established = %q", got)
	}
	var aliasRow *LedgerRow
	for i := range report.Ledger {
		if report.Ledger[i].Token == "ALIAS1" {
			aliasRow = &report.Ledger[i]
		}
	}
	if aliasRow == nil || aliasRow.SynonymOf != "GENE1" {
		t.Fatalf("expected ledger row for ALIAS1 with synonym_of GENE1, got %+v", report.Ledger)
	}
}

func TestCanonicalTokensNeverUnmapped(t *testing.T) {
	analyzer := fixture(t, []domain.GeneRecord{{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C.1"}}, nil)
	report := analyzer.Analyze(reports([2]string{"cg1", "A; B ;C.1"}, [2]string{"cg2", "B"}))
	if len(report.Unmapped) != 0 {
		t.Fatalf("expected no unmapped entries, got %+v", report.Unmapped)
	}
	if len(report.Ledger) != 0 {
		t.Fatalf("expected empty ledger, got %+v", report.Ledger)
	}
	// Decimal tokens reach the appendix even when canonical.
	if diff := cmp.Diff([]AppendixRow{{ProbeID: "cg1", Token: "C.1"}}, report.Appendix); diff != "" {
		t.Fatalf("appendix mismatch (-want +got):\n%s", diff)
	}
}

func TestSortedJoinAndEmptyOmission(t *testing.T) {
	analyzer := fixture(t, nil, nil)
	report := analyzer.Analyze(reports([2]string{"cg1", "ZETA;ALPHA;MID;ALPHA"}, [2]string{"cg1", "BETA"}))
	if got := domain.Deref(report.Established("cg1")); got != "ALPHA;\nBETA;\nMID;\nZETA" {
		t.Fatalf("unexpected join %q", got)
	}
	if _, ok := report.UnestablishedByProbe()["cg1"]; ok {
		t.Fatalf("empty unestablished list must be omitted")
	}
	if diff := cmp.Diff([]string{"cg1"}, report.Probes()); diff != "" {
		t.Fatalf("probes mismatch (-want +got):\n%s", diff)
	}
}

func TestAbsentReportedStringsSkipped(t *testing.T) {
	analyzer := fixture(t, nil, nil)
	report := analyzer.Analyze([]domain.ReportedGenes{
		{ProbeID: "cg1"},
		{ProbeID: "cg2", Genes: strPtr("  ")},
		{ProbeID: "", Genes: strPtr("ORPHAN")},
	})
	if len(report.Unmapped) != 0 || len(report.Ledger) != 0 || len(report.Appendix) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestLedgerUsesNormalizedMappingField(t *testing.T) {
	analyzer := fixture(t, nil, []domain.MappingRecord{{ProbeID: "cg1", RawGenes: strPtr("unmapped")}})
	report := analyzer.Analyze(reports([2]string{"cg1", "X"}))
	if len(report.Ledger) != 1 || report.Ledger[0].MappedGenes != "" {
		t.Fatalf("expected empty mapped genes, got %+v", report.Ledger)
	}
}

func TestCustomPolicyAndSuggestions(t *testing.T) {
	analyzer := fixture(t, []domain.GeneRecord{{Symbol: "BDNF"}}, nil,
		WithPolicy(func(token string) bool { return strings.HasPrefix(token, "LOC") }),
		WithSuggestions(true),
	)
	report := analyzer.Analyze(reports([2]string{"cg1", "LOC105;BDNF1;X.1"}))
	if got := domain.Deref(report.Unestablished("cg1")); got != "LOC105" {
		t.Fatalf("unestablished = %q", got)
	}
	if got := domain.Deref(report.Established("cg1")); got != "BDNF1;\nX.1" {
		t.Fatalf("established = %q", got)
	}
	if report.Ledger[0].Token != "BDNF1" || report.Ledger[0].Suggestion != "BDNF" {
		t.Fatalf("expected BDNF suggestion, got %+v", report.Ledger[0])
	}
}
