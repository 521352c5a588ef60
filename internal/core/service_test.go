package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cpgcore/internal/runlog"
	"cpgcore/internal/tables"
	"cpgcore/pkg/domain"
)

func str(s string) *string { return &s }

func num(v float64) *float64 { return &v }

func year(v int) *int { return &v }

func fixtureInputs() Inputs {
	start := int64(100)
	return Inputs{
		Mappings: []domain.MappingRecord{
			{ProbeID: "cg1", Chromosome: "1", Start: &start, RawGenes: str("GENE1,GENE1")},
			{ProbeID: "cg2", Chromosome: "2", RawGenes: str("ALIAS1")},
			{ProbeID: "cg3", Chromosome: "3"},
			{ProbeID: "cg4", Chromosome: "4", RawGenes: str("MYSTERY")},
		},
		Genes: []domain.GeneRecord{
			{Symbol: "GENE1", SynonymList: []string{"ALIAS1"}},
			{Symbol: "GENE2", SynonymText: str(`["G2A"`)},
			{Symbol: "GENE3", SynonymText: str("SHARED;G3X")},
			{Symbol: "GENE4", SynonymText: str(`["SHARED"]`)},
		},
		Atlas: []domain.AtlasAssociation{
			{ProbeID: "cg1", ReportedGenes: str("NEWGENE;GENE1;LOC1.2"), Trait: "BMI", Rank: num(10), TotalAssociations: num(100), Correlation: "pos", PMID: str("123")},
			{ProbeID: "cg1", ReportedGenes: str("NEWGENE;GENE1;LOC1.2"), Trait: "Obesity", TotalAssociations: num(100), Correlation: "neg", PMID: str("456")},
			{ProbeID: "cg2", ReportedGenes: str("ALIAS1"), Trait: "Height", Rank: num(5), TotalAssociations: num(0)},
		},
		Disease: []domain.DiseaseEvidenceRecord{
			{GeneSymbol: "GENE1", DiseaseName: "Schizophrenia", DiseaseClass: "Mental or Behavioral Dysfunction (T048)", Score: 0.5, Polarity: domain.PolarityNegative, PublicationYear: year(2005), ReferenceType: "PMID", Reference: str("222"), Source: "CURATED", AssociationType: "Biomarker"},
			{GeneSymbol: "GENE1", DiseaseName: "Schizophrenia", DiseaseClass: "Mental or Behavioral Dysfunction (T048)", Score: 0.6, Polarity: domain.PolarityPositive, PublicationYear: year(2010), ReferenceType: "PMID", Reference: str("111"), Source: "CURATED", AssociationType: "Biomarker"},
			{GeneSymbol: "GENE1", DiseaseName: "Asthma", DiseaseClass: "Disease or Syndrome (T047)", Score: 0.3, ReferenceType: "PMID", Reference: str("333"), Source: "CURATED", AssociationType: "GeneticVariation"},
		},
	}
}

func TestRunAnnotatesEveryExpandedRow(t *testing.T) {
	svc := NewService()
	res, err := svc.Run(context.Background(), fixtureInputs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RunID == "" {
		t.Fatalf("expected a run id")
	}

	type view struct {
		Probe, Gene, Canonical, SynonymOf string
		Resolution                        Resolution
		Traits, Established, Unestablished *string
		Diseases, PsychDiseases            *string
	}
	var got []view
	for _, r := range res.Rows {
		got = append(got, view{r.ProbeID, r.GeneSymbol, r.CanonicalSymbol, r.SynonymOf, r.Resolution,
			r.Traits, r.UnmappedEstablished, r.UnmappedUnestablished, r.Diseases, r.PsychDiseases})
	}
	cg1Traits := str("BMI, 0.100, hyper, 123;\nObesity, 0.000, hypo, 456")
	broad := str("Schizophrenia, error;\nAsthma, 0.3")
	psych := str("Schizophrenia, error")
	want := []view{
		{"cg1", "GENE1", "GENE1", "", ResolvedCanonical, cg1Traits, str("NEWGENE"), str("LOC1.2"), broad, psych},
		{"cg1", "GENE1", "GENE1", "", ResolvedCanonical, cg1Traits, str("NEWGENE"), str("LOC1.2"), broad, psych},
		{"cg2", "ALIAS1", "GENE1", "GENE1", ResolvedSynonym, str("Height, 0.000, NR, NA"), nil, nil, broad, psych},
		{"cg3", "unmapped", "", "", ResolvedUnmapped, nil, nil, nil, nil, nil},
		{"cg4", "MYSTERY", "", "", Unresolved, nil, nil, nil, nil, nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	evidence := *res.Rows[0].Evidence
	pos := strings.Index(evidence, "Schizophrenia, Positive, 2010, 111")
	neg := strings.Index(evidence, "Schizophrenia, Negative, 2005, 222")
	if pos < 0 || neg < 0 || pos > neg {
		t.Fatalf("expected both conflicting records, positive first:\n%s", evidence)
	}
	if res.Rows[0].Start == nil || *res.Rows[0].Start != 100 || res.Rows[1].Start == nil || *res.Rows[1].Start != *res.Rows[0].Start {
		t.Fatalf("coordinates not replicated: %+v", res.Rows[:2])
	}
}

func TestRunGapLedgerAndCounts(t *testing.T) {
	res, err := NewService().Run(context.Background(), fixtureInputs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var alias, newgene bool
	for _, row := range res.Gap.Ledger {
		switch row.Token {
		case "ALIAS1":
			alias = row.SynonymOf == "GENE1" && row.ProbeID == "cg2" && row.MappedGenes == "ALIAS1"
		case "NEWGENE":
			newgene = row.SynonymOf == "" && row.MappedGenes == "GENE1,GENE1"
		case "LOC1.2":
			t.Fatalf("decimal token must not reach the ledger")
		}
	}
	if !alias || !newgene {
		t.Fatalf("unexpected ledger %+v", res.Gap.Ledger)
	}
	if len(res.Gap.Appendix) != 1 || res.Gap.Appendix[0].Token != "LOC1.2" {
		t.Fatalf("unexpected appendix %+v", res.Gap.Appendix)
	}

	want := Counts{
		MappingRecords:     4,
		ExpandedRows:       5,
		UnmappedRows:       1,
		CanonicalSymbols:   4,
		Synonyms:           3,
		SynonymParseErrors: 1,
		SynonymConflicts:   1,
		ResolvedRows:       3,
		UnmappedProbes:     1,
		LedgerRows:         2,
		AppendixRows:       1,
		TraitProbes:        2,
		DiseaseGenes:       1,
		PsychDiseaseGenes:  1,
		HeatmapGenes:       1,
		HeatmapDiseases:    1,
	}
	if diff := cmp.Diff(want, res.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if v, ok := res.Heatmap.Value("GENE1", "Asthma"); !ok || v != 0.3 {
		t.Fatalf("unexpected heatmap %+v", res.Heatmap)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Winner != "GENE4" {
		t.Fatalf("unexpected conflicts %+v", res.Conflicts)
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	first, err := NewService().Run(context.Background(), fixtureInputs())
	if err != nil {
		t.Fatalf("sequential run: %v", err)
	}
	second, err := NewService(WithWorkers(4)).Run(context.Background(), fixtureInputs())
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}
	if diff := cmp.Diff(first.Rows, second.Rows); diff != "" {
		t.Fatalf("row output depends on workers (-seq +par):\n%s", diff)
	}
}

func TestRunLogsMalformedSynonymsAndConflicts(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	if _, err := NewService(WithLogger(zap.New(core))).Run(context.Background(), fixtureInputs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	malformed := logs.FilterMessage("skipping malformed synonyms").All()
	if len(malformed) != 1 || malformed[0].ContextMap()["symbol"] != "GENE2" {
		t.Fatalf("expected one malformed synonym warning, got %+v", malformed)
	}
	if logs.FilterMessage("synonym claimed by several symbols").Len() != 1 {
		t.Fatalf("expected conflict warning")
	}
	if logs.FilterMessage("stage finished").Len() != 5 {
		t.Fatalf("expected five stage debug entries, got %d", logs.FilterMessage("stage finished").Len())
	}
}

func TestRunRecordsLedgerEntry(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := runlog.NewMemoryStore()
	svc := NewService(WithRunStore(store), WithClock(ClockFunc(func() time.Time { return fixed })), WithWorkers(2))
	res, err := svc.Run(context.Background(), fixtureInputs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := svc.RecordArtifacts(context.Background(), res.RunID, []string{"runs/" + res.RunID + "/annotations.csv"}); err != nil {
		t.Fatalf("record artifacts: %v", err)
	}
	rec, err := svc.Runs().Get(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if rec.Status != runlog.StatusSucceeded || !rec.StartedAt.Equal(fixed) || rec.CompletedAt == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Counts["expanded_rows"] != 5 || rec.Settings["workers"] != "2" {
		t.Fatalf("unexpected counts/settings %+v %+v", rec.Counts, rec.Settings)
	}
	if len(rec.Conflicts) != 1 || rec.Conflicts[0].Synonym != "SHARED" {
		t.Fatalf("unexpected conflicts %+v", rec.Conflicts)
	}
	if len(rec.Artifacts) != 1 {
		t.Fatalf("expected artifact key, got %+v", rec.Artifacts)
	}
	if err := svc.RecordArtifacts(context.Background(), "missing", nil); !errors.Is(err, runlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunCancelledContextMarksRunFailed(t *testing.T) {
	store := runlog.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	svc := NewService(WithRunStore(store))
	cancel()
	res, err := svc.Run(ctx, fixtureInputs())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	rec, getErr := store.Get(context.Background(), res.RunID)
	if getErr != nil {
		t.Fatalf("get run: %v", getErr)
	}
	if rec.Status != runlog.StatusFailed || rec.Error == "" {
		t.Fatalf("expected failed record, got %+v", rec)
	}
}

func TestRunFilteredModeFallsBackWithoutClasses(t *testing.T) {
	in := fixtureInputs()
	for i := range in.Disease {
		in.Disease[i].DiseaseClass = ""
	}
	res, err := NewService().Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.FallbackUsed {
		t.Fatalf("expected fallback")
	}
	row := res.Rows[0]
	if row.PsychDiseases == nil || *row.PsychDiseases != *row.Diseases {
		t.Fatalf("filtered column should mirror broad column, got %v vs %v", row.PsychDiseases, row.Diseases)
	}
}

func TestRunWithCustomFilterClassAndPolicy(t *testing.T) {
	res, err := NewService(
		WithFilterClass("Disease or Syndrome (T047)"),
		WithTokenPolicy(func(string) bool { return false }),
		WithSuggestions(false),
	).Run(context.Background(), fixtureInputs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Rows[0].PsychDiseases; got == nil || *got != "Asthma, 0.3" {
		t.Fatalf("unexpected filtered diseases %v", got)
	}
	if got := res.Rows[0].UnmappedEstablished; got == nil || *got != "LOC1.2;\nNEWGENE" {
		t.Fatalf("policy not applied, got %v", got)
	}
	if res.Rows[0].UnmappedUnestablished != nil || len(res.Gap.Appendix) != 0 {
		t.Fatalf("expected no unestablished tokens")
	}
}

func TestRunCatalogJoin(t *testing.T) {
	results, err := tables.Read(strings.NewReader("CpG\tStudyID\tBeta\ncg1\tS1\t0.2\ncg9\tS1\t0.4\ncg4\tS2\t0.1\n"), '\t')
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	studies, err := tables.Read(strings.NewReader("StudyID\tTrait\nS1\tBMI\n"), '\t')
	if err != nil {
		t.Fatalf("read studies: %v", err)
	}
	in := fixtureInputs()
	in.Catalog = &CatalogInputs{Results: results, Studies: studies}
	res, err := NewService().Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Catalog == nil || len(res.Catalog.Matches) != 2 || res.Counts.CatalogMatches != 2 {
		t.Fatalf("expected matches for mapping probes only, got %+v", res.Catalog)
	}
	if res.Catalog.Matches[0].Values["Trait"] != "BMI" || res.Catalog.MissingStudies != 1 {
		t.Fatalf("unexpected join %+v", res.Catalog)
	}
}

func TestDiseaseKey(t *testing.T) {
	cases := []struct {
		row  AnnotatedRow
		want string
	}{
		{AnnotatedRow{GeneSymbol: "A", CanonicalSymbol: "A", Resolution: ResolvedCanonical}, "A"},
		{AnnotatedRow{GeneSymbol: "B1", CanonicalSymbol: "B", Resolution: ResolvedSynonym}, "B"},
		{AnnotatedRow{GeneSymbol: "C", Resolution: Unresolved}, "C"},
		{AnnotatedRow{GeneSymbol: "unmapped", Resolution: ResolvedUnmapped}, ""},
	}
	for _, tc := range cases {
		if got := tc.row.DiseaseKey(); got != tc.want {
			t.Fatalf("DiseaseKey(%+v) = %q, want %q", tc.row, got, tc.want)
		}
	}
}
