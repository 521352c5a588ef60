package synonym

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cpgcore/pkg/domain"
)

func strPtr(s string) *string { return &s }

func TestParseFormats(t *testing.T) {
	cases := []struct {
		name string
		rec  domain.GeneRecord
		want []string
	}{
		{"json array", domain.GeneRecord{Symbol: "G", SynonymText: strPtr(`["ALIAS1", "ALIAS2"]`)}, []string{"ALIAS1", "ALIAS2"}},
		{"json with nulls", domain.GeneRecord{Symbol: "G", SynonymText: strPtr(`["A", null, " ", 7]`)}, []string{"A", "7"}},
		{"semicolon text", domain.GeneRecord{Symbol: "G", SynonymText: strPtr("A; B ;;C")}, []string{"A", "B", "C"}},
		{"single token", domain.GeneRecord{Symbol: "G", SynonymText: strPtr("ONLY")}, []string{"ONLY"}},
		{"sequence", domain.GeneRecord{Symbol: "G", SynonymList: []string{" X ", "", "Y"}}, []string{"X", "Y"}},
		{"sequence wins over text", domain.GeneRecord{Symbol: "G", SynonymList: []string{"L"}, SynonymText: strPtr("T")}, []string{"L"}},
		{"missing", domain.GeneRecord{Symbol: "G"}, nil},
		{"blank", domain.GeneRecord{Symbol: "G", SynonymText: strPtr("  ")}, nil},
		{"empty array", domain.GeneRecord{Symbol: "G", SynonymText: strPtr("[]")}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.rec)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("synonyms mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse(domain.GeneRecord{Symbol: "GENE9", SynonymText: strPtr(`["A", `)})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	var perr ParseError
	if !errors.As(err, &perr) || perr.Symbol != "GENE9" {
		t.Fatalf("expected ParseError for GENE9, got %#v", err)
	}
}

func TestBuildSwallowsMalformedRecords(t *testing.T) {
	idx, failures := Build([]domain.GeneRecord{
		{Symbol: "GENE1", SynonymText: strPtr(`["ALIAS1", "ALIAS2"]`)},
		{Symbol: "GENE2", SynonymText: strPtr(`[broken`)},
		{Symbol: "GENE3", SynonymText: strPtr("ALIAS3")},
		{Symbol: "", SynonymText: strPtr("ORPHAN")},
	})
	if len(failures) != 1 || failures[0].Symbol != "GENE2" {
		t.Fatalf("expected one failure for GENE2, got %+v", failures)
	}
	if !idx.Symbols().Contains("GENE2") {
		t.Fatalf("malformed record must still contribute its symbol")
	}
	if idx.Symbols().Contains("") {
		t.Fatalf("empty symbol must be skipped")
	}
	if _, ok := idx.Lookup("ORPHAN"); ok {
		t.Fatalf("synonym of a record without symbol must be skipped")
	}
	for syn, want := range map[string]string{"ALIAS1": "GENE1", "ALIAS2": "GENE1", "ALIAS3": "GENE3"} {
		if got, ok := idx.Lookup(syn); !ok || got != want {
			t.Fatalf("lookup %s = %q,%v want %s", syn, got, ok, want)
		}
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 synonyms, got %d", idx.Len())
	}
}

func TestBuildReportsConflictsLastWriteWins(t *testing.T) {
	idx, _ := Build([]domain.GeneRecord{
		{Symbol: "GENE1", SynonymList: []string{"SHARED", "OWN1"}},
		{Symbol: "GENE2", SynonymList: []string{"SHARED"}},
		{Symbol: "GENE2", SynonymList: []string{"SHARED"}},
	})
	if owner, _ := idx.Lookup("SHARED"); owner != "GENE2" {
		t.Fatalf("expected last claimant to win, got %s", owner)
	}
	want := []Conflict{{Synonym: "SHARED", Previous: "GENE1", Winner: "GENE2"}}
	if diff := cmp.Diff(want, idx.Conflicts()); diff != "" {
		t.Fatalf("conflicts mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve(t *testing.T) {
	idx, _ := Build([]domain.GeneRecord{{Symbol: "GENE1", SynonymList: []string{"ALIAS1"}}})
	cases := []struct {
		token, canonical, synonymOf string
		ok                          bool
	}{
		{"GENE1", "GENE1", "", true},
		{"ALIAS1", "GENE1", "GENE1", true},
		{"NEWGENE", "", "", false},
	}
	for _, tc := range cases {
		canonical, synonymOf, ok := idx.Resolve(tc.token)
		if canonical != tc.canonical || synonymOf != tc.synonymOf || ok != tc.ok {
			t.Fatalf("resolve %s = (%q,%q,%v)", tc.token, canonical, synonymOf, ok)
		}
	}
}

func TestSuggest(t *testing.T) {
	idx, _ := Build([]domain.GeneRecord{{Symbol: "NTM"}, {Symbol: "BDNF"}, {Symbol: "BDNF2"}, {Symbol: "SLC6A4"}})
	cases := map[string]string{
		"bdnf":    "BDNF",
		"SLC6A4X": "SLC6A4",
		"ZZZZZZ":  "",
		"":        "",
	}
	for token, want := range cases {
		if got := idx.Suggest(token); got != want {
			t.Fatalf("suggest %q = %q want %q", token, got, want)
		}
	}
}

func TestSymbolsSorted(t *testing.T) {
	symbols := NewSymbols([]domain.GeneRecord{{Symbol: "B"}, {Symbol: " A "}, {Symbol: "B"}})
	if diff := cmp.Diff([]string{"A", "B"}, symbols.Sorted()); diff != "" {
		t.Fatalf("sorted mismatch (-want +got):\n%s", diff)
	}
	if symbols.Len() != 2 {
		t.Fatalf("expected 2 symbols, got %d", symbols.Len())
	}
}
