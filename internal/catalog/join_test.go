package catalog

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cpgcore/internal/tables"
)

func load(t *testing.T) (tables.Table, tables.Table) {
	t.Helper()
	results, err := tables.LoadCatalogResults(strings.NewReader(
		"CpG\tStudyID\tBeta\n" +
			"cg1\tS1\t0.1\n" +
			"cg2\tS2\t0.2\n" +
			"cg3\tS9\t0.3\n"))
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	studies, err := tables.LoadCatalogStudies(strings.NewReader(
		"StudyID\tAuthor\tTrait\n" +
			"S1\tSmith\tBMI\n" +
			"S2\tJones\tAge\n"))
	if err != nil {
		t.Fatalf("studies: %v", err)
	}
	return results, studies
}

func TestJoinMergesStudyColumns(t *testing.T) {
	results, studies := load(t)
	got := Join(results, studies, []string{"cg1", "cg3"})
	want := [][]string{
		{"CpG", "StudyID", "Beta", "Author", "Trait"},
		{"cg1", "S1", "0.1", "Smith", "BMI"},
		{"cg3", "S9", "0.3", "", ""},
	}
	if diff := cmp.Diff(want, got.Records()); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if got.MissingStudies != 1 {
		t.Fatalf("missing studies = %d want 1", got.MissingStudies)
	}
}

func TestJoinWithoutTargets(t *testing.T) {
	results, studies := load(t)
	got := Join(results, studies, nil)
	if len(got.Matches) != 0 || len(got.Records()) != 1 {
		t.Fatalf("expected header only, got %v", got.Records())
	}
}
