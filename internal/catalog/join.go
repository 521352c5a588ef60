// Package catalog joins EWAS Catalog results with their study metadata for a
// target list of probes.
package catalog

import (
	"cpgcore/internal/tables"
)

// Match is one catalog result row for a target probe with its study columns merged in.
type Match struct {
	ProbeID string
	StudyID string
	Values  map[string]string
}

// Result is the joined table: the result columns followed by every study
// column except the study id.
type Result struct {
	Columns []string
	Matches []Match
	// MissingStudies counts matches whose study id had no study row.
	MissingStudies int
}

// Records flattens the result into rows ordered by Columns.
func (r Result) Records() [][]string {
	out := make([][]string, 0, len(r.Matches)+1)
	out = append(out, append([]string(nil), r.Columns...))
	for _, m := range r.Matches {
		row := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			row[i] = m.Values[c]
		}
		out = append(out, row)
	}
	return out
}

// Join keeps the result rows whose probe is one of targets, in input order,
// and merges the columns of the study they reference.
func Join(results, studies tables.Table, targets []string) Result {
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}
	byStudy := make(map[string]int, len(studies.Rows))
	for i := range studies.Rows {
		id := studies.Cell(i, tables.CatalogStudyID)
		if _, dup := byStudy[id]; !dup {
			byStudy[id] = i
		}
	}

	var studyColumns []string
	for _, c := range studies.Columns {
		if c != tables.CatalogStudyID {
			studyColumns = append(studyColumns, c)
		}
	}
	res := Result{Columns: append(append([]string(nil), results.Columns...), studyColumns...)}
	for i := range results.Rows {
		probe := results.Cell(i, tables.CatalogProbe)
		if _, ok := want[probe]; !ok {
			continue
		}
		values := results.Record(i)
		studyID := results.Cell(i, tables.CatalogStudyID)
		if j, ok := byStudy[studyID]; ok {
			study := studies.Record(j)
			for _, c := range studyColumns {
				values[c] = study[c]
			}
		} else {
			res.MissingStudies++
		}
		res.Matches = append(res.Matches, Match{ProbeID: probe, StudyID: studyID, Values: values})
	}
	return res
}
