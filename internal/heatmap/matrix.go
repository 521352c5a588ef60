// Package heatmap turns ranked disease summary strings into a numeric
// gene × disease matrix for plotting collaborators.
package heatmap

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"cpgcore/pkg/domain"
)

// Cell is one parsed "Disease, Score" pair.
type Cell struct {
	Gene    string
	Disease string
	Score   float64
}

// Matrix is a dense gene × disease score table. Rows and Columns are sorted;
// Values[i][j] is the mean score of Rows[i] for Columns[j], zero when absent.
type Matrix struct {
	Rows    []string    `json:"genes"`
	Columns []string    `json:"diseases"`
	Values  [][]float64 `json:"values"`
}

// Empty reports whether the matrix carries no numeric data.
func (m Matrix) Empty() bool { return len(m.Rows) == 0 || len(m.Columns) == 0 }

// Value returns the cell for gene and disease, and whether both are present.
func (m Matrix) Value(gene, disease string) (float64, bool) {
	i := sort.SearchStrings(m.Rows, gene)
	j := sort.SearchStrings(m.Columns, disease)
	if i >= len(m.Rows) || m.Rows[i] != gene || j >= len(m.Columns) || m.Columns[j] != disease {
		return 0, false
	}
	return m.Values[i][j], true
}

// Parse splits a summary string into cells. Parts without a comma, or whose
// score is not numeric (the conflict marker included), are skipped.
func Parse(gene string, summary *string) []Cell {
	if summary == nil || gene == "" {
		return nil
	}
	var cells []Cell
	for _, part := range strings.Split(*summary, domain.Separator) {
		part = strings.TrimSpace(part)
		idx := strings.LastIndexByte(part, ',')
		if idx < 0 {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(part[idx+1:]), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		cells = append(cells, Cell{Gene: gene, Disease: strings.TrimSpace(part[:idx]), Score: score})
	}
	return cells
}

// Build pivots cells into a matrix, averaging duplicate (gene, disease) pairs.
func Build(cells []Cell) Matrix {
	type key struct{ gene, disease string }
	sums := make(map[key]float64)
	counts := make(map[key]int)
	genes := make(map[string]struct{})
	diseases := make(map[string]struct{})
	for _, c := range cells {
		k := key{c.Gene, c.Disease}
		sums[k] += c.Score
		counts[k]++
		genes[c.Gene] = struct{}{}
		diseases[c.Disease] = struct{}{}
	}
	m := Matrix{Rows: sortedKeys(genes), Columns: sortedKeys(diseases)}
	m.Values = make([][]float64, len(m.Rows))
	for i, gene := range m.Rows {
		m.Values[i] = make([]float64, len(m.Columns))
		for j, disease := range m.Columns {
			k := key{gene, disease}
			if n := counts[k]; n > 0 {
				m.Values[i][j] = sums[k] / float64(n)
			}
		}
	}
	return m
}

// Records flattens the matrix into a header row followed by one row per gene,
// the shape tabular exporters consume.
func (m Matrix) Records() [][]string {
	out := make([][]string, 0, len(m.Rows)+1)
	out = append(out, append([]string{"gene"}, m.Columns...))
	for i, gene := range m.Rows {
		row := make([]string, 0, len(m.Columns)+1)
		row = append(row, gene)
		for _, v := range m.Values[i] {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		out = append(out, row)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
