// Package traits renders the per-probe EWAS Atlas trait column.
package traits

import (
	"fmt"
	"math"

	"cpgcore/internal/ranking"
	"cpgcore/pkg/domain"
)

// Correlation labels.
const (
	Hyper        = "hyper"
	Hypo         = "hypo"
	NotReported  = "NR"
	invalidScore = "0.000"
)

// ColumnName is the aggregate column the trait summary is stored under.
const ColumnName = "ewas_atlas_traits"

// Aggregator indexes atlas associations by probe. It is immutable after
// construction and safe for concurrent use.
type Aggregator struct {
	byProbe map[string][]domain.AtlasAssociation
}

// NewAggregator groups rows by probe id, dropping rows without one.
func NewAggregator(rows []domain.AtlasAssociation) *Aggregator {
	byProbe := make(map[string][]domain.AtlasAssociation)
	for _, row := range rows {
		if row.ProbeID == "" {
			continue
		}
		byProbe[row.ProbeID] = append(byProbe[row.ProbeID], row)
	}
	return &Aggregator{byProbe: byProbe}
}

// Len reports the number of distinct probes with at least one association.
func (a *Aggregator) Len() int { return len(a.byProbe) }

// Summary returns the ranked trait lines for probe, or nil when the probe has
// no associations.
func (a *Aggregator) Summary(probe string) *string {
	rows := a.byProbe[probe]
	if len(rows) == 0 {
		return nil
	}
	entries := make([]ranking.Entry, len(rows))
	for i, row := range rows {
		entries[i] = Entry(row)
	}
	ranking.Sort(entries)
	return ranking.Join(entries)
}

// Entry renders one association as "{trait}, {score}, {label}, {pmid}".
func Entry(row domain.AtlasAssociation) ranking.Entry {
	score, ok := RankScore(row)
	display := invalidScore
	if ok {
		display = fmt.Sprintf("%.3f", score)
	}
	line := fmt.Sprintf("%s, %s, %s, %s", row.Trait, display, CorrelationLabel(row.Correlation), ranking.IntegerOrRaw(row.PMID))
	return ranking.Entry{Name: row.Trait, SortKey: score, Valid: ok, Line: line}
}

// RankScore is rank divided by the probe's total association count. The
// second result is false when either value is missing, the total is zero or
// the quotient is not finite.
func RankScore(row domain.AtlasAssociation) (float64, bool) {
	if row.Rank == nil || row.TotalAssociations == nil || *row.TotalAssociations == 0 {
		return 0, false
	}
	score := *row.Rank / *row.TotalAssociations
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}

// CorrelationLabel maps the atlas correlation sign onto a methylation direction.
func CorrelationLabel(sign string) string {
	switch sign {
	case "pos":
		return Hyper
	case "neg":
		return Hypo
	default:
		return NotReported
	}
}
