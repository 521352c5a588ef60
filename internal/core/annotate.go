package core

import (
	"cpgcore/internal/disease"
	"cpgcore/internal/gap"
	"cpgcore/internal/synonym"
	"cpgcore/internal/traits"
	"cpgcore/pkg/domain"
)

// annotator holds the frozen lookups shared by every row worker.
type annotator struct {
	index    *synonym.Index
	traits   *traits.Aggregator
	diseases *disease.Aggregator
	gap      gap.Report
}

func (a annotator) annotate(m domain.GeneMapping) AnnotatedRow {
	row := AnnotatedRow{
		ProbeID:               m.ProbeID,
		Chromosome:            m.Chromosome,
		Start:                 m.Start,
		End:                   m.End,
		GeneSymbol:            m.GeneSymbol,
		Traits:                a.traits.Summary(m.ProbeID),
		UnmappedEstablished:   a.gap.Established(m.ProbeID),
		UnmappedUnestablished: a.gap.Unestablished(m.ProbeID),
	}
	switch canonical, synonymOf, ok := a.index.Resolve(m.GeneSymbol); {
	case m.Unmapped():
		row.Resolution = ResolvedUnmapped
	case !ok:
		row.Resolution = Unresolved
	case synonymOf != "":
		row.Resolution = ResolvedSynonym
		row.CanonicalSymbol = canonical
		row.SynonymOf = synonymOf
	default:
		row.Resolution = ResolvedCanonical
		row.CanonicalSymbol = canonical
	}

	if key := row.DiseaseKey(); key != "" {
		broad := a.diseases.Annotate(key, disease.Broad)
		row.Diseases, row.Evidence = broad.Diseases, broad.Evidence
		psych := a.diseases.Annotate(key, disease.Filtered)
		row.PsychDiseases, row.PsychEvidence = psych.Diseases, psych.Evidence
	}
	return row
}

// DiseaseKey is the gene symbol disease evidence is looked up by: the
// canonical symbol when resolved, the mapped symbol when unresolved, and ""
// for unmapped rows.
func (r AnnotatedRow) DiseaseKey() string {
	switch r.Resolution {
	case ResolvedCanonical, ResolvedSynonym:
		return r.CanonicalSymbol
	case Unresolved:
		return r.GeneSymbol
	default:
		return ""
	}
}
