// Package mapping expands the one-to-many probe gene field into relational rows.
package mapping

import (
	"strings"

	"cpgcore/pkg/domain"
)

// Expand explodes each record's comma-separated gene field into one row per
// token. Tokens are trimmed and empty tokens are dropped; a record with no
// usable token yields a single row carrying domain.UnmappedSymbol. Repeated
// tokens are kept, one row each.
func Expand(records []domain.MappingRecord) []domain.GeneMapping {
	out := make([]domain.GeneMapping, 0, len(records))
	for _, rec := range records {
		tokens := Tokens(rec.RawGenes)
		if len(tokens) == 0 {
			out = append(out, row(rec, domain.UnmappedSymbol))
			continue
		}
		for _, token := range tokens {
			out = append(out, row(rec, token))
		}
	}
	return out
}

// Tokens splits a raw gene field on ',' and returns the trimmed, non-empty tokens.
func Tokens(raw *string) []string {
	if raw == nil {
		return nil
	}
	parts := strings.Split(*raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if token := strings.TrimSpace(part); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// RawFields indexes the pre-expansion gene field by probe id. Missing fields
// and the literal unmapped sentinel both normalize to "". When a probe appears
// on several records the first non-empty field wins.
func RawFields(records []domain.MappingRecord) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.ProbeID == "" {
			continue
		}
		value := strings.TrimSpace(domain.Deref(rec.RawGenes))
		if value == domain.UnmappedSymbol {
			value = ""
		}
		if existing, ok := out[rec.ProbeID]; ok && existing != "" {
			continue
		}
		out[rec.ProbeID] = value
	}
	return out
}

func row(rec domain.MappingRecord, symbol string) domain.GeneMapping {
	return domain.GeneMapping{
		ProbeID:    rec.ProbeID,
		Chromosome: rec.Chromosome,
		Start:      cloneInt(rec.Start),
		End:        cloneInt(rec.End),
		GeneSymbol: symbol,
	}
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
