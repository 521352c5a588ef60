package ranking

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"cpgcore/pkg/domain"
)

// Placeholders rendered for missing evidence fields.
const (
	MissingPolarity = "NAPolarity"
	MissingValue    = "NA"
)

// ReferencePMID is the reference type rendered as a bare integer identifier.
const ReferencePMID = "PMID"

// Evidence is one line of an expanded per-group ledger.
type Evidence struct {
	Name            string
	Polarity        domain.Polarity
	Year            *int
	ReferenceType   string
	Reference       *string
	Source          string
	AssociationType string
}

// PolarityRank orders polarities: Positive, absent, Negative, anything else.
func PolarityRank(p domain.Polarity) int {
	switch p {
	case domain.PolarityPositive:
		return 0
	case domain.PolarityAbsent, MissingPolarity:
		return 1
	case domain.PolarityNegative:
		return 2
	default:
		return 3
	}
}

// SortEvidence orders evidence by polarity rank, then publication year
// ascending with missing years last. Ties keep their input order.
func SortEvidence(items []Evidence) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := PolarityRank(items[i].Polarity), PolarityRank(items[j].Polarity)
		if ri != rj {
			return ri < rj
		}
		return yearKey(items[i].Year) < yearKey(items[j].Year)
	})
}

func yearKey(year *int) int {
	if year == nil {
		return math.MaxInt
	}
	return *year
}

// Line renders "{name}, {polarity}, {year}, {reference}".
func (e Evidence) Line() string {
	polarity := string(e.Polarity)
	if e.Polarity == domain.PolarityAbsent {
		polarity = MissingPolarity
	}
	year := MissingValue
	if e.Year != nil {
		year = strconv.Itoa(*e.Year)
	}
	return e.Name + ", " + polarity + ", " + year + ", " + e.reference()
}

func (e Evidence) reference() string {
	if e.ReferenceType == ReferencePMID {
		return IntegerOrRaw(e.Reference)
	}
	value := MissingValue
	if e.Reference != nil && strings.TrimSpace(*e.Reference) != "" {
		value = *e.Reference
	}
	return value + " (" + orMissing(e.Source) + ", " + orMissing(e.AssociationType) + ")"
}

// Ledger sorts the evidence and joins the rendered lines.
func Ledger(items []Evidence) []string {
	sorted := append([]Evidence(nil), items...)
	SortEvidence(sorted)
	lines := make([]string, len(sorted))
	for i, e := range sorted {
		lines[i] = e.Line()
	}
	return lines
}

// IntegerOrRaw renders a numeric identifier as an integer (truncating any
// fractional part) and falls back to the raw text when it is not numeric.
// Missing values render as MissingValue.
func IntegerOrRaw(raw *string) string {
	if raw == nil {
		return MissingValue
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return MissingValue
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1<<63 {
		return text
	}
	return strconv.FormatInt(int64(f), 10)
}

// FormatScore renders a score the way the upstream reports print floats:
// shortest round-trip digits, always with a decimal point, switching to
// exponent notation for very small or very large magnitudes.
func FormatScore(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if math.IsInf(v, 0) {
		if v > 0 {
			return "inf"
		}
		return "-inf"
	}
	if v == 0 {
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}
	exp := decimalExponent(v)
	if exp < -4 || exp >= 16 {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func decimalExponent(v float64) int {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	idx := strings.IndexByte(s, 'e')
	exp, _ := strconv.Atoi(s[idx+1:])
	return exp
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return MissingValue
	}
	return s
}
