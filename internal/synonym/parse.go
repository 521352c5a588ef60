package synonym

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cpgcore/pkg/domain"
)

// ErrMalformed marks synonym text that looks like a JSON array but does not decode.
var ErrMalformed = errors.New("malformed synonym input")

// ParseError reports a gene record whose synonyms could not be parsed. The
// record still contributes its canonical symbol, only its synonyms are lost.
type ParseError struct {
	Symbol string
	Input  string
	Err    error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("synonyms for %s: %v", e.Symbol, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// Parse returns the synonyms of a gene record. A populated SynonymList is used
// as is; otherwise SynonymText is decoded as a JSON array when it starts with
// '[' and split on ';' when it does not. Entries are trimmed and blanks dropped.
func Parse(rec domain.GeneRecord) ([]string, error) {
	if rec.SynonymList != nil {
		return clean(rec.SynonymList), nil
	}
	if rec.SynonymText == nil {
		return nil, nil
	}
	text := strings.TrimSpace(*rec.SynonymText)
	if text == "" {
		return nil, nil
	}
	if !strings.HasPrefix(text, "[") {
		return clean(strings.Split(text, ";")), nil
	}
	var items []any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, ParseError{Symbol: rec.Symbol, Input: text, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			values = append(values, v)
		default:
			values = append(values, fmt.Sprint(v))
		}
	}
	return clean(values), nil
}

func clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
