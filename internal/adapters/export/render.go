package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// Format is an artifact encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormats normalizes format names, dropping duplicates. An empty list
// means CSV only.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return []Format{FormatCSV}, nil
	}
	seen := make(map[Format]struct{}, len(names))
	out := make([]Format, 0, len(names))
	for _, name := range names {
		f := Format(strings.ToLower(strings.TrimSpace(name)))
		switch f {
		case FormatCSV, FormatJSON, FormatHTML:
		default:
			return nil, fmt.Errorf("unsupported export format %q", name)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/csv"
	}
}

// Render encodes t in format f.
func Render(f Format, t Table) ([]byte, error) {
	switch f {
	case FormatCSV:
		return renderCSV(t)
	case FormatJSON:
		return renderJSON(t)
	case FormatHTML:
		return renderHTML(t), nil
	default:
		return nil, fmt.Errorf("unsupported export format %s", f)
	}
}

func renderCSV(t Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(t.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = value(row, i)
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type jsonTable struct {
	Table   string               `json:"table"`
	Columns []string             `json:"columns"`
	Rows    []map[string]*string `json:"rows"`
}

func renderJSON(t Table) ([]byte, error) {
	doc := jsonTable{Table: t.Name, Columns: t.Columns, Rows: make([]map[string]*string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		obj := make(map[string]*string, len(t.Columns))
		for i, column := range t.Columns {
			if i < len(row) {
				obj[column] = row[i]
			} else {
				obj[column] = nil
			}
		}
		doc.Rows = append(doc.Rows, obj)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return payload, nil
}

func renderHTML(t Table) []byte {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(t.Name))
	buf.WriteString("</title></head><body><table>")
	buf.WriteString("<thead><tr>")
	for _, column := range t.Columns {
		buf.WriteString("<th>")
		buf.WriteString(html.EscapeString(column))
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, row := range t.Rows {
		buf.WriteString("<tr>")
		for i := range t.Columns {
			buf.WriteString("<td>")
			buf.WriteString(strings.ReplaceAll(html.EscapeString(value(row, i)), "\n", "<br>"))
			buf.WriteString("</td>")
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

func value(row []*string, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return *row[i]
}
