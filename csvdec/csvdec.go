// Package csvdec decodes the tabular files inside the price archives.
//
// The upstream dialect is modest: UTF-8, one header line, comma separator,
// double quote as the only quote character. Rows shorter than the header are
// padded with empty strings; extra trailing fields are dropped. Values are
// returned as strings — numeric coercion is the caller's business.
package csvdec

import (
	"strings"
)

// Record maps a trimmed header token to a trimmed field value.
type Record map[string]string

// Decode parses the full CSV text and returns one Record per data row.
// Blank and whitespace-only lines after the header are skipped. An empty
// input (or one with only a header) yields no records.
func Decode(text string) []Record {
	var records []Record
	ForEach(text, func(r Record) bool {
		records = append(records, r)
		return true
	})
	return records
}

// ForEach streams records to fn without materialising the whole slice.
// fn returning false stops the scan.
func ForEach(text string, fn func(Record) bool) {
	rows := splitRows(text)
	if len(rows) == 0 {
		return
	}

	header := parseRow(rows[0])
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for _, raw := range rows[1:] {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		fields := parseRow(raw)
		rec := make(Record, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(fields) {
				rec[key] = strings.TrimSpace(fields[i])
			} else {
				rec[key] = ""
			}
		}
		if !fn(rec) {
			return
		}
	}
}

// splitRows splits the text into logical rows, keeping newlines that fall
// inside quoted fields as part of the row.
func splitRows(text string) []string {
	var rows []string
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '"':
			inQuotes = !inQuotes
			b.WriteByte(c)
		case '\n':
			if inQuotes {
				b.WriteByte(c)
				continue
			}
			rows = append(rows, strings.TrimSuffix(b.String(), "\r"))
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if b.Len() > 0 {
		rows = append(rows, strings.TrimSuffix(b.String(), "\r"))
	}
	return rows
}

// parseRow splits one logical row into raw fields.
func parseRow(row string) []string {
	var fields []string
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(row); i++ {
		c := row[i]
		switch c {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if inQuotes {
				b.WriteByte(c)
				continue
			}
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	fields = append(fields, b.String())
	return fields
}
