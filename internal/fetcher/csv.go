package fetcher

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Table is a parsed spreadsheet: trimmed headers and one map per non-empty
// data row keyed by header.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// Samples returns up to n leading rows.
func (t *Table) Samples(n int) []map[string]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// sniffWindow is how much decoded text the delimiter guess looks at.
const sniffWindow = 2000

// delimiters in tie-break order.
var delimiters = []rune{',', ';', '\t', '|'}

// ParseCSV decodes data and parses it as a delimited table. UTF-8 (with or
// without BOM) and UTF-16 with BOM are read as is; anything else that is not
// valid UTF-8 is taken as Windows-1252.
func ParseCSV(data []byte) (*Table, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", len(records)+1)
		}
		records = append(records, rec)
	}
	return buildTable(header, records), nil
}

// buildTable trims headers and cells, keys cells by header and drops rows
// with no value. Cells under a blank header and cells past the header are
// ignored.
func buildTable(header []string, records [][]string) *Table {
	t := &Table{Headers: make([]string, len(header))}
	for i, h := range header {
		t.Headers[i] = strings.TrimSpace(h)
	}
	for _, rec := range records {
		row := make(map[string]string, len(t.Headers))
		filled := false
		for i, h := range t.Headers {
			if h == "" {
				continue
			}
			var v string
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			row[h] = v
			if v != "" {
				filled = true
			}
		}
		if filled {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

func decodeText(data []byte) (string, error) {
	var enc encoding.Encoding
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		enc = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case utf8.Valid(data):
		return string(data), nil
	default:
		enc = charmap.Windows1252
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", eris.Wrap(err, "csv: decode")
	}
	return string(out), nil
}

// sniffDelimiter picks the most frequent delimiter in the leading text.
func sniffDelimiter(text string) rune {
	sample := text
	if utf8.RuneCountInString(sample) > sniffWindow {
		sample = string([]rune(sample)[:sniffWindow])
	}
	best, bestCount := delimiters[0], -1
	for _, d := range delimiters {
		if n := strings.Count(sample, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
