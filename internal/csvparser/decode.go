// Package csvparser turns uploaded recipient spreadsheets into normalised CSV
// text and reads that text back one row at a time.
package csvparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type Kind string

const (
	KindUnsupported    Kind = "unsupported_format"
	KindUnreadable     Kind = "unreadable"
	KindAmbiguousDates Kind = "ambiguous_dates"
)

// Extensions lists every file extension Decode accepts.
var Extensions = []string{"csv", "tsv", "xls", "xlsx", "xlsm", "ods"}

var errAmbiguousDate = errors.New("cell holds a date whose value cannot be determined")

// DecodeError is returned for every file Decode cannot turn into CSV.
type DecodeError struct {
	Kind      Kind
	Filename  string
	Extension string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s (%s): %v", e.Filename, e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %s (%s)", e.Filename, e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Supported reports whether Decode accepts filename's extension.
func Supported(filename string) bool {
	ext := Extension(filename)
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Decode converts an uploaded file into UTF-8 CSV text with CRLF line
// separators and whitespace-normalised headers. Spreadsheets contribute their
// first sheet only. Cell contents are otherwise left untouched, so decoding
// the output again as a .csv file yields the same bytes.
func Decode(data []byte, filename string) (string, error) {
	ext := Extension(filename)
	fail := func(kind Kind, err error) (string, error) {
		return "", &DecodeError{Kind: kind, Filename: filename, Extension: ext, Err: err}
	}

	switch ext {
	case "csv":
		text, err := decodeText(data)
		if err != nil {
			return fail(KindUnreadable, err)
		}
		out, err := normaliseHeaderRow(normaliseNewlines(text))
		if err != nil {
			return fail(KindUnreadable, err)
		}
		return out, nil

	case "tsv":
		text, err := decodeText(data)
		if err != nil {
			return fail(KindUnreadable, err)
		}
		r := newReader(strings.NewReader(normaliseNewlines(text)))
		r.Comma = '\t'
		rows, err := r.ReadAll()
		if err != nil {
			return fail(KindUnreadable, err)
		}
		return writeCSV(rows)

	case "xlsx", "xlsm":
		rows, err := readXLSX(data)
		if err != nil {
			return fail(classify(err), err)
		}
		return writeCSV(rows)

	case "xls":
		rows, err := readXLS(data)
		if err != nil {
			return fail(classify(err), err)
		}
		return writeCSV(rows)

	case "ods":
		rows, err := readODS(data)
		if err != nil {
			return fail(classify(err), err)
		}
		return writeCSV(rows)
	}

	return fail(KindUnsupported, nil)
}

func classify(err error) Kind {
	if errors.Is(err, errAmbiguousDate) {
		return KindAmbiguousDates
	}
	return KindUnreadable
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(data, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(data, []byte{0xFF, 0xFE})
}

// decodeText strips a UTF-8 BOM, converts UTF-16 with a BOM, and rejects
// anything else that is not valid UTF-8.
func decodeText(data []byte) (string, error) {
	if !hasBOM(data) && !utf8.Valid(data) {
		return "", errors.New("file is not UTF-8 text")
	}
	out, _, err := transform.Bytes(xunicode.BOMOverride(xunicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("transcode: %w", err)
	}
	if !utf8.Valid(out) {
		return "", errors.New("file is not UTF-8 text")
	}
	return string(out), nil
}

// normaliseNewlines rewrites record separators as CRLF and drops trailing
// ones. Line breaks inside quoted cells are left as they are.
func normaliseNewlines(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	quoted := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			quoted = !quoted
			sb.WriteByte(c)
		case quoted || (c != '\r' && c != '\n'):
			sb.WriteByte(c)
		default:
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			sb.WriteString("\r\n")
		}
	}
	return strings.TrimRight(sb.String(), "\r\n")
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u180E', '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
		return true
	}
	return false
}

// NormaliseWhitespace collapses runs of whitespace and zero-width characters
// into single spaces and trims the ends.
func NormaliseWhitespace(s string) string {
	var sb strings.Builder
	pending := false
	for _, r := range s {
		if unicode.IsSpace(r) || isZeroWidth(r) {
			pending = sb.Len() > 0
			continue
		}
		if pending {
			sb.WriteByte(' ')
			pending = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false
	return reader
}

// normaliseHeaderRow rewrites only the first record of already newline
// normalised CSV text. Everything after it is kept byte for byte.
func normaliseHeaderRow(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	r := newReader(strings.NewReader(text))
	header, err := r.Read()
	if err == io.EOF {
		return text, nil
	}
	if err != nil {
		return "", fmt.Errorf("read header: %w", err)
	}

	changed := false
	normalised := make([]string, len(header))
	for i, h := range header {
		normalised[i] = NormaliseWhitespace(h)
		if normalised[i] != h {
			changed = true
		}
	}
	if !changed {
		return text, nil
	}

	line, err := encodeRecord(normalised)
	if err != nil {
		return "", err
	}
	offset := int(r.InputOffset())
	if offset >= len(text) {
		return line, nil
	}
	return line + "\r\n" + text[offset:], nil
}

func encodeRecord(record []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.Write(record); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\r\n"), nil
}

// writeCSV encodes spreadsheet rows. Rows are padded to a common width,
// trailing blank rows are dropped and the header is whitespace-normalised.
func writeCSV(rows [][]string) (string, error) {
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return "", nil
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	for i, row := range rows {
		out := make([]string, width)
		copy(out, row)
		if i == 0 {
			for j := range out {
				out[j] = NormaliseWhitespace(out[j])
			}
		}
		if err := w.Write(out); err != nil {
			return "", fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\r\n"), nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
