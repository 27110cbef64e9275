package csvparser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Serial day numbers below 61 fall in the range where the 1900 date system
// disagrees with itself about 29 February 1900.
const ambiguousSerialLimit = 61

var dateLike = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}|\d{1,2}[-/ ][A-Za-z]{3}`)

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	formatted, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	for i, row := range formatted {
		if i >= len(raw) {
			break
		}
		for j, cell := range row {
			if j >= len(raw[i]) {
				break
			}
			if ambiguousDate(cell, raw[i][j]) {
				return nil, fmt.Errorf("cell %d,%d: %w", i+1, j+1, errAmbiguousDate)
			}
		}
	}
	return formatted, nil
}

// ambiguousDate flags date-formatted cells whose underlying serial number
// sits in the range spreadsheet programs disagree on.
func ambiguousDate(formatted, raw string) bool {
	if formatted == raw || !dateLike.MatchString(formatted) {
		return false
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false
	}
	return serial >= 0 && serial < ambiguousSerialLimit
}

func readXLS(data []byte) (rows [][]string, err error) {
	// The xls reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("read xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ODS content.xml element names, matched on their local part.
const (
	odsTable     = "table"
	odsRow       = "table-row"
	odsCell      = "table-cell"
	odsCovered   = "covered-table-cell"
	odsParagraph = "p"
	odsSpace     = "s"
	odsTab       = "tab"
	odsBreak     = "line-break"
)

// maxRepeat bounds the expansion of number-rows-repeated and
// number-columns-repeated on rows and cells that hold data.
const maxRepeat = 1 << 16

// maxSheetBytes bounds the size of a sheet once repeats are expanded. Each
// cell counts its text plus a separator and each blank row counts one.
// maxSheetRows is the row limit of the common spreadsheet programs.
const (
	maxSheetBytes = 64 << 20
	maxSheetRows  = 1 << 20
)

var errSheetTooLarge = errors.New("sheet expands past the size limit")

type odsCellValue struct {
	text   string
	repeat int
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func repeatAttr(el xml.StartElement, local string) int {
	n, err := strconv.Atoi(attr(el, local))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func readODS(data []byte) ([][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var content *zip.File
	for _, f := range zr.File {
		if f.Name == "content.xml" {
			content = f
			break
		}
	}
	if content == nil {
		return nil, errors.New("archive has no content.xml")
	}

	rc, err := content.Open()
	if err != nil {
		return nil, fmt.Errorf("open content.xml: %w", err)
	}
	defer rc.Close()

	return parseODSContent(rc)
}

// parseODSContent walks the first table in content.xml. Repeated blank rows
// and cells, which spreadsheets emit to pad a sheet, are only expanded when
// followed by data.
func parseODSContent(r io.Reader) ([][]string, error) {
	dec := xml.NewDecoder(r)

	var (
		rows         [][]string
		pendingBlank int
		expanded     int
		inTable      bool
		rowRepeat    int
		cells        []odsCellValue
		inCell       bool
		cellText     strings.Builder
		paragraphs   int
		cellRepeat   int
		dateCell     bool
		dateValue    string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse content.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Local == odsTable && !inTable:
				if rows != nil {
					// Only the first sheet is read.
					return rows, nil
				}
				inTable = true
			case !inTable:
			case el.Name.Local == odsRow:
				rowRepeat = repeatAttr(el, "number-rows-repeated")
				cells = cells[:0]
			case el.Name.Local == odsCell || el.Name.Local == odsCovered:
				inCell = true
				cellText.Reset()
				paragraphs = 0
				cellRepeat = repeatAttr(el, "number-columns-repeated")
				dateCell = attr(el, "value-type") == "date"
				dateValue = attr(el, "date-value")
			case inCell && el.Name.Local == odsParagraph:
				if paragraphs > 0 {
					cellText.WriteByte('\n')
				}
				paragraphs++
			case inCell && el.Name.Local == odsSpace:
				n := repeatAttr(el, "c")
				if n > maxRepeat {
					n = maxRepeat
				}
				if cellText.Len()+n > maxSheetBytes-expanded {
					return nil, errSheetTooLarge
				}
				cellText.WriteString(strings.Repeat(" ", n))
			case inCell && el.Name.Local == odsTab:
				cellText.WriteByte('\t')
			case inCell && el.Name.Local == odsBreak:
				cellText.WriteByte('\n')
			}

		case xml.CharData:
			if inCell && paragraphs > 0 {
				cellText.Write(el)
			}

		case xml.EndElement:
			if !inTable {
				continue
			}
			switch el.Name.Local {
			case odsCell, odsCovered:
				text := cellText.String()
				if dateCell {
					if _, err := parseODSDate(dateValue); err != nil {
						return nil, fmt.Errorf("cell %q: %w", text, errAmbiguousDate)
					}
					if text == "" {
						text = dateValue
					}
				}
				cells = append(cells, odsCellValue{text: text, repeat: cellRepeat})
				inCell = false
			case odsRow:
				row, size, err := expandCells(cells, maxSheetBytes-expanded)
				if err != nil {
					return nil, err
				}
				if len(row) == 0 {
					// Trailing padding is never expanded, so only cap the count.
					pendingBlank = min(pendingBlank+min(rowRepeat, maxSheetBytes), maxSheetBytes+1)
					continue
				}
				if rowRepeat > maxRepeat {
					rowRepeat = maxRepeat
				}
				if len(rows)+pendingBlank+rowRepeat > maxSheetRows {
					return nil, fmt.Errorf("%w: more than %d rows", errSheetTooLarge, maxSheetRows)
				}
				expanded += pendingBlank + rowRepeat*size
				if expanded > maxSheetBytes {
					return nil, fmt.Errorf("%w: more than %d bytes", errSheetTooLarge, maxSheetBytes)
				}
				for ; pendingBlank > 0; pendingBlank-- {
					rows = append(rows, nil)
				}
				for i := 0; i < rowRepeat; i++ {
					rows = append(rows, row)
				}
			case odsTable:
				if rows == nil {
					rows = [][]string{}
				}
				return rows, nil
			}
		}
	}
	if !inTable {
		return nil, errors.New("document has no table")
	}
	return rows, nil
}

// expandCells applies column repeats, dropping the trailing run of blanks.
// It also returns the row's size and fails once that passes limit.
func expandCells(cells []odsCellValue, limit int) ([]string, int, error) {
	last := -1
	for i, c := range cells {
		if c.text != "" {
			last = i
		}
	}
	var out []string
	size := 0
	for _, c := range cells[:last+1] {
		n := c.repeat
		if n > maxRepeat {
			n = maxRepeat
		}
		size += n * (len(c.text) + 1)
		if size > limit {
			return nil, 0, errSheetTooLarge
		}
		for i := 0; i < n; i++ {
			out = append(out, c.text)
		}
	}
	return out, size, nil
}

func parseODSDate(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date value %q", v)
}
