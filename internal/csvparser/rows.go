package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Row is one data record. Index starts at 1 for the first row after the
// header, so the spreadsheet row number is Index+1.
type Row struct {
	Index int
	Cells []string
}

// Cell returns the value at column i, or "" when the row is short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// RowReader walks normalised CSV one record at a time. Rows whose cells are
// all blank are skipped and do not consume an index.
type RowReader struct {
	reader *csv.Reader
	header []string
	index  int
}

// NewRowReader reads the header row. Empty input yields a reader with no
// header whose Next returns io.EOF.
func NewRowReader(r io.Reader) (*RowReader, error) {
	reader := newReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &RowReader{reader: reader}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &RowReader{reader: reader, header: header}, nil
}

// Header returns the header cells as they appear in the file.
func (rr *RowReader) Header() []string {
	return rr.header
}

// Next returns the next non-blank row, or io.EOF.
func (rr *RowReader) Next() (Row, error) {
	if rr.header == nil {
		return Row{}, io.EOF
	}
	for {
		record, err := rr.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("read row %d: %w", rr.index+1, err)
		}
		if blank(record) {
			continue
		}
		rr.index++
		return Row{Index: rr.index, Cells: record}, nil
	}
}
