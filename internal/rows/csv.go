package rows

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSV reads rows from a delimited file. The first record is the
// header and supplies the column names.
type CSV struct {
	file       *os.File
	reader     *csv.Reader
	columns    []string
	line       int
	trim       bool
	nullBlanks bool
}

// CSVOptions control how the file is parsed.
type CSVOptions struct {
	Comma      rune // default ','
	TrimSpace  bool
	NullBlanks bool // treat empty cells as nil instead of ""
}

// OpenCSV opens a delimited file and reads its header.
func OpenCSV(path string, opts CSVOptions) (*CSV, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rows file: %w", err)
	}

	r := csv.NewReader(file)
	if opts.Comma != 0 {
		r.Comma = opts.Comma
	}
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	c := &CSV{file: file, reader: r, columns: columns, line: 1}
	c.trim = opts.TrimSpace
	c.nullBlanks = opts.NullBlanks
	return c, nil
}

// Columns returns the header names in file order.
func (c *CSV) Columns() []string {
	return c.columns
}

// Next returns the next row, or nil at end of file.
func (c *CSV) Next() (Row, error) {
	record, err := c.reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading row after line %d: %w", c.line, err)
	}
	c.line++

	row := make(Row, len(c.columns))
	for i, col := range c.columns {
		val := record[i]
		if c.trim {
			val = strings.TrimSpace(val)
		}
		if val == "" && c.nullBlanks {
			row[col] = nil
			continue
		}
		row[col] = val
	}
	return row, nil
}

// Close releases the underlying file.
func (c *CSV) Close() error {
	return c.file.Close()
}
