// Package convert implements the CSV validation and conversion algorithm.
//
// The algorithm is a pure function of the input bytes and the required
// column set: identical input always yields the identical record sequence
// and counts. The converter stage relies on this for safe redelivery.
package convert

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RequiredColumns are the header columns a CSV file must carry to be
// structurally valid. Matching is exact and case-sensitive.
var RequiredColumns = []string{"id", "value", "timestamp"}

// Record is one converted CSV row. Values are passed through as strings;
// no numeric coercion is applied.
type Record struct {
	ID        string `json:"id"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Result is the outcome of a full conversion pass.
type Result struct {
	// Records holds the valid rows in input order.
	Records []Record

	// RowCount is the total number of data rows seen, valid and invalid.
	RowCount int

	// ErrorCount is the number of rows rejected for a missing or empty
	// required field.
	ErrorCount int
}

// StructuralError indicates the header row is missing required columns.
//
// Structural errors are never retried: re-reading a static file will not
// change its header.
type StructuralError struct {
	// Missing lists the absent column names in RequiredColumns order.
	Missing []string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("missing required columns: [%s]", strings.Join(e.Missing, " "))
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// ValidateHeader checks that the first CSV line carries every required
// column. It reads only the header row; data rows are never inspected.
func ValidateHeader(r io.Reader) error {
	cr := newReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		// An empty file has no header at all.
		return &StructuralError{Missing: append([]string(nil), RequiredColumns...)}
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return &StructuralError{Missing: missing}
	}
	return nil
}

// Convert parses the full file: header check first, then one pass over the
// data rows. A row is valid iff every required field is present and
// non-empty; invalid rows are counted and skipped, never fatal.
func Convert(r io.Reader) (*Result, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &StructuralError{Missing: append([]string(nil), RequiredColumns...)}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, &StructuralError{Missing: missing}
	}

	// Duplicate header names resolve to the last occurrence, the way a
	// column map built by zipping header onto row would.
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	res := &Result{Records: []Record{}}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				// Malformed row: counted, not fatal.
				res.RowCount++
				res.ErrorCount++
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		res.RowCount++
		rec, ok := extract(row, index)
		if !ok {
			res.ErrorCount++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	// Short or long rows are handled per-row, not rejected by the parser.
	cr.FieldsPerRecord = -1
	return cr
}

func missingColumns(header []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, name := range header {
		present[name] = struct{}{}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// extract pulls the required fields out of a row by header position.
// ok is false when any required field is absent or empty.
func extract(row []string, index map[string]int) (Record, bool) {
	fields := make(map[string]string, len(RequiredColumns))
	for _, col := range RequiredColumns {
		i, ok := index[col]
		if !ok || i >= len(row) || row[i] == "" {
			return Record{}, false
		}
		fields[col] = row[i]
	}
	return Record{
		ID:        fields["id"],
		Value:     fields["value"],
		Timestamp: fields["timestamp"],
	}, true
}
