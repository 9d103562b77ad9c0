// Package cds reads machine-readable tables published in the CDS/Vizier
// exchange format: fixed-width data files described by a ReadMe whose
// "Byte-by-byte Description" sections define the column layout of each
// table file.
package cds

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Kind is a column's value kind, derived from the CDS format code.
type Kind int

// Column value kinds.
const (
	String Kind = iota // A format
	Int                // I format
	Float              // F and E formats
)

// Column describes one fixed-width column of a table file. Byte positions
// are 1-based and inclusive, as published.
type Column struct {
	Start int
	End   int
	Kind  Kind
	Unit  string
	Label string
}

// ReadMe holds the parsed description of a release's table files.
type ReadMe struct {
	// Descriptions maps each table file name to its one-line summary
	// from the File Summary section.
	Descriptions map[string]string

	// Schemas maps each table file name to its column layout.
	Schemas map[string][]Column
}

// ParseReadMe parses a CDS ReadMe file.
func ParseReadMe(path string) (*ReadMe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	out := &ReadMe{
		Descriptions: make(map[string]string),
		Schemas:      make(map[string][]Column),
	}

	const (
		stateNone = iota
		stateSummary
		stateSchema
	)
	state := stateNone
	var schemaFiles []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "File Summary:"):
			state = stateSummary
			continue
		case strings.HasPrefix(line, "Byte-by-byte Description of file:"):
			state = stateSchema
			// A description line may cover several files
			// ("table2.dat table3.dat").
			rest := strings.TrimSpace(strings.TrimPrefix(line, "Byte-by-byte Description of file:"))
			schemaFiles = strings.Fields(rest)
			continue
		case strings.HasPrefix(line, "--------"):
			continue
		}

		switch state {
		case stateSummary:
			if name, desc, ok := parseSummaryLine(line); ok {
				out.Descriptions[name] = desc
			} else if strings.TrimSpace(line) == "" {
				state = stateNone
			}
		case stateSchema:
			if col, ok := parseColumnLine(line); ok {
				for _, name := range schemaFiles {
					out.Schemas[name] = append(out.Schemas[name], col)
				}
			} else if strings.TrimSpace(line) == "" {
				state = stateNone
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out.Schemas) == 0 {
		return nil, fmt.Errorf("cds: %s describes no tables", path)
	}
	return out, nil
}

// parseSummaryLine parses one File Summary row:
//
//	table2.dat   104   134   Optical photometry of 134 SNe
func parseSummaryLine(line string) (name, desc string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasSuffix(fields[0], ".dat") {
		return "", "", false
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return "", "", false
	}
	return fields[0], strings.Join(fields[3:], " "), true
}

// parseColumnLine parses one Byte-by-byte row:
//
//	1-  8  A8     ---    SN      SN name
//	10- 13  I4    yr     Year    ?=- Year of discovery
func parseColumnLine(line string) (Column, bool) {
	if len(line) < 5 || strings.TrimSpace(line) == "" {
		return Column{}, false
	}
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Column{}, false
	}

	// Byte range: either "1-8", or "1-" "8" split by spaces, or a single
	// column "10".
	var rangeStr string
	rest := fields
	if strings.HasSuffix(fields[0], "-") || !strings.Contains(fields[0], "-") && len(fields) > 1 && isDigits(fields[1]) && looksLikeFormat(fields[2]) {
		rangeStr = fields[0] + fields[1]
		rest = fields[2:]
	} else {
		rangeStr = fields[0]
		rest = fields[1:]
	}

	start, end, ok := parseByteRange(rangeStr)
	if !ok || len(rest) < 3 {
		return Column{}, false
	}

	kind, ok := formatKind(rest[0])
	if !ok {
		return Column{}, false
	}
	return Column{
		Start: start,
		End:   end,
		Kind:  kind,
		Unit:  rest[1],
		Label: rest[2],
	}, true
}

func parseByteRange(s string) (start, end int, ok bool) {
	s = strings.TrimSpace(s)
	if before, after, found := strings.Cut(s, "-"); found {
		a, err1 := strconv.Atoi(strings.TrimSpace(before))
		b, err2 := strconv.Atoi(strings.TrimSpace(after))
		if err1 != nil || err2 != nil || b < a {
			return 0, 0, false
		}
		return a, b, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func looksLikeFormat(s string) bool {
	_, ok := formatKind(s)
	return ok
}

func formatKind(format string) (Kind, bool) {
	if format == "" {
		return 0, false
	}
	switch format[0] {
	case 'A':
		return String, true
	case 'I':
		return Int, true
	case 'F', 'E', 'D':
		return Float, true
	default:
		return 0, false
	}
}

// ReadTable reads a fixed-width data file using the given column layout.
// It returns the column labels and one value slice per row; blank fields and
// the "-" null marker decode as nil.
func ReadTable(path string, cols []Column) (labels []string, rows [][]any, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	labels = make([]string, len(cols))
	for i, col := range cols {
		labels[i] = col.Label
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		row := make([]any, len(cols))
		for i, col := range cols {
			value, err := cutField(line, col)
			if err != nil {
				return nil, nil, fmt.Errorf("cds: %s:%d: column %s: %w", path, lineNo, col.Label, err)
			}
			row[i] = value
		}
		rows = append(rows, row)
	}
	return labels, rows, scanner.Err()
}

func cutField(line string, col Column) (any, error) {
	start := col.Start - 1
	end := col.End
	if start >= len(line) {
		return nil, nil
	}
	if end > len(line) {
		end = len(line)
	}

	raw := strings.TrimSpace(line[start:end])
	if raw == "" || raw == "-" {
		return nil, nil
	}
	switch col.Kind {
	case Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		return n, nil
	case Float:
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return x, nil
	default:
		return raw, nil
	}
}
