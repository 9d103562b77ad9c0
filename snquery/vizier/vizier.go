// Package vizier provides the prebuilt parsing tools shared by survey
// modules whose reference tables follow the CDS/Vizier publication layout:
// numbered "tableN.dat" files described by a ReadMe, plus two-column filter
// transmission files. Survey parsers delegate their table primitives here
// instead of re-implementing the scheme per survey.
package vizier

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sndata/snquery/internal/cds"
	"github.com/sndata/snquery/snquery"
)

// readMeName is the standard CDS description file.
const readMeName = "ReadMe"

// NumberedTables enumerates the Vizier tables in tableDir, assuming the
// standard naming scheme. Files whose suffix is not an integer become named
// table ids.
func NumberedTables(tableDir string) ([]snquery.TableID, error) {
	files, err := filepath.Glob(filepath.Join(tableDir, "table*.dat"))
	if err != nil {
		return nil, err
	}
	ids := make([]snquery.TableID, 0, len(files))
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), ".dat")
		suffix := strings.TrimPrefix(stem, "table")
		if n, err := strconv.Atoi(suffix); err == nil {
			ids = append(ids, snquery.NumberedTable(n))
		} else {
			ids = append(ids, snquery.NamedTable(suffix))
		}
	}
	return ids, nil
}

// LoadTable reads one Vizier table from tableDir using the ReadMe's
// byte-by-byte description. The table's summary line from the ReadMe is
// attached as the "description" metadata key.
func LoadTable(tableDir string, id snquery.TableID) (*snquery.Table, error) {
	fileName := "table" + id.String() + ".dat"
	readme, err := cds.ParseReadMe(filepath.Join(tableDir, readMeName))
	if err != nil {
		return nil, fmt.Errorf("vizier: %w", err)
	}

	schema, ok := readme.Schemas[fileName]
	if !ok {
		return nil, fmt.Errorf("vizier: ReadMe does not describe %s", fileName)
	}
	labels, rows, err := cds.ReadTable(filepath.Join(tableDir, fileName), schema)
	if err != nil {
		return nil, fmt.Errorf("vizier: %w", err)
	}

	table := snquery.NewTable(labels...)
	for _, row := range rows {
		if err := table.AddRow(row...); err != nil {
			return nil, err
		}
	}
	table.Meta["description"] = readme.Descriptions[fileName]
	return table, nil
}

// ReadTransmission reads a two-column whitespace-delimited transmission
// curve: wavelength in Angstroms and fractional transmission. The band name
// is left for the caller to assign.
func ReadTransmission(path string) (snquery.Bandpass, error) {
	f, err := os.Open(path)
	if err != nil {
		return snquery.Bandpass{}, err
	}
	defer func() { _ = f.Close() }()

	var band snquery.Bandpass
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return snquery.Bandpass{}, fmt.Errorf("vizier: %s: malformed transmission row %q", path, line)
		}
		w, err1 := strconv.ParseFloat(fields[0], 64)
		t, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return snquery.Bandpass{}, fmt.Errorf("vizier: %s: malformed transmission row %q", path, line)
		}
		band.Wavelength = append(band.Wavelength, w)
		band.Transmission = append(band.Transmission, t)
	}
	if err := scanner.Err(); err != nil {
		return snquery.Bandpass{}, err
	}
	if len(band.Wavelength) == 0 {
		return snquery.Bandpass{}, fmt.Errorf("vizier: %s: empty transmission curve", path)
	}
	return band, nil
}
