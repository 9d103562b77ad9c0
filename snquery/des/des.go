// Package des provides access to data releases published by the Dark
// Energy Survey.
package des

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sndata/snquery/internal/units"
	"github.com/sndata/snquery/snquery"
	"github.com/sndata/snquery/snquery/vizier"
)

const sn3yrBandPrefix = "des_sn3yr_"

// sn3yrZeroPoint applies to every DECam band in the SN3YR release.
const sn3yrZeroPoint = 27.5

var sn3yrBands = []string{"g", "r", "i", "z", "y"}

// sn3yrFilterFiles maps each band to its DECam transmission curve.
var sn3yrFilterFiles = map[string]string{
	"g": "DECam_g.dat",
	"r": "DECam_r.dat",
	"i": "DECam_i.dat",
	"z": "DECam_z.dat",
	"y": "DECam_Y.dat",
}

// sn3yrTables lists the BBC fit result tables shipped with the release.
var sn3yrTables = []string{
	"SALT2mu_DES+LOWZ_C11.FITRES",
	"SALT2mu_DES+LOWZ_G10.FITRES",
}

// NewSN3YR creates the access surface for the first public data release of
// the Dark Energy Survey Supernova Program: griz light curves of 251
// spectroscopically classified supernovae from the program's first 3 years.
func NewSN3YR(opts ...snquery.Option) (*snquery.PhotometricRelease, error) {
	meta := snquery.ReleaseMeta{
		SurveyName:   "Dark Energy Survey",
		SurveyAbbrev: "DES",
		Release:      "SN3YR",
		SurveyURL:    "https://des.ncsa.illinois.edu/",
		Publications: []string{"Burke et al. 2017", "Brout et al. 2019", "Brout et al. 2018-SYS"},
		ADSURL:       "https://ui.adsabs.harvard.edu/abs/2019ApJ...874..106B/abstract",
	}

	const baseURL = "http://desdr-server.ncsa.illinois.edu/despublic/sn_files/y3/tar_files/"
	resources := []snquery.Resource{
		{URL: baseURL + "01-FILTERS.tar.gz", Path: ".", Archive: true, Unpacked: "01-FILTERS"},
		{URL: baseURL + "02-DATA_PHOTOMETRY.tar.gz", Path: ".", Archive: true, Unpacked: "02-DATA_PHOTOMETRY"},
		{URL: baseURL + "04-BBCFITS.tar.gz", Path: ".", Archive: true, Unpacked: "04-BBCFITS"},
	}

	bands := make([]string, len(sn3yrBands))
	zeroPoints := make([]float64, len(sn3yrBands))
	for i, b := range sn3yrBands {
		bands[i] = sn3yrBandPrefix + b
		zeroPoints[i] = sn3yrZeroPoint
	}
	return snquery.NewPhotometricRelease(meta, sn3yrParser{}, resources, bands, zeroPoints, opts...)
}

// sn3yrParser reads the SNANA-formatted light curve files shipped with the
// release. Object ids come from the DES-SN3YR_DES.LIST manifest and keep
// their zero padding.
type sn3yrParser struct{}

func (sn3yrParser) photometryDir(dir string) string {
	return filepath.Join(dir, "02-DATA_PHOTOMETRY", "DES-SN3YR_DES")
}

func (p sn3yrParser) AvailableIDs(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(p.photometryDir(dir), "DES-SN3YR_DES.LIST"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "des_"), ".dat")
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}

func (p sn3yrParser) ObjectData(dir, objID string, format bool) (*snquery.Table, error) {
	n, err := strconv.Atoi(objID)
	if err != nil {
		return nil, fmt.Errorf("des: invalid object id %q", objID)
	}
	path := filepath.Join(p.photometryDir(dir), fmt.Sprintf("des_%08d.dat", n))
	raw, err := readSNANAFile(path, objID)
	if err != nil {
		return nil, err
	}
	if !format {
		return raw, nil
	}
	return formatSN3YR(raw)
}

func (sn3yrParser) AvailableTables(dir string) ([]snquery.TableID, error) {
	ids := make([]snquery.TableID, len(sn3yrTables))
	for i, name := range sn3yrTables {
		ids[i] = snquery.NamedTable(name)
	}
	return ids, nil
}

func (sn3yrParser) LoadTable(dir string, id snquery.TableID) (*snquery.Table, error) {
	for _, name := range sn3yrTables {
		if id.Name() == name {
			return readFITRES(filepath.Join(dir, "04-BBCFITS", name))
		}
	}
	return nil, fmt.Errorf("%w: %s", snquery.ErrInvalidTableID, id)
}

func (sn3yrParser) Bandpasses(dir string) ([]snquery.Bandpass, error) {
	out := make([]snquery.Bandpass, 0, len(sn3yrBands))
	for _, b := range sn3yrBands {
		path := filepath.Join(dir, "01-FILTERS", "DECam", sn3yrFilterFiles[b])
		bp, err := vizier.ReadTransmission(path)
		if err != nil {
			return nil, err
		}
		bp.Name = sn3yrBandPrefix + b
		out = append(out, bp)
	}
	return out, nil
}

// snanaColumns names the values on each OBS: row of a light curve file.
var snanaColumns = []string{
	"MJD", "BAND", "FIELD", "FLUXCAL", "FLUXCALERR",
	"ZPFLUX", "PSF", "SKYSIG", "GAIN", "PHOTFLAG", "PHOTPROB",
}

var snanaStringColumns = map[string]bool{"BAND": true, "FIELD": true}

// readSNANAFile reads one light curve. Header lines are "KEY: value" pairs
// and observations are "OBS:" rows following the VARLIST: declaration.
func readSNANAFile(path, objID string) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	table := snquery.NewTable(snanaColumns...)
	table.Meta[snquery.MetaObjID] = objID
	table.Meta["dtype"] = "photometric"

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "RA:"):
			table.Meta[snquery.MetaRA], err = headerFloat(line, 1)
		case strings.HasPrefix(line, "DECL:"):
			table.Meta[snquery.MetaDec], err = headerFloat(line, 1)
		case strings.HasPrefix(line, "REDSHIFT_FINAL:"):
			// REDSHIFT_FINAL: 0.2416 +- 0.0001 (CMB)
			if table.Meta[snquery.MetaRedshift], err = headerFloat(line, 1); err == nil {
				table.Meta[snquery.MetaRedshiftErr], err = headerFloat(line, 3)
			}
		case strings.HasPrefix(line, "OBS:"):
			err = appendSNANARow(table, strings.Fields(line)[1:])
		}
		if err != nil {
			return nil, fmt.Errorf("des: %s: %w", path, err)
		}
	}
	return table, scanner.Err()
}

func headerFloat(line string, field int) (float64, error) {
	fields := strings.Fields(line)
	if len(fields) <= field {
		return 0, fmt.Errorf("malformed header line %q", line)
	}
	return strconv.ParseFloat(fields[field], 64)
}

func appendSNANARow(table *snquery.Table, fields []string) error {
	if len(fields) < len(snanaColumns) {
		return fmt.Errorf("malformed observation row %v", fields)
	}
	values := make([]any, len(snanaColumns))
	for i, name := range snanaColumns {
		if snanaStringColumns[name] {
			values[i] = fields[i]
			continue
		}
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return err
		}
		values[i] = v
	}
	return table.AddRow(values...)
}

// formatSN3YR casts a raw SNANA table into the standardized light curve
// schema. Calibrated fluxes are reported against a fixed 27.5 zero point in
// the AB system.
func formatSN3YR(raw *snquery.Table) (*snquery.Table, error) {
	mjd, err := raw.Floats("MJD")
	if err != nil {
		return nil, err
	}
	bands, err := raw.Strings("BAND")
	if err != nil {
		return nil, err
	}
	flux, err := raw.Floats("FLUXCAL")
	if err != nil {
		return nil, err
	}
	fluxErr, err := raw.Floats("FLUXCALERR")
	if err != nil {
		return nil, err
	}

	out := snquery.NewPhotometryTable()
	out.Meta = raw.Meta
	for i := range mjd {
		jd, err := units.ToJD(mjd[i], units.StandardMJD)
		if err != nil {
			return nil, err
		}
		row := []any{jd, sn3yrBandPrefix + strings.ToLower(bands[i]), flux[i], fluxErr[i], sn3yrZeroPoint, "ab"}
		if err := out.AddRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readFITRES reads a BBC fit result table. Column names come from the
// VARNAMES: declaration and each row is marked with an SN: prefix.
func readFITRES(path string) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var table *snquery.Table
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "VARNAMES:"):
			table = snquery.NewTable(strings.Fields(line)[1:]...)
		case strings.HasPrefix(line, "SN:"):
			if table == nil {
				return nil, fmt.Errorf("des: %s: row before VARNAMES declaration", path)
			}
			fields := strings.Fields(line)[1:]
			if len(fields) != len(table.ColumnNames()) {
				return nil, fmt.Errorf("des: %s: malformed row %q", path, line)
			}
			values := make([]any, len(fields))
			for i, field := range fields {
				if v, err := strconv.ParseFloat(field, 64); err == nil && !math.IsNaN(v) {
					values[i] = v
				} else {
					values[i] = field
				}
			}
			if err := table.AddRow(values...); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("des: %s: no VARNAMES declaration", path)
	}
	return table, nil
}
