// Package csp provides access to data releases of the Carnegie Supernova
// Project: the DR1 optical spectra and the DR3 natural-system photometry.
package csp

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

// prefix qualifies DR3 band names across the combined dataset namespace.
const dr3BandPrefix = "csp_dr3_"

// dr3Bands lists the DR3 natural-system bands in publication order.
var dr3Bands = []string{
	"u", "g", "r", "i", "B", "V0", "V1",
	"V", "Y", "J", "Jrc2", "H", "Ydw", "Jdw", "Hdw",
}

// dr3ZeroPoints runs parallel to dr3Bands.
var dr3ZeroPoints = []float64{
	12.986, 15.111, 14.902, 14.545, 14.328, 14.437, 14.393,
	14.439, 13.921, 13.836, 13.836, 13.510, 13.770, 13.866, 13.502,
}

// dr3Offsets are the natural-to-AB instrument offsets applied to DR3
// magnitudes when formatting.
var dr3Offsets = map[string]float64{
	"u": -0.06, "g": -0.02, "r": -0.01, "i": 0,
	"B": -0.13, "V": -0.02, "V0": -0.02, "V1": -0.02,
	"Y": 0.63, "J": 0.91, "Jrc2": 0.90, "H": 1.34,
	"Ydw": 0.64, "Jdw": 0.90, "Hdw": 1.34,
}

// dr3FilterFiles maps each DR3 band to its transmission curve file.
var dr3FilterFiles = map[string]string{
	"u":    "u_tel_ccd_atm_ext_1.2.dat",
	"g":    "g_tel_ccd_atm_ext_1.2.dat",
	"r":    "r_tel_ccd_atm_ext_1.2_new.dat",
	"i":    "i_tel_ccd_atm_ext_1.2_new.dat",
	"B":    "B_tel_ccd_atm_ext_1.2.dat",
	"V0":   "V_LC3014_tel_ccd_atm_ext_1.2.dat",
	"V1":   "V_LC3009_tel_ccd_atm_ext_1.2.dat",
	"V":    "V_tel_ccd_atm_ext_1.2.dat",
	"Y":    "Y_SWO_TAM_scan_atm.dat",
	"J":    "J_old_retrocam_swope_atm.dat",
	"Jrc2": "J_SWO_TAM_atm.dat",
	"H":    "H_SWO_TAM_scan_atm.dat",
	"Ydw":  "Y_texas_DUP_atm.dat",
	"Jdw":  "J_texas_DUP_atm.dat",
	"Hdw":  "H_texas_DUP_atm.dat",
}

// NewDR3 creates the access surface for the third CSP data release:
// natural-system optical (ugriBV) and near-infrared (YJH) photometry of 134
// supernovae observed 2004-2009.
func NewDR3(opts ...snquery.Option) (*snquery.PhotometricRelease, error) {
	meta := snquery.ReleaseMeta{
		SurveyName:   "Carnegie Supernova Project",
		SurveyAbbrev: "CSP",
		Release:      "DR3",
		SurveyURL:    "https://csp.obs.carnegiescience.edu/news-items/csp-dr3-photometry-released",
		Publications: []string{"Krisciunas et al. 2017"},
		ADSURL:       "https://ui.adsabs.harvard.edu/abs/2017AJ....154..278K/abstract",
	}

	resources := []snquery.Resource{
		{URL: "https://csp.obs.carnegiescience.edu/data/CSP_Photometry_DR3.tgz", Path: ".", Archive: true, Unpacked: "DR3"},
		{URL: "http://cdsarc.u-strasbg.fr/viz-bin/nph-Cat/tar.gz?J/AJ/154/211", Path: "tables", Archive: true},
	}
	for _, band := range dr3Bands {
		resources = append(resources, snquery.Resource{
			URL:  "https://csp.obs.carnegiescience.edu/data/" + dr3FilterFiles[band],
			Path: "filters/" + dr3FilterFiles[band],
		})
	}

	bands := make([]string, len(dr3Bands))
	for i, band := range dr3Bands {
		bands[i] = dr3BandPrefix + band
	}
	return snquery.NewPhotometricRelease(meta, dr3Parser{}, resources, bands, dr3ZeroPoints, opts...)
}

// dr3Parser reads the DR3 snoopy light-curve files and CDS paper tables.
type dr3Parser struct{}

func (dr3Parser) AvailableIDs(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "DR3", "SN*_snpy.txt"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), "_snpy.txt")
		ids = append(ids, strings.TrimPrefix(stem, "SN"))
	}
	return ids, nil
}

func (dr3Parser) ObjectData(dir, objID string, format bool) (*snquery.Table, error) {
	path := filepath.Join(dir, "DR3", "SN"+objID+"_snpy.txt")
	table, err := parseSnoopyFile(path)
	if err != nil {
		return nil, err
	}
	if !format {
		return table, nil
	}
	return formatDR3(table)
}

func (dr3Parser) AvailableTables(dir string) ([]snquery.TableID, error) {
	return vizier.NumberedTables(filepath.Join(dir, "tables"))
}

func (dr3Parser) LoadTable(dir string, id snquery.TableID) (*snquery.Table, error) {
	return vizier.LoadTable(filepath.Join(dir, "tables"), id)
}

// Bandpasses reads the DR3 transmission curves, implementing the optional
// band capability.
func (dr3Parser) Bandpasses(dir string) ([]snquery.Bandpass, error) {
	out := make([]snquery.Bandpass, 0, len(dr3Bands))
	for _, band := range dr3Bands {
		curve, err := vizier.ReadTransmission(filepath.Join(dir, "filters", dr3FilterFiles[band]))
		if err != nil {
			return nil, fmt.Errorf("csp: band %s: %w", band, err)
		}
		curve.Name = dr3BandPrefix + band
		out = append(out, curve)
	}
	return out, nil
}

// parseSnoopyFile reads one snoopy-format light curve: a header line with
// name, redshift, and position, then per-filter blocks of time, magnitude,
// and magnitude error rows.
func parseSnoopyFile(path string) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("csp: %s: empty snoopy file", path)
	}
	header := strings.Fields(scanner.Text())
	if len(header) < 4 {
		return nil, fmt.Errorf("csp: %s: malformed snoopy header", path)
	}
	z, err1 := strconv.ParseFloat(header[1], 64)
	ra, err2 := strconv.ParseFloat(header[2], 64)
	dec, err3 := strconv.ParseFloat(header[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("csp: %s: malformed snoopy header", path)
	}

	table := snquery.NewTable("time", "band", "mag", "mag_err")
	table.Meta[snquery.MetaObjID] = strings.TrimPrefix(header[0], "SN")
	table.Meta[snquery.MetaRA] = ra
	table.Meta[snquery.MetaDec] = dec
	table.Meta[snquery.MetaRedshift] = z
	table.Meta[snquery.MetaRedshiftErr] = nil

	band := ""
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "filter" {
			if len(fields) < 2 {
				return nil, fmt.Errorf("csp: %s: filter line without a band", path)
			}
			band = fields[1]
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("csp: %s: malformed photometry row %q", path, scanner.Text())
		}
		t, err1 := strconv.ParseFloat(fields[0], 64)
		mag, err2 := strconv.ParseFloat(fields[1], 64)
		magErr, err3 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("csp: %s: malformed photometry row %q", path, scanner.Text())
		}
		if err := table.AddRow(t, band, mag, magErr); err != nil {
			return nil, err
		}
	}
	return table, scanner.Err()
}

// formatDR3 converts a raw snoopy table to the standardized schema: Snoopy
// times to JD, qualified band names, instrument offsets applied, and fluxes
// derived from the release zero points.
func formatDR3(raw *snquery.Table) (*snquery.Table, error) {
	times, err := raw.Floats("time")
	if err != nil {
		return nil, err
	}
	mags, err := raw.Floats("mag")
	if err != nil {
		return nil, err
	}
	magErrs, err := raw.Floats("mag_err")
	if err != nil {
		return nil, err
	}
	bands, err := raw.Strings("band")
	if err != nil {
		return nil, err
	}

	zps := make(map[string]float64, len(dr3Bands))
	for i, band := range dr3Bands {
		zps[band] = dr3ZeroPoints[i]
	}

	out := snquery.NewPhotometryTable()
	out.Meta = raw.Meta
	for i := range times {
		band := bands[i]
		offset, ok := dr3Offsets[band]
		if !ok {
			return nil, fmt.Errorf("csp: unknown DR3 band %q", band)
		}
		jd, err := units.ToJD(times[i], units.StandardSnoopy)
		if err != nil {
			return nil, err
		}

		mag := mags[i] + offset
		zp := zps[band]
		flux := math.Pow(10, (mag-zp)/-2.5)
		fluxErr := math.Ln10 * flux * magErrs[i] / 2.5
		if err := out.AddRow(jd, dr3BandPrefix+band, flux, fluxErr, zp, "ab"); err != nil {
			return nil, err
		}
	}
	return out, nil
}
