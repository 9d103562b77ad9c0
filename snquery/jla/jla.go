// Package jla provides access to the data compilation of the Joint
// Light-curve Analysis of SDSS-II and SNLS supernova observations.
package jla

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sndata/snquery/internal/units"
	"github.com/sndata/snquery/snquery"
	"github.com/sndata/snquery/snquery/vizier"
)

const betoule14BandPrefix = "jla_betoule14_"

// betoule14ZeroPoints maps each instrument::filter pair to its published
// zero point.
var betoule14ZeroPoints = map[string]float64{
	"4SHOOTER2::B":    15.34721,
	"4SHOOTER2::I":    14.465326,
	"4SHOOTER2::R":    15.067505,
	"4SHOOTER2::Us":   14.205682,
	"4SHOOTER2::V":    14.97444,
	"ACSWF::F606W":    17.21704,
	"ACSWF::F775W":    16.178942,
	"ACSWF::F850LP":   15.833444,
	"KEPLERCAM::B":    15.358495,
	"KEPLERCAM::Us":   14.205682,
	"KEPLERCAM::V":    14.951837,
	"KEPLERCAM::i":    14.962131,
	"KEPLERCAM::r":    15.235409,
	"MEGACAMPSF::g":   27.045017,
	"MEGACAMPSF::i":   26.340862,
	"MEGACAMPSF::r":   26.494886,
	"MEGACAMPSF::z":   25.310699,
	"NICMOS2::F110W":  16.733045,
	"NICMOS2::F160W":  15.494573,
	"SDSS::g":         27.5,
	"SDSS::i":         27.5,
	"SDSS::r":         27.5,
	"SDSS::u":         27.5,
	"SDSS::z":         27.5,
	"STANDARD::B":     15.277109,
	"STANDARD::I":     14.589873,
	"STANDARD::R":     15.05484,
	"STANDARD::U":     14.205682,
	"STANDARD::V":     14.841261,
	"SWOPE2::B":       14.319437,
	"SWOPE2::V":       14.522684,
	"SWOPE2::g":       15.127543,
	"SWOPE2::i":       14.777211,
	"SWOPE2::r":       14.909701,
	"SWOPE2::u":       13.036368,
}

// betoule14Bands fixes the published ordering of the instrument::filter
// pairs.
var betoule14Bands = []string{
	"4SHOOTER2::B", "4SHOOTER2::I", "4SHOOTER2::R", "4SHOOTER2::Us", "4SHOOTER2::V",
	"ACSWF::F606W", "ACSWF::F775W", "ACSWF::F850LP",
	"KEPLERCAM::B", "KEPLERCAM::Us", "KEPLERCAM::V", "KEPLERCAM::i", "KEPLERCAM::r",
	"MEGACAMPSF::g", "MEGACAMPSF::i", "MEGACAMPSF::r", "MEGACAMPSF::z",
	"NICMOS2::F110W", "NICMOS2::F160W",
	"SDSS::g", "SDSS::i", "SDSS::r", "SDSS::u", "SDSS::z",
	"STANDARD::B", "STANDARD::I", "STANDARD::R", "STANDARD::U", "STANDARD::V",
	"SWOPE2::B", "SWOPE2::V", "SWOPE2::g", "SWOPE2::i", "SWOPE2::r", "SWOPE2::u",
}

// NewBetoule14 creates the access surface for the joint analysis of type Ia
// supernova observations obtained by the SDSS-II and SNLS collaborations:
// 740 spectroscopically confirmed supernovae with high quality light curves,
// spanning several low-redshift samples, all 3 SDSS-II seasons, and 3 years
// of SNLS.
//
// The MegaCam transmission functions registered by this module represent
// the average transmission across the pre-2015 filter set as reported by
// the manufacturer.
func NewBetoule14(opts ...snquery.Option) (*snquery.PhotometricRelease, error) {
	meta := snquery.ReleaseMeta{
		SurveyName:   "Joint Light-curve Analysis",
		SurveyAbbrev: "JLA",
		Release:      "Betoule14",
		SurveyURL:    "http://supernovae.in2p3.fr/sdss_snls_jla/ReadMe.html",
		Publications: []string{"Betoule et al. 2014"},
		ADSURL:       "https://ui.adsabs.harvard.edu/abs/2014A%26A...568A..22B/abstract",
	}
	resources := []snquery.Resource{
		{URL: "http://supernovae.in2p3.fr/sdss_snls_jla/jla_light_curves.tgz", Path: ".", Archive: true, Unpacked: "jla_light_curves"},
		{URL: "http://cdsarc.u-strasbg.fr/viz-bin/nph-Cat/tar.gz?J/A+A/568/A22", Path: "tables", Archive: true},
		{URL: "http://www.cfht.hawaii.edu/Instruments/Imaging/Megacam/data.MegaPrime/MegaCam_Filters_data_SAGEM.txt", Path: "cfht_filters.txt"},
	}

	bands := make([]string, len(betoule14Bands))
	zeroPoints := make([]float64, len(betoule14Bands))
	for i, b := range betoule14Bands {
		bands[i] = betoule14BandPrefix + b
		zeroPoints[i] = betoule14ZeroPoints[b]
	}
	return snquery.NewPhotometricRelease(meta, betoule14Parser{}, resources, bands, zeroPoints, opts...)
}

// betoule14Parser reads the lc-<id>.list light curve files. Metadata rides
// on leading @-prefixed lines and observations follow as space separated
// columns.
type betoule14Parser struct{}

func (betoule14Parser) lightCurveDir(dir string) string {
	return filepath.Join(dir, "jla_light_curves")
}

func (p betoule14Parser) AvailableIDs(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(p.lightCurveDir(dir), "lc-*.list"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), ".list")
		ids = append(ids, strings.TrimPrefix(stem, "lc-"))
	}
	return ids, nil
}

func (p betoule14Parser) ObjectData(dir, objID string, format bool) (*snquery.Table, error) {
	return readLightCurve(filepath.Join(p.lightCurveDir(dir), "lc-"+objID+".list"), objID, format)
}

func (betoule14Parser) AvailableTables(dir string) ([]snquery.TableID, error) {
	return vizier.NumberedTables(filepath.Join(dir, "tables"))
}

func (betoule14Parser) LoadTable(dir string, id snquery.TableID) (*snquery.Table, error) {
	return vizier.LoadTable(filepath.Join(dir, "tables"), id)
}

// Bandpasses returns the MegaCam transmission curves measured by the
// manufacturer. The remaining instruments never published transmission
// data alongside this release.
func (betoule14Parser) Bandpasses(dir string) ([]snquery.Bandpass, error) {
	curves, err := readCFHTFilters(filepath.Join(dir, "cfht_filters.txt"))
	if err != nil {
		return nil, err
	}
	out := make([]snquery.Bandpass, 0, len(curves))
	for _, filter := range []string{"g", "i", "r", "z"} {
		bp, ok := curves[filter]
		if !ok {
			return nil, fmt.Errorf("jla: missing MegaCam transmission for %s", filter)
		}
		bp.Name = betoule14BandPrefix + "MEGACAMPSF::" + filter
		out = append(out, bp)
	}
	return out, nil
}

var betoule14Columns = []string{"Date", "Flux", "Fluxerr", "ZP", "Filter", "MagSys"}

// readLightCurve reads one lc-<id>.list file. Formatting renames the
// columns to the standardized schema, prefixes band names, and converts
// dates from MJD.
func readLightCurve(path, objID string, format bool) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	columns := betoule14Columns
	if format {
		columns = []string{
			snquery.ColTime, snquery.ColFlux, snquery.ColFluxErr,
			snquery.ColZP, snquery.ColBand, snquery.ColZPSys,
		}
	}
	table := snquery.NewTable(columns...)
	meta := make(map[string]string)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "@") {
			key, value, _ := strings.Cut(strings.TrimPrefix(line, "@"), " ")
			meta[key] = strings.TrimSpace(value)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < len(betoule14Columns) {
			return nil, fmt.Errorf("jla: %s: malformed row %q", path, line)
		}
		date, err1 := strconv.ParseFloat(fields[0], 64)
		flux, err2 := strconv.ParseFloat(fields[1], 64)
		fluxErr, err3 := strconv.ParseFloat(fields[2], 64)
		zp, err4 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("jla: %s: malformed row %q", path, line)
		}
		band, magSys := fields[4], fields[5]
		if format {
			if date, err = units.ToJD(date, units.StandardMJD); err != nil {
				return nil, err
			}
			band = betoule14BandPrefix + band
		}
		if err := table.AddRow(date, flux, fluxErr, zp, band, magSys); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	attachListMeta(table, meta, objID)
	return table, nil
}

// attachListMeta maps the @-line metadata onto the standardized keys and
// carries every remaining key through untouched.
func attachListMeta(table *snquery.Table, meta map[string]string, objID string) {
	table.Meta[snquery.MetaObjID] = objID
	table.Meta[snquery.MetaRA] = popFloat(meta, "RA")
	table.Meta[snquery.MetaDec] = popFloat(meta, "DEC")
	table.Meta[snquery.MetaRedshift] = popFloat(meta, "Z_HELIO")
	table.Meta[snquery.MetaRedshiftErr] = nil
	delete(meta, "SN")
	for k, v := range meta {
		table.Meta[k] = v
	}
}

func popFloat(meta map[string]string, key string) any {
	value, ok := meta[key]
	if !ok {
		return nil
	}
	delete(meta, key)
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return f
}

// readCFHTFilters reads the manufacturer's MegaCam measurement table: one
// wavelength column in nanometers followed by the ugriz transmissions.
func readCFHTFilters(path string) (map[string]snquery.Bandpass, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	filters := []string{"u", "g", "r", "i", "z"}
	wave := []float64{}
	trans := make(map[string][]float64, len(filters))

	first := true
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < len(filters)+1 {
			return nil, fmt.Errorf("jla: %s: malformed row %q", path, line)
		}
		w, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("jla: %s: malformed row %q", path, line)
		}
		wave = append(wave, w*10) // nm to angstroms
		for i, name := range filters {
			t, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("jla: %s: malformed row %q", path, line)
			}
			trans[name] = append(trans[name], t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]snquery.Bandpass, len(filters))
	for _, name := range filters {
		out[name] = snquery.Bandpass{Wavelength: wave, Transmission: trans[name]}
	}
	return out, nil
}
