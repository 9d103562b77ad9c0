package csp

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sndata/snquery/internal/units"
	"github.com/sndata/snquery/snquery"
	"github.com/sndata/snquery/snquery/vizier"
)

// NewDR1 creates the access surface for the first CSP release of optical
// spectroscopic data: 604 previously unpublished spectra of 93 low-redshift
// Type Ia supernovae. Spectra are published in rest-frame wavelength.
func NewDR1(opts ...snquery.Option) (*snquery.SpectroscopicRelease, error) {
	meta := snquery.ReleaseMeta{
		SurveyName:   "Carnegie Supernova Project",
		SurveyAbbrev: "CSP",
		Release:      "DR1",
		SurveyURL:    "https://csp.obs.carnegiescience.edu/news-items/CSP_spectra_DR1",
		Publications: []string{"Folatelli et al. 2013"},
		ADSURL:       "https://ui.adsabs.harvard.edu/abs/2013ApJ...773...53F/abstract",
	}
	resources := []snquery.Resource{
		{URL: "https://csp.obs.carnegiescience.edu/data/CSP_spectra_DR1.tgz", Path: ".", Archive: true, Unpacked: "CSP_spectra_DR1"},
		{URL: "http://cdsarc.u-strasbg.fr/viz-bin/nph-Cat/tar.gz?J/ApJ/773/53", Path: "tables", Archive: true},
	}
	return snquery.NewSpectroscopicRelease(meta, dr1Parser{}, resources, opts...)
}

// dr1Parser reads the DR1 spectrum files. File names follow
// SN<id>_<date>_<range>_<telescope>_<instrument>.dat, with one file per
// spectrum and several spectra per object.
type dr1Parser struct{}

func (dr1Parser) spectraDir(dir string) string {
	return filepath.Join(dir, "CSP_spectra_DR1")
}

func (p dr1Parser) AvailableIDs(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(p.spectraDir(dir), "SN*.dat"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, dr1ObjID(f))
	}
	return ids, nil
}

// dr1ObjID derives the object id from a spectrum file name. DR1 file names
// abbreviate "SN2004ef" to "SN04ef"; the published ids restore the century.
func dr1ObjID(path string) string {
	stem := strings.SplitN(filepath.Base(path), "_", 2)[0]
	return "20" + strings.TrimPrefix(stem, "SN")
}

func (p dr1Parser) ObjectData(dir, objID string, format bool) (*snquery.Table, error) {
	pattern := filepath.Join(p.spectraDir(dir), "SN"+strings.TrimPrefix(objID, "20")+"_*.dat")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("csp: no spectra for %s", objID)
	}
	sort.Strings(files)

	tables := make([]*snquery.Table, len(files))
	var meta snquery.Metadata
	for i, f := range files {
		table, err := readDR1File(f, format)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			meta = table.Meta
		}
		tables[i] = table
	}

	out := snquery.Vstack(tables...)
	out.Meta = meta
	out.Meta[snquery.MetaObjID] = objID
	return out, nil
}

func (dr1Parser) AvailableTables(dir string) ([]snquery.TableID, error) {
	return vizier.NumberedTables(filepath.Join(dir, "tables"))
}

func (dr1Parser) LoadTable(dir string, id snquery.TableID) (*snquery.Table, error) {
	return vizier.LoadTable(filepath.Join(dir, "tables"), id)
}

// readDR1File reads one spectrum: comment lines carrying the redshift,
// observation date, and epoch, then two columns of wavelength and flux.
// Formatting adds the observation context columns and converts the date to
// JD.
func readDR1File(path string, format bool) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var redshift, obsDate, epoch float64
	table := snquery.NewTable("wavelength", "flux")

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			switch {
			case strings.HasPrefix(comment, "Redshift:"):
				redshift, err = parseCommentValue(comment)
			case strings.HasPrefix(comment, "JDate_of_observation:"):
				obsDate, err = parseCommentValue(comment)
			case strings.HasPrefix(comment, "Epoch:"):
				epoch, err = parseCommentValue(comment)
			}
			if err != nil {
				return nil, fmt.Errorf("csp: %s: %w", path, err)
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("csp: %s: malformed spectrum row %q", path, line)
		}
		w, err1 := strconv.ParseFloat(fields[0], 64)
		flux, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("csp: %s: malformed spectrum row %q", path, line)
		}
		if err := table.AddRow(w, flux); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	table.Meta[snquery.MetaObjID] = dr1ObjID(path)
	table.Meta[snquery.MetaRA] = nil
	table.Meta[snquery.MetaDec] = nil
	table.Meta[snquery.MetaRedshift] = redshift
	table.Meta[snquery.MetaRedshiftErr] = nil

	n := table.NumRows()
	timeCol := make([]any, n)
	for i := range timeCol {
		timeCol[i] = obsDate
	}
	if err := table.AddColumn("time", timeCol); err != nil {
		return nil, err
	}
	if !format {
		return table, nil
	}
	return formatDR1File(table, path, epoch, obsDate)
}

// formatDR1File reorders a spectrum into the standardized schema and adds
// the per-spectrum context columns, which are constant within one file but
// vary across an object's spectra.
func formatDR1File(raw *snquery.Table, path string, epoch, obsDate float64) (*snquery.Table, error) {
	parts := strings.Split(strings.TrimSuffix(filepath.Base(path), ".dat"), "_")
	if len(parts) < 5 {
		return nil, fmt.Errorf("csp: %s: unexpected spectrum file name", path)
	}
	wavelengthRange, telescope, instrument := parts[2], parts[3], parts[4]

	jd, err := units.ToJD(obsDate, units.StandardJD)
	if err != nil {
		return nil, err
	}

	wavelengths, err := raw.Floats("wavelength")
	if err != nil {
		return nil, err
	}
	fluxes, err := raw.Floats("flux")
	if err != nil {
		return nil, err
	}

	out := snquery.NewTable(
		snquery.ColTime, snquery.ColWavelength, snquery.ColFlux,
		"epoch", "wavelength_range", "telescope", "instrument")
	out.Meta = raw.Meta
	for i := range wavelengths {
		err := out.AddRow(jd, wavelengths[i], fluxes[i], epoch, wavelengthRange, telescope, instrument)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parseCommentValue extracts the numeric value of a "Key: value" comment.
func parseCommentValue(comment string) (float64, error) {
	_, value, found := strings.Cut(comment, ":")
	if !found {
		return 0, fmt.Errorf("malformed comment %q", comment)
	}
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
