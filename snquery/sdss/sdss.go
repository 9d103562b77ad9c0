// Package sdss provides access to data releases published by the Sloan
// Digital Sky Survey.
package sdss

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/sndata/snquery/internal/units"
	"github.com/sndata/snquery/snquery"
	"github.com/sndata/snquery/snquery/vizier"
)

const sako18BandPrefix = "sdss_sako18_"

// sako18Filters are the ugriz filters crossed with the six camera columns.
const (
	sako18FilterSet = "ugriz"
	sako18CCDCount  = 6
)

// sako18TableFiles are the machine readable tables from the published paper.
var sako18TableFiles = []string{
	"master_data.txt", "Table2.txt", "Table9.txt", "Table11.txt", "Table12.txt",
}

// NewSako18 creates the access surface for the data release of the SDSS-II
// Supernova Survey published by Sako et al. 2018: light curves for 10,258
// variable and transient sources discovered over the survey's three
// season-long campaigns.
func NewSako18(opts ...snquery.Option) (*snquery.PhotometricRelease, error) {
	meta := snquery.ReleaseMeta{
		SurveyName:   "Sloan Digital Sky Survey",
		SurveyAbbrev: "SDSS",
		Release:      "Sako18",
		SurveyURL:    "https://portal.nersc.gov/project/dessn/SDSS/dataRelease/",
		Publications: []string{"Sako et al. 2018"},
		ADSURL:       "https://ui.adsabs.harvard.edu/abs/2018PASP..130f4002S/abstract",
	}

	const baseURL = "https://portal.nersc.gov/project/dessn/SDSS/dataRelease/"
	const filterURL = "http://www.ioa.s.u-tokyo.ac.jp/~doi/sdss/"
	resources := []snquery.Resource{
		{URL: baseURL + "SMP_Data.tar.gz", Path: ".", Archive: true, Unpacked: "SMP_Data"},
		{URL: baseURL + "SDSS_dataRelease-snana.tar.gz", Path: ".", Archive: true, Unpacked: "SDSS_dataRelease-snana"},
	}
	for _, name := range sako18TableFiles {
		resources = append(resources, snquery.Resource{URL: baseURL + name, Path: "tables/" + name})
	}
	for _, b := range sako18BandNames() {
		file := strings.TrimPrefix(b, sako18BandPrefix) + ".dat"
		resources = append(resources, snquery.Resource{URL: filterURL + file, Path: "doi_2010_filters/" + file})
	}

	bands := sako18BandNames()
	zeroPoints := make([]float64, len(bands))
	for i := range zeroPoints {
		zeroPoints[i] = sako18ZeroPoint
	}
	return snquery.NewPhotometricRelease(meta, newSako18Parser(), resources, bands, zeroPoints, opts...)
}

// sako18ZeroPoint is the AB magnitude zero point shared by every band,
// 2.5*log10(3631 Jy).
var sako18ZeroPoint = 2.5 * math.Log10(3631)

func sako18BandNames() []string {
	names := make([]string, 0, len(sako18FilterSet)*sako18CCDCount)
	for _, b := range sako18FilterSet {
		for c := 1; c <= sako18CCDCount; c++ {
			names = append(names, fmt.Sprintf("%s%c%d", sako18BandPrefix, b, c))
		}
	}
	return names
}

// sako18Parser reads the scene model photometry (SMP) light curve files.
// Object ids and metadata come from the release's master table, which is
// cached per data directory after the first read.
type sako18Parser struct {
	mu     sync.Mutex
	master map[string]*snquery.Table
}

func newSako18Parser() *sako18Parser {
	return &sako18Parser{master: make(map[string]*snquery.Table)}
}

func (p *sako18Parser) masterTable(dir string) (*snquery.Table, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.master[dir]; ok {
		return t, nil
	}
	t, err := readASCIITable(filepath.Join(dir, "tables", "master_data.txt"))
	if err != nil {
		return nil, err
	}
	p.master[dir] = t
	return t, nil
}

func (p *sako18Parser) AvailableIDs(dir string) ([]string, error) {
	master, err := p.masterTable(dir)
	if err != nil {
		return nil, err
	}
	return master.Strings("CID")
}

func (p *sako18Parser) ObjectData(dir, objID string, format bool) (*snquery.Table, error) {
	n, err := strconv.Atoi(objID)
	if err != nil {
		return nil, fmt.Errorf("sdss: invalid object id %q", objID)
	}
	raw, err := readSMPFile(filepath.Join(dir, "SMP_Data", fmt.Sprintf("SMP_%06d.dat", n)))
	if err != nil {
		return nil, err
	}

	master, err := p.masterTable(dir)
	if err != nil {
		return nil, err
	}
	if err := attachMasterMeta(raw, master, objID); err != nil {
		return nil, err
	}

	outliers, err := p.outliers(dir, objID)
	if err != nil {
		return nil, err
	}
	if len(outliers) > 0 {
		raw = dropOutlierRows(raw, outliers)
	}

	if !format {
		return raw, nil
	}
	return formatSako18(raw)
}

func (p *sako18Parser) AvailableTables(dir string) ([]snquery.TableID, error) {
	files, err := filepath.Glob(filepath.Join(dir, "tables", "*.txt"))
	if err != nil {
		return nil, err
	}
	ids := make([]snquery.TableID, 0, len(files))
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), ".txt")
		if num, err := strconv.Atoi(strings.TrimPrefix(stem, "Table")); err == nil {
			ids = append(ids, snquery.NumberedTable(num))
			continue
		}
		if stem == "master_data" {
			ids = append(ids, snquery.NamedTable("master"))
		}
	}
	return ids, nil
}

func (p *sako18Parser) LoadTable(dir string, id snquery.TableID) (*snquery.Table, error) {
	if !id.Numbered() {
		if id.Name() != "master" {
			return nil, fmt.Errorf("%w: %s", snquery.ErrInvalidTableID, id)
		}
		return p.masterTable(dir)
	}
	return readASCIITable(filepath.Join(dir, "tables", fmt.Sprintf("Table%d.txt", id.Number())))
}

func (p *sako18Parser) Bandpasses(dir string) ([]snquery.Bandpass, error) {
	names := sako18BandNames()
	out := make([]snquery.Bandpass, 0, len(names))
	for _, name := range names {
		file := strings.TrimPrefix(name, sako18BandPrefix) + ".dat"
		bp, err := vizier.ReadTransmission(filepath.Join(dir, "doi_2010_filters", file))
		if err != nil {
			return nil, err
		}
		bp.Name = name
		out = append(out, bp)
	}
	return out, nil
}

// outliers returns the MJD values flagged by the survey as bad photometry
// for the given object. The IGNORE file ships inside an archive nested in
// the SNANA download; it is read straight out of the tarball. A missing
// archive means no points are dropped.
func (p *sako18Parser) outliers(dir, objID string) (map[float64]bool, error) {
	snanaDir := filepath.Join(dir, "SDSS_dataRelease-snana")
	r, err := openIgnoreFile(snanaDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	out := make(map[float64]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != "IGNORE:" || fields[1] != objID {
			continue
		}
		mjd, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("sdss: malformed outlier row %v", fields)
		}
		out[mjd] = true
	}
	return out, scanner.Err()
}

// openIgnoreFile opens the SDSS_allCandidates+BOSS.IGNORE file, preferring
// an already-extracted copy over the nested archive.
func openIgnoreFile(snanaDir string) (io.ReadCloser, error) {
	const ignoreName = "SDSS_allCandidates+BOSS.IGNORE"

	if f, err := os.Open(filepath.Join(snanaDir, "SDSS_allCandidates+BOSS", ignoreName)); err == nil {
		return f, nil
	}

	f, err := os.Open(filepath.Join(snanaDir, "SDSS_allCandidates+BOSS.tar.gz"))
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = gz.Close()
			_ = f.Close()
			return nil, err
		}
		if filepath.Base(hdr.Name) == ignoreName {
			return &nestedFile{r: tr, closers: []io.Closer{gz, f}}, nil
		}
	}
	_ = gz.Close()
	_ = f.Close()
	return nil, fmt.Errorf("sdss: %s not found in nested archive", ignoreName)
}

// nestedFile reads one entry of a nested archive and closes the archive's
// readers behind it.
type nestedFile struct {
	r       io.Reader
	closers []io.Closer
}

func (n *nestedFile) Read(p []byte) (int, error) { return n.r.Read(p) }

func (n *nestedFile) Close() error {
	var err error
	for _, c := range n.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// readSMPFile reads a scene model photometry file. The last comment line
// before the data names the columns.
func readSMPFile(path string) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var table *snquery.Table
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			names := strings.Fields(strings.TrimPrefix(line, "#"))
			if len(names) > 0 {
				table = snquery.NewTable(names...)
			}
			continue
		}
		if table == nil {
			return nil, fmt.Errorf("sdss: %s: data before column declaration", path)
		}
		fields := strings.Fields(line)
		if len(fields) != len(table.ColumnNames()) {
			return nil, fmt.Errorf("sdss: %s: malformed row %q", path, line)
		}
		values := make([]any, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("sdss: %s: malformed row %q", path, line)
			}
			values[i] = v
		}
		if err := table.AddRow(values...); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("sdss: %s: no column declaration", path)
	}

	mjd, err := table.Floats("MJD")
	if err != nil {
		return nil, err
	}
	jd := make([]any, len(mjd))
	for i, m := range mjd {
		v, err := units.ToJD(m, units.StandardMJD)
		if err != nil {
			return nil, err
		}
		jd[i] = v
	}
	if err := table.AddColumn("JD", jd); err != nil {
		return nil, err
	}
	return table, nil
}

// attachMasterMeta copies positional and classification metadata for one
// object out of the master table.
func attachMasterMeta(table, master *snquery.Table, objID string) error {
	cids, err := master.Strings("CID")
	if err != nil {
		return err
	}
	for i, cid := range cids {
		if cid != objID {
			continue
		}
		row := master.Row(i)
		names := master.ColumnNames()
		byName := make(map[string]any, len(names))
		for j, name := range names {
			byName[name] = row[j]
		}
		table.Meta[snquery.MetaObjID] = objID
		table.Meta[snquery.MetaRA] = byName["RA"]
		table.Meta[snquery.MetaDec] = byName["DEC"]
		table.Meta[snquery.MetaRedshift] = byName["zCMB"]
		table.Meta[snquery.MetaRedshiftErr] = byName["zerrCMB"]
		table.Meta["dtype"] = "photometric"
		table.Meta["classification"] = byName["Classification"]
		return nil
	}
	return fmt.Errorf("sdss: object %s missing from master table", objID)
}

func dropOutlierRows(table *snquery.Table, outliers map[float64]bool) *snquery.Table {
	mjd, err := table.Floats("MJD")
	if err != nil {
		return table
	}
	out := snquery.NewTable(table.ColumnNames()...)
	out.Meta = table.Meta
	for i, m := range mjd {
		if outliers[m] {
			continue
		}
		_ = out.AddRow(table.Row(i)...)
	}
	return out
}

// formatSako18 casts a raw SMP table into the standardized light curve
// schema. Band names combine the ugriz filter index with the camera column,
// and fluxes are scaled from micro-Janskys.
func formatSako18(raw *snquery.Table) (*snquery.Table, error) {
	jd, err := raw.Floats("JD")
	if err != nil {
		return nil, err
	}
	filt, err := raw.Floats("FILT")
	if err != nil {
		return nil, err
	}
	ccd, err := raw.Floats("IDCCD")
	if err != nil {
		return nil, err
	}
	flux, err := raw.Floats("FLUX")
	if err != nil {
		return nil, err
	}
	fluxErr, err := raw.Floats("FLUXERR")
	if err != nil {
		return nil, err
	}
	flag, err := raw.Floats("FLAG")
	if err != nil {
		return nil, err
	}

	out := snquery.NewTable(
		snquery.ColTime, snquery.ColBand, snquery.ColZP,
		snquery.ColFlux, snquery.ColFluxErr, snquery.ColZPSys, "flag")
	out.Meta = raw.Meta
	for i := range jd {
		fi := int(filt[i])
		if fi < 0 || fi >= len(sako18FilterSet) {
			return nil, fmt.Errorf("sdss: filter index %d out of range", fi)
		}
		band := fmt.Sprintf("%s%c%d", sako18BandPrefix, sako18FilterSet[fi], int(ccd[i]))
		row := []any{jd[i], band, sako18ZeroPoint, flux[i] * 1e-6, fluxErr[i] * 1e-6, "ab", flag[i]}
		if err := out.AddRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readASCIITable reads a whitespace-delimited table whose first
// non-comment line names the columns. Values that parse as numbers are
// stored as floats except for the CID and SID identifier columns, which
// stay strings.
func readASCIITable(path string) (*snquery.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stringColumns := map[string]bool{"CID": true, "SID": true}

	var table *snquery.Table
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if table == nil {
			table = snquery.NewTable(fields...)
			continue
		}
		if len(fields) != len(table.ColumnNames()) {
			return nil, fmt.Errorf("sdss: %s: malformed row %q", path, line)
		}
		values := make([]any, len(fields))
		for i, field := range fields {
			name := table.ColumnNames()[i]
			if !stringColumns[name] {
				if v, err := strconv.ParseFloat(field, 64); err == nil {
					values[i] = v
					continue
				}
			}
			values[i] = field
		}
		if err := table.AddRow(values...); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("sdss: %s: empty table", path)
	}
	return table, nil
}
