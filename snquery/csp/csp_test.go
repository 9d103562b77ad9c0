package csp

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sndata/snquery/snquery"
)

const snoopy2004ef = `SN2004ef 0.031 339.238 19.994
filter B
0.0 14.458 0.02
1.5 14.6 0.03
filter V
0.0 14.5 0.02
`

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDR3_AvailableIDs(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "DR3/SN2004ef_snpy.txt", snoopy2004ef)
	writeFixture(t, dir, "DR3/SN2005kc_snpy.txt", snoopy2004ef)

	ids, err := dr3Parser{}.AvailableIDs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "2004ef" || ids[1] != "2005kc" {
		t.Errorf("ids = %v", ids)
	}
}

func TestDR3_ObjectDataRaw(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "DR3/SN2004ef_snpy.txt", snoopy2004ef)

	table, err := dr3Parser{}.ObjectData(dir, "2004ef", false)
	if err != nil {
		t.Fatal(err)
	}
	if table.NumRows() != 3 {
		t.Fatalf("rows = %d", table.NumRows())
	}
	if table.Meta[snquery.MetaObjID] != "2004ef" {
		t.Errorf("obj_id = %v", table.Meta[snquery.MetaObjID])
	}
	if table.Meta[snquery.MetaRedshift] != 0.031 {
		t.Errorf("z = %v", table.Meta[snquery.MetaRedshift])
	}

	bands, err := table.Strings("band")
	if err != nil {
		t.Fatal(err)
	}
	if bands[0] != "B" || bands[2] != "V" {
		t.Errorf("bands = %v", bands)
	}
}

func TestDR3_ObjectDataFormatted(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "DR3/SN2004ef_snpy.txt", snoopy2004ef)

	table, err := dr3Parser{}.ObjectData(dir, "2004ef", true)
	if err != nil {
		t.Fatal(err)
	}

	times, err := table.Floats(snquery.ColTime)
	if err != nil {
		t.Fatal(err)
	}
	// Snoopy day 0 is MJD 53000, i.e. JD 2453000.5.
	if times[0] != 2453000.5 {
		t.Errorf("time = %v", times[0])
	}
	if times[1] != 2453002.0 {
		t.Errorf("time = %v", times[1])
	}

	bands, err := table.Strings(snquery.ColBand)
	if err != nil {
		t.Fatal(err)
	}
	if bands[0] != "csp_dr3_B" {
		t.Errorf("band = %q", bands[0])
	}

	// Row 0 was crafted so mag plus the B instrument offset equals the B
	// zero point exactly, giving unit flux.
	fluxes, err := table.Floats(snquery.ColFlux)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fluxes[0]-1) > 1e-12 {
		t.Errorf("flux = %v", fluxes[0])
	}

	zps, err := table.Floats(snquery.ColZP)
	if err != nil {
		t.Fatal(err)
	}
	if zps[0] != 14.328 || zps[2] != 14.439 {
		t.Errorf("zps = %v", zps)
	}

	systems, err := table.Strings(snquery.ColZPSys)
	if err != nil {
		t.Fatal(err)
	}
	if systems[0] != "ab" {
		t.Errorf("zpsys = %q", systems[0])
	}
}

func TestParseSnoopyFile_MalformedRows(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"empty":      "",
		"bad header": "SN2004ef 0.031\n",
		"bad row":    "SN2004ef 0.031 339.2 19.9\nfilter B\n1 2\n",
		"no band":    "SN2004ef 0.031 339.2 19.9\nfilter\n",
	} {
		writeFixture(t, dir, "bad.txt", content)
		if _, err := parseSnoopyFile(filepath.Join(dir, "bad.txt")); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

const dr1Spectrum = `# Redshift: 0.031
# JDate_of_observation: 2453263.77
# Epoch: 2.3
3500.0 1.03e-15
3502.5 1.10e-15
3505.0 0.98e-15
`

func TestDR1_ObjIDRestoresCentury(t *testing.T) {
	got := dr1ObjID("/data/CSP_spectra_DR1/SN04ef_040915_b01_DUP_WF.dat")
	if got != "2004ef" {
		t.Errorf("got %q", got)
	}
}

func TestDR1_AvailableIDs(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSP_spectra_DR1/SN04ef_040915_b01_DUP_WF.dat", dr1Spectrum)
	writeFixture(t, dir, "CSP_spectra_DR1/SN05kc_051104_b01_DUP_WF.dat", dr1Spectrum)

	ids, err := dr1Parser{}.AvailableIDs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "2004ef" || ids[1] != "2005kc" {
		t.Errorf("ids = %v", ids)
	}
}

func TestDR1_ObjectDataFormatted(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSP_spectra_DR1/SN04ef_040915_b01_DUP_WF.dat", dr1Spectrum)

	table, err := dr1Parser{}.ObjectData(dir, "2004ef", true)
	if err != nil {
		t.Fatal(err)
	}
	if table.NumRows() != 3 {
		t.Fatalf("rows = %d", table.NumRows())
	}
	if table.Meta[snquery.MetaObjID] != "2004ef" {
		t.Errorf("obj_id = %v", table.Meta[snquery.MetaObjID])
	}
	if table.Meta[snquery.MetaRedshift] != 0.031 {
		t.Errorf("z = %v", table.Meta[snquery.MetaRedshift])
	}

	times, err := table.Floats(snquery.ColTime)
	if err != nil {
		t.Fatal(err)
	}
	if times[0] != 2453263.77 {
		t.Errorf("time = %v", times[0])
	}

	for col, want := range map[string]string{
		"wavelength_range": "b01",
		"telescope":        "DUP",
		"instrument":       "WF",
	} {
		values, err := table.Strings(col)
		if err != nil {
			t.Fatal(err)
		}
		if values[0] != want {
			t.Errorf("%s = %q, want %q", col, values[0], want)
		}
	}

	epochs, err := table.Floats("epoch")
	if err != nil {
		t.Fatal(err)
	}
	if epochs[0] != 2.3 {
		t.Errorf("epoch = %v", epochs[0])
	}
}

func TestDR1_ObjectDataStacksSpectra(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSP_spectra_DR1/SN04ef_040915_b01_DUP_WF.dat", dr1Spectrum)
	second := `# Redshift: 0.031
# JDate_of_observation: 2453270.61
# Epoch: 9.1
3500.0 1.01e-15
3502.5 1.07e-15
`
	writeFixture(t, dir, "CSP_spectra_DR1/SN04ef_040922_b01_NTT_EM.dat", second)

	table, err := dr1Parser{}.ObjectData(dir, "2004ef", true)
	if err != nil {
		t.Fatal(err)
	}
	if table.NumRows() != 5 {
		t.Fatalf("rows = %d", table.NumRows())
	}

	times, err := table.Floats(snquery.ColTime)
	if err != nil {
		t.Fatal(err)
	}
	// Spectra stack in file-name order, earliest observation first.
	if times[0] != 2453263.77 || times[4] != 2453270.61 {
		t.Errorf("times = %v", times)
	}

	instruments, err := table.Strings("instrument")
	if err != nil {
		t.Fatal(err)
	}
	if instruments[0] != "WF" || instruments[4] != "EM" {
		t.Errorf("instruments = %v", instruments)
	}
}

func TestDR1_ObjectDataUnknownID(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSP_spectra_DR1/SN04ef_040915_b01_DUP_WF.dat", dr1Spectrum)

	if _, err := (dr1Parser{}).ObjectData(dir, "1999zz", true); err == nil {
		t.Fatal("expected error for unknown object")
	}
}
