package snquery

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// -----------------------------------------------------------------------------
// Availability and id enumeration
// -----------------------------------------------------------------------------

func TestGetAvailableIDs_NoData_ReturnsError(t *testing.T) {
	parser := newFakeParser("a")
	meta := ReleaseMeta{SurveyAbbrev: "FAKE", Release: "v1"}
	r, err := NewSpectroscopicRelease(meta, parser, nil, WithStore(newFakeStore()))
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.GetAvailableIDs()
	if !errors.Is(err, ErrNoDownloadedData) {
		t.Fatalf("expected ErrNoDownloadedData, got: %v", err)
	}
	if r.DataIsAvailable() {
		t.Error("expected DataIsAvailable to be false")
	}
}

func TestGetAvailableIDs_SortsAndDeduplicates(t *testing.T) {
	r, _ := newTestRelease(nil, "2007on", "2004ef", "2007on", "2004dt")

	ids, err := r.GetAvailableIDs()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2004dt", "2004ef", "2007on"}
	if !slices.Equal(ids, want) {
		t.Errorf("got %v, want %v", ids, want)
	}
}

// -----------------------------------------------------------------------------
// Per-object retrieval
// -----------------------------------------------------------------------------

func TestGetDataForID_UnknownID_ReturnsError(t *testing.T) {
	r, _ := newTestRelease(nil, "2004ef")

	_, err := r.GetDataForID("2099zz", DataOptions{})
	if !errors.Is(err, ErrInvalidObjID) {
		t.Fatalf("expected ErrInvalidObjID, got: %v", err)
	}
}

func TestGetDataForID_DefaultIsFormatted(t *testing.T) {
	parser := newFakeParser("2004ef")
	r, _ := newTestRelease(parser, "2004ef")

	table, err := r.GetDataForID("2004ef", DataOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !parser.lastFormat {
		t.Error("zero-value DataOptions should request the standardized format")
	}
	if !table.HasColumn(ColBand) {
		t.Errorf("expected standardized columns, got %v", table.ColumnNames())
	}

	raw, err := r.GetDataForID("2004ef", DataOptions{Raw: true})
	if err != nil {
		t.Fatal(err)
	}
	if parser.lastFormat {
		t.Error("Raw option should suppress formatting")
	}
	if !raw.HasColumn("MJD") {
		t.Errorf("expected native columns, got %v", raw.ColumnNames())
	}
}

func TestGetDataForID_SetsObjIDMeta(t *testing.T) {
	parser := newFakeParser("2004ef")
	parser.objects["2004ef"] = Metadata{} // parser omits the id
	r, _ := newTestRelease(parser, "2004ef")

	table, err := r.GetDataForID("2004ef", DataOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if table.Meta[MetaObjID] != "2004ef" {
		t.Errorf("expected obj_id meta to be filled in, got %v", table.Meta[MetaObjID])
	}
}

// -----------------------------------------------------------------------------
// Iteration
// -----------------------------------------------------------------------------

func TestIterData_YieldsInIDOrder(t *testing.T) {
	r, _ := newTestRelease(nil, "b", "a", "c")

	var got []string
	for table, err := range r.IterData(DataOptions{}) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, table.Meta[MetaObjID].(string))
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIterData_IsRestartable(t *testing.T) {
	r, _ := newTestRelease(nil, "a", "b")
	seq := r.IterData(DataOptions{})

	for range 2 {
		count := 0
		for _, err := range seq {
			if err != nil {
				t.Fatal(err)
			}
			count++
		}
		if count != 2 {
			t.Fatalf("expected 2 records per pass, got %d", count)
		}
	}
}

func TestIterData_FilterRunsAfterLoad(t *testing.T) {
	parser := newFakeParser("a", "b", "c")
	r, _ := newTestRelease(parser, "a", "b", "c")

	var kept []string
	filter := func(t *Table) bool { return t.Meta[MetaObjID] != "b" }
	for table, err := range r.IterData(DataOptions{Filter: filter}) {
		if err != nil {
			t.Fatal(err)
		}
		kept = append(kept, table.Meta[MetaObjID].(string))
	}

	if want := []string{"a", "c"}; !slices.Equal(kept, want) {
		t.Errorf("got %v, want %v", kept, want)
	}
	// Every record is loaded before the predicate runs, including the
	// rejected one.
	if parser.objCalls["b"] != 1 {
		t.Errorf("expected rejected record to be loaded once, got %d calls", parser.objCalls["b"])
	}
}

func TestIterData_EarlyBreakStopsLoading(t *testing.T) {
	parser := newFakeParser("a", "b", "c")
	r, _ := newTestRelease(parser, "a", "b", "c")

	for range r.IterData(DataOptions{}) {
		break
	}
	if parser.objCalls["c"] != 0 {
		t.Error("breaking the loop should not load later records")
	}
}

// -----------------------------------------------------------------------------
// Reference tables
// -----------------------------------------------------------------------------

func TestGetAvailableTables_NumberedBeforeNamed(t *testing.T) {
	parser := newFakeParser("a")
	parser.tableIDs = []TableID{
		NamedTable("master"), NumberedTable(3), NamedTable("extra"), NumberedTable(1),
	}
	r, _ := newTestRelease(parser, "a")

	ids, err := r.GetAvailableTables()
	if err != nil {
		t.Fatal(err)
	}
	want := []TableID{
		NumberedTable(1), NumberedTable(3), NamedTable("extra"), NamedTable("master"),
	}
	if !slices.Equal(ids, want) {
		t.Errorf("got %v, want %v", ids, want)
	}
}

func TestLoadTable_UnknownID_ReturnsError(t *testing.T) {
	parser := newFakeParser("a")
	parser.tableIDs = []TableID{NumberedTable(1)}
	parser.tables[NumberedTable(1)] = NewTable("x")
	r, _ := newTestRelease(parser, "a")

	_, err := r.LoadTable(NumberedTable(9))
	if !errors.Is(err, ErrInvalidTableID) {
		t.Fatalf("expected ErrInvalidTableID, got: %v", err)
	}
}

func TestLoadTable_MemoizesPerRelease(t *testing.T) {
	parser := newFakeParser("a")
	id := NumberedTable(1)
	parser.tableIDs = []TableID{id}
	table := NewTable("x")
	_ = table.AddRow(1.0)
	parser.tables[id] = table
	r, _ := newTestRelease(parser, "a")

	for range 3 {
		if _, err := r.LoadTable(id); err != nil {
			t.Fatal(err)
		}
	}
	if parser.loadCalls[id] != 1 {
		t.Errorf("expected 1 parser read, got %d", parser.loadCalls[id])
	}
}

func TestLoadTable_ReturnsIndependentCopies(t *testing.T) {
	parser := newFakeParser("a")
	id := NumberedTable(1)
	parser.tableIDs = []TableID{id}
	table := NewTable("x")
	_ = table.AddRow(1.0)
	parser.tables[id] = table
	r, _ := newTestRelease(parser, "a")

	first, err := r.LoadTable(id)
	if err != nil {
		t.Fatal(err)
	}
	_ = first.AddRow(2.0)
	first.Meta["poisoned"] = true

	second, err := r.LoadTable(id)
	if err != nil {
		t.Fatal(err)
	}
	if second.NumRows() != 1 {
		t.Errorf("cache was poisoned: %d rows", second.NumRows())
	}
	if _, ok := second.Meta["poisoned"]; ok {
		t.Error("cache metadata was poisoned")
	}
}

// -----------------------------------------------------------------------------
// Download and delete
// -----------------------------------------------------------------------------

func TestDownloadModuleData_NoResources_ReturnsError(t *testing.T) {
	meta := ReleaseMeta{SurveyAbbrev: "FAKE", Release: "v1"}
	r, err := NewSpectroscopicRelease(meta, newFakeParser(), nil, WithStore(newFakeStore()))
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.DownloadModuleData(context.Background(), DownloadOptions{})
	if err == nil {
		t.Fatal("expected error for release without remote resources")
	}
}

func TestDownloadModuleData_SurfacesWarnings(t *testing.T) {
	store := newFakeStore()
	store.warnings = []DownloadWarning{{URL: "https://example.com/gone.tgz", Err: errors.New("404")}}
	meta := ReleaseMeta{SurveyAbbrev: "FAKE", Release: "v1"}
	resources := []Resource{{URL: "https://example.com/gone.tgz", Path: "."}}
	r, err := NewSpectroscopicRelease(meta, newFakeParser("a"), resources, WithStore(store))
	if err != nil {
		t.Fatal(err)
	}

	warnings, err := r.DownloadModuleData(context.Background(), DownloadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if !r.DataIsAvailable() {
		t.Error("download should make data available")
	}
}

func TestDeleteModuleData_ResetsTableCache(t *testing.T) {
	parser := newFakeParser("a")
	id := NumberedTable(1)
	parser.tableIDs = []TableID{id}
	parser.tables[id] = NewTable("x")
	r, store := newTestRelease(parser, "a")

	if _, err := r.LoadTable(id); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteModuleData(); err != nil {
		t.Fatal(err)
	}
	if r.DataIsAvailable() {
		t.Error("data should be gone after delete")
	}

	// Re-download and reload: the parser must be consulted again.
	if _, err := r.DownloadModuleData(context.Background(), DownloadOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.LoadTable(id); err != nil {
		t.Fatal(err)
	}
	if parser.loadCalls[id] != 2 {
		t.Errorf("expected cache reset to force a re-read, got %d calls", parser.loadCalls[id])
	}
	if store.downloads != 1 {
		t.Errorf("expected 1 download, got %d", store.downloads)
	}
}

// -----------------------------------------------------------------------------
// Photometric surface
// -----------------------------------------------------------------------------

func newTestPhotometric(t *testing.T, parser Parser, registry FilterRegistry) *PhotometricRelease {
	t.Helper()
	store := newFakeStore(storeKey("FAKE", "v1"))
	meta := ReleaseMeta{SurveyAbbrev: "FAKE", Release: "v1"}
	bands := []string{"fake_v1_B", "fake_v1_V"}
	zps := []float64{27.5, 14.3}
	opts := []Option{WithStore(store)}
	if registry != nil {
		opts = append(opts, WithFilterRegistry(registry))
	}
	r, err := NewPhotometricRelease(meta, parser, nil, bands, zps, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNewPhotometricRelease_BandZeroPointMismatch(t *testing.T) {
	meta := ReleaseMeta{SurveyAbbrev: "FAKE", Release: "v1"}
	_, err := NewPhotometricRelease(meta, newFakeParser(), nil, []string{"b"}, nil, WithStore(newFakeStore()))
	if err == nil {
		t.Fatal("expected error for mismatched bands and zero points")
	}
}

func TestZeroPointForBand(t *testing.T) {
	r := newTestPhotometric(t, newFakeParser("a"), nil)

	zp, err := r.ZeroPointForBand("fake_v1_V")
	if err != nil {
		t.Fatal(err)
	}
	if zp != 14.3 {
		t.Errorf("got %v, want 14.3", zp)
	}
	if _, err := r.ZeroPointForBand("fake_v1_X"); err == nil {
		t.Error("expected error for unknown band")
	}
}

func TestRegisterFilters_NoBandProvider_ReturnsError(t *testing.T) {
	r := newTestPhotometric(t, newFakeParser("a"), newFakeRegistry())

	err := r.RegisterFilters(false)
	if !errors.Is(err, ErrObservedDataType) {
		t.Fatalf("expected ErrObservedDataType, got: %v", err)
	}
}

func TestRegisterFilters_SkipsRegisteredUnlessForced(t *testing.T) {
	registry := newFakeRegistry()
	parser := &fakeBandParser{
		fakeParser: newFakeParser("a"),
		bands: []Bandpass{
			{Name: "fake_v1_B", Wavelength: []float64{4000, 5000}, Transmission: []float64{0.5, 0.6}},
		},
	}
	r := newTestPhotometric(t, parser, registry)

	if err := r.RegisterFilters(false); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterFilters(false); err != nil {
		t.Fatal(err)
	}
	if registry.registers != 1 {
		t.Errorf("expected second call to skip, got %d registers", registry.registers)
	}

	if err := r.RegisterFilters(true); err != nil {
		t.Fatal(err)
	}
	if registry.registers != 2 {
		t.Errorf("expected force to re-register, got %d registers", registry.registers)
	}
}
