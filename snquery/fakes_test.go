package snquery

import (
	"context"
	"fmt"
	"sync"
)

// -----------------------------------------------------------------------------
// Test Fakes (test-only)
// -----------------------------------------------------------------------------
//
// fakeStore and fakeParser stand in for the filesystem store and a survey
// parser so release behavior can be exercised without fixture directories.
// They record call counts for cache and laziness assertions.

// fakeStore is an in-memory CacheStore. Data presence is a flag rather than
// a directory.
type fakeStore struct {
	present   map[string]bool
	existsErr error
	deleteErr error

	downloads int
	warnings  []DownloadWarning
	dlErr     error
}

func newFakeStore(present ...string) *fakeStore {
	s := &fakeStore{present: make(map[string]bool)}
	for _, key := range present {
		s.present[key] = true
	}
	return s
}

func storeKey(survey, release string) string {
	return survey + "/" + release
}

func (s *fakeStore) Exists(survey, release string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.present[storeKey(survey, release)], nil
}

func (s *fakeStore) Path(survey, release string) string {
	return "/fake/" + storeKey(survey, release)
}

func (s *fakeStore) Delete(survey, release string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.present, storeKey(survey, release))
	return nil
}

func (s *fakeStore) Download(_ context.Context, survey, release string, _ []Resource, _ DownloadOptions) ([]DownloadWarning, error) {
	s.downloads++
	if s.dlErr != nil {
		return nil, s.dlErr
	}
	s.present[storeKey(survey, release)] = true
	return s.warnings, nil
}

// fakeParser serves canned ids, per-object tables, and reference tables.
type fakeParser struct {
	ids    []string
	idsErr error

	// objects maps object id to the columns served for it. Tables are
	// built fresh per call, matching real parser behavior.
	objects map[string]Metadata

	tableIDs   []TableID
	tables     map[TableID]*Table
	loadCalls  map[TableID]int
	objCalls   map[string]int
	lastFormat bool
}

func newFakeParser(ids ...string) *fakeParser {
	p := &fakeParser{
		ids:       ids,
		objects:   make(map[string]Metadata),
		tables:    make(map[TableID]*Table),
		loadCalls: make(map[TableID]int),
		objCalls:  make(map[string]int),
	}
	for _, id := range ids {
		p.objects[id] = Metadata{MetaObjID: id, MetaRedshift: 0.1}
	}
	return p
}

func (p *fakeParser) AvailableIDs(string) ([]string, error) {
	if p.idsErr != nil {
		return nil, p.idsErr
	}
	return p.ids, nil
}

func (p *fakeParser) ObjectData(_ string, objID string, format bool) (*Table, error) {
	meta, ok := p.objects[objID]
	if !ok {
		return nil, fmt.Errorf("no such object %q", objID)
	}
	p.objCalls[objID]++
	p.lastFormat = format

	var t *Table
	if format {
		t = NewPhotometryTable()
		_ = t.AddRow(2450000.5, "fake_band", 1.0, 0.1, 27.5, "ab")
	} else {
		t = NewTable("MJD", "FLUX")
		_ = t.AddRow(50000.0, 1.0)
	}
	for k, v := range meta {
		t.Meta[k] = v
	}
	return t, nil
}

func (p *fakeParser) AvailableTables(string) ([]TableID, error) {
	return p.tableIDs, nil
}

func (p *fakeParser) LoadTable(_ string, id TableID) (*Table, error) {
	t, ok := p.tables[id]
	if !ok {
		return nil, fmt.Errorf("no such table %s", id)
	}
	p.loadCalls[id]++
	return t, nil
}

// fakeBandParser adds canned transmission curves to fakeParser.
type fakeBandParser struct {
	*fakeParser
	bands     []Bandpass
	bandCalls int
}

func (p *fakeBandParser) Bandpasses(string) ([]Bandpass, error) {
	p.bandCalls++
	return p.bands, nil
}

// fakeRegistry is an in-memory FilterRegistry.
type fakeRegistry struct {
	mu        sync.Mutex
	bands     map[string]Bandpass
	registers int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{bands: make(map[string]Bandpass)}
}

func (r *fakeRegistry) Registered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bands[name]
	return ok
}

func (r *fakeRegistry) Register(band Bandpass, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bands[band.Name]; ok && !force {
		return fmt.Errorf("band %q already registered", band.Name)
	}
	r.bands[band.Name] = band
	r.registers++
	return nil
}

// newTestRelease builds a spectroscopic release over fakes with data present.
func newTestRelease(parser Parser, ids ...string) (*SpectroscopicRelease, *fakeStore) {
	store := newFakeStore(storeKey("FAKE", "v1"))
	if parser == nil {
		parser = newFakeParser(ids...)
	}
	meta := ReleaseMeta{SurveyName: "Fake Survey", SurveyAbbrev: "FAKE", Release: "v1"}
	resources := []Resource{{URL: "https://example.com/data.tgz", Path: ".", Archive: true}}
	r, err := NewSpectroscopicRelease(meta, parser, resources, WithStore(store))
	if err != nil {
		panic(err)
	}
	return r, store
}
